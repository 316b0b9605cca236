package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("Given fresh metrics", t, func() {
		m := New()

		Convey("A finished backup should update counters and the in-flight gauge", func() {
			m.BackupStarted("local", "manual")
			So(testutil.ToFloat64(m.inFlight.WithLabelValues("local")), ShouldEqual, 1)

			m.BackupFinished("local", "manual", "completed", 2048, 3*time.Second)
			So(testutil.ToFloat64(m.inFlight.WithLabelValues("local")), ShouldEqual, 0)
			So(testutil.ToFloat64(m.backups.WithLabelValues("local", "manual", "completed")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.backupBytes.WithLabelValues("local")), ShouldEqual, 2048)
		})

		Convey("Restores and schedule skips should be counted by label", func() {
			m.RestoreFinished("production", "drop", false)
			m.ScheduleSkipped("still_running")
			m.ScheduleSkipped("still_running")

			So(testutil.ToFloat64(m.restores.WithLabelValues("production", "drop", "failed")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.scheduleSkips.WithLabelValues("still_running")), ShouldEqual, 2)
		})

		Convey("The handler should expose the registry", func() {
			m.ScheduleSkipped("claimed")
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

			So(rec.Code, ShouldEqual, 200)
			So(strings.Contains(rec.Body.String(), `dbbackup_schedule_skips_total{reason="claimed"} 1`), ShouldBeTrue)
		})
	})
}
