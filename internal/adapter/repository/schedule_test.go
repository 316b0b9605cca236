package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbbackup/internal/domain"
)

func newSchedule(name string) *domain.ScheduleDefinition {
	return &domain.ScheduleDefinition{
		Name:        name,
		Environment: domain.EnvProduction,
		Recurrence:  domain.Daily,
		TimeOfDay:   domain.TimeOfDay{Hour: 2, Minute: 30},
		Active:      true,
	}
}

func TestScheduleRepository(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := openTestStore(t)
		ctx := context.Background()

		Convey("CreateSchedule should validate and persist", func() {
			sc := newSchedule("nightly")
			So(s.CreateSchedule(ctx, sc), ShouldBeNil)
			So(sc.ID, ShouldNotBeEmpty)

			got, err := s.GetSchedule(ctx, sc.ID)
			So(err, ShouldBeNil)
			So(got.Name, ShouldEqual, "nightly")
			So(got.TimeOfDay, ShouldResemble, domain.TimeOfDay{Hour: 2, Minute: 30})
			So(got.Active, ShouldBeTrue)
			So(got.LastRun, ShouldBeNil)

			bad := newSchedule("")
			So(errors.Is(s.CreateSchedule(ctx, bad), domain.ErrValidation), ShouldBeTrue)

			dup := newSchedule("nightly")
			So(errors.Is(s.CreateSchedule(ctx, dup), domain.ErrValidation), ShouldBeTrue)
		})

		Convey("ListSchedules should honour activeOnly", func() {
			So(s.CreateSchedule(ctx, newSchedule("b-active")), ShouldBeNil)
			off := newSchedule("a-paused")
			off.Active = false
			So(s.CreateSchedule(ctx, off), ShouldBeNil)

			all, err := s.ListSchedules(ctx, false)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 2)
			So(all[0].Name, ShouldEqual, "a-paused")

			active, _ := s.ListSchedules(ctx, true)
			So(len(active), ShouldEqual, 1)
			So(active[0].Name, ShouldEqual, "b-active")
		})

		Convey("UpdateSchedule and DeleteSchedule should report unknown ids", func() {
			sc := newSchedule("weekly")
			So(s.CreateSchedule(ctx, sc), ShouldBeNil)

			sc.Recurrence = domain.Weekly
			So(s.UpdateSchedule(ctx, sc), ShouldBeNil)
			got, _ := s.GetSchedule(ctx, sc.ID)
			So(got.Recurrence, ShouldEqual, domain.Weekly)

			ghost := newSchedule("ghost")
			ghost.ID = "missing"
			So(errors.Is(s.UpdateSchedule(ctx, ghost), domain.ErrNotFound), ShouldBeTrue)

			So(s.DeleteSchedule(ctx, sc.ID), ShouldBeNil)
			So(errors.Is(s.DeleteSchedule(ctx, sc.ID), domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("ClaimSchedule should let one caller win per period", func() {
			sc := newSchedule("claimed")
			So(s.CreateSchedule(ctx, sc), ShouldBeNil)

			won, err := s.ClaimSchedule(ctx, sc.ID, "daily:2025-06-01")
			So(err, ShouldBeNil)
			So(won, ShouldBeTrue)

			won, _ = s.ClaimSchedule(ctx, sc.ID, "daily:2025-06-01")
			So(won, ShouldBeFalse)

			So(s.ReleaseSchedule(ctx, sc.ID, "daily:2025-06-01"), ShouldBeNil)
			won, _ = s.ClaimSchedule(ctx, sc.ID, "daily:2025-06-01")
			So(won, ShouldBeTrue)

			won, _ = s.ClaimSchedule(ctx, sc.ID, "daily:2025-06-02")
			So(won, ShouldBeTrue)
		})

		Convey("ClaimSchedule should never win for an inactive schedule", func() {
			sc := newSchedule("paused")
			sc.Active = false
			So(s.CreateSchedule(ctx, sc), ShouldBeNil)

			won, err := s.ClaimSchedule(ctx, sc.ID, "daily:2025-06-01")
			So(err, ShouldBeNil)
			So(won, ShouldBeFalse)
		})

		Convey("MarkScheduleRun should set last_run", func() {
			sc := newSchedule("marked")
			So(s.CreateSchedule(ctx, sc), ShouldBeNil)

			at := time.Date(2025, 6, 1, 2, 30, 5, 0, time.UTC)
			So(s.MarkScheduleRun(ctx, sc.ID, at), ShouldBeNil)
			got, _ := s.GetSchedule(ctx, sc.ID)
			So(got.LastRun, ShouldNotBeNil)
			So(got.LastRun.Equal(at), ShouldBeTrue)

			So(errors.Is(s.MarkScheduleRun(ctx, "missing", at), domain.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestScheduleRepositoryErrors(t *testing.T) {
	Convey("Given a store whose database fails", t, func() {
		db, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()
		s := New(db)
		ctx := context.Background()

		Convey("ClaimSchedule should not report a win on error", func() {
			mock.ExpectExec("UPDATE schedules SET claimed_period").WillReturnError(errors.New("busy"))
			won, err := s.ClaimSchedule(ctx, "1", "p")
			So(won, ShouldBeFalse)
			So(err.Error(), ShouldContainSubstring, "failed to claim schedule")
		})

		Convey("ListSchedules should surface row errors", func() {
			rows := sqlmock.NewRows([]string{"id"}).AddRow("1").RowError(0, errors.New("corrupt"))
			mock.ExpectQuery("SELECT (.+) FROM schedules").WillReturnRows(rows)
			_, err := s.ListSchedules(ctx, true)
			So(err, ShouldNotBeNil)
		})

		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}
