package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Infof(string, ...interface{}) {}

func (l *recordingLogger) Errorf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, template)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestScheduler(t *testing.T) {
	Convey("Given a Scheduler", t, func() {
		logger := &recordingLogger{}
		scheduler := New(time.UTC, logger)

		Convey("A job on a valid spec should run until the scheduler stops", func() {
			var runs int32
			err := scheduler.AddJob("tick", "* * * * * *", func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				return nil
			})
			So(err, ShouldBeNil)
			So(scheduler.Next("tick").IsZero(), ShouldBeTrue)

			scheduler.Start()
			time.Sleep(2100 * time.Millisecond)
			scheduler.Stop()

			seen := atomic.LoadInt32(&runs)
			So(seen, ShouldBeGreaterThanOrEqualTo, 1)

			time.Sleep(1100 * time.Millisecond)
			So(atomic.LoadInt32(&runs), ShouldEqual, seen)
		})

		Convey("An invalid spec should be rejected", func() {
			err := scheduler.AddJob("bad", "invalid spec", func(context.Context) error { return nil })
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "expected exactly 6 fields")
		})

		Convey("A job name can only be scheduled once", func() {
			noop := func(context.Context) error { return nil }
			So(scheduler.AddJob("cleanup", "0 0 3 * * *", noop), ShouldBeNil)
			So(scheduler.AddJob("cleanup", "0 0 4 * * *", noop), ShouldNotBeNil)
		})

		Convey("Job errors should be logged", func() {
			So(scheduler.AddJob("failing", "* * * * * *", func(context.Context) error {
				return errors.New("boom")
			}), ShouldBeNil)

			scheduler.Start()
			time.Sleep(1100 * time.Millisecond)
			scheduler.Stop()

			So(logger.count(), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("A slow job should not overlap itself and should see Stop", func() {
			var active, maxActive int32
			stopped := make(chan struct{}, 1)
			So(scheduler.AddJob("slow", "* * * * * *", func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				defer atomic.AddInt32(&active, -1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				<-ctx.Done()
				stopped <- struct{}{}
				return ctx.Err()
			}), ShouldBeNil)

			scheduler.Start()
			time.Sleep(2500 * time.Millisecond)
			scheduler.Stop()

			So(atomic.LoadInt32(&maxActive), ShouldEqual, 1)
			So(len(stopped), ShouldEqual, 1)
		})
	})
}
