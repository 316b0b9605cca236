package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbbackup/internal/domain"
)

type recordingWriter struct {
	mu      sync.Mutex
	values  []int
	touches int
}

func (w *recordingWriter) Touch(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touches++
	return nil
}

func (w *recordingWriter) touchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.touches
}

func (w *recordingWriter) UpdateProgress(ctx context.Context, id string, p int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = append(w.values, p)
	return nil
}

func (w *recordingWriter) snapshot() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.values...)
}

// fakeProcess is a domain.Process finished by calling exit.
type fakeProcess struct {
	done   chan struct{}
	once   sync.Once
	result domain.ProcessResult
	err    error
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) exit(res domain.ProcessResult, err error) {
	p.once.Do(func() {
		p.result, p.err = res, err
		close(p.done)
	})
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Wait() (domain.ProcessResult, error) {
	<-p.done
	return p.result, p.err
}

func TestTracker(t *testing.T) {
	Convey("Given a tracker polling every 5ms in steps of 30", t, func() {
		writer := &recordingWriter{}
		tracker := NewTracker(writer, 5*time.Millisecond, 30, testLogger{})
		proc := newFakeProcess()

		Convey("Progress should rise monotonically and stop at the cap", func() {
			done := make(chan struct{})
			go func() {
				tracker.Track(context.Background(), "bk-1", proc)
				close(done)
			}()

			time.Sleep(100 * time.Millisecond)
			proc.exit(domain.ProcessResult{}, nil)
			<-done

			values := writer.snapshot()
			So(values, ShouldResemble, []int{30, 60, 90})
			So(writer.touchCount(), ShouldBeGreaterThan, 0)
		})

		Convey("Track should return as soon as the process exits", func() {
			proc.exit(domain.ProcessResult{}, nil)
			start := time.Now()
			tracker.Track(context.Background(), "bk-2", proc)

			So(time.Since(start), ShouldBeLessThan, time.Second)
			So(len(writer.snapshot()), ShouldEqual, 0)
		})

		Convey("Track should return when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			tracker.Track(ctx, "bk-3", proc)
			So(len(writer.snapshot()), ShouldEqual, 0)
		})

		Convey("KeepAlive should touch the record until cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				tracker.KeepAlive(ctx, "bk-4")
				close(done)
			}()

			time.Sleep(50 * time.Millisecond)
			cancel()
			<-done
			So(writer.touchCount(), ShouldBeGreaterThan, 0)
			So(len(writer.snapshot()), ShouldEqual, 0)
		})
	})

	Convey("StaleAfter should never drop below the minimum", t, func() {
		So(NewTracker(&recordingWriter{}, time.Second, 10, testLogger{}).StaleAfter(), ShouldEqual, MinStaleAfter)
		So(NewTracker(&recordingWriter{}, 5*time.Minute, 10, testLogger{}).StaleAfter(), ShouldEqual, 50*time.Minute)
	})
}
