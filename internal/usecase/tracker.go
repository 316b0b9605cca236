package usecase

import (
	"context"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// ProgressCap is the highest estimate reported before a run is finalized.
const ProgressCap = 90

// MinStaleAfter is the shortest heartbeat silence after which an in-progress
// record is considered interrupted.
const MinStaleAfter = 10 * time.Minute

type ProgressWriter interface {
	UpdateProgress(ctx context.Context, id string, p int) error
	Touch(ctx context.Context, id string) error
}

// Tracker reports a heuristic progress estimate for a running dump: every
// interval it adds step, capped at ProgressCap. Each tick also counts as a
// heartbeat for the record. It never writes a terminal status.
type Tracker struct {
	repo     ProgressWriter
	interval time.Duration
	step     int
	logger   Logger
}

func NewTracker(repo ProgressWriter, interval time.Duration, step int, logger Logger) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	if step <= 0 {
		step = 10
	}
	return &Tracker{repo: repo, interval: interval, step: step, logger: logger}
}

// Track blocks until proc exits or ctx is done.
func (t *Tracker) Track(ctx context.Context, id string, proc domain.Process) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	progress := 0
	for {
		select {
		case <-proc.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Done may have closed while the tick was pending.
		select {
		case <-proc.Done():
			return
		default:
		}

		if progress >= ProgressCap {
			t.touch(ctx, id)
			continue
		}
		progress = min(progress+t.step, ProgressCap)
		if err := t.repo.UpdateProgress(ctx, id, progress); err != nil {
			t.logger.Warnf("[%s] Failed to update progress: %v", id, err)
		}
	}
}

// KeepAlive refreshes the heartbeat of a queued record until ctx is done.
func (t *Tracker) KeepAlive(ctx context.Context, id string) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.touch(ctx, id)
		}
	}
}

// StaleAfter is how long a record may go without a heartbeat before it is
// treated as abandoned by a dead process.
func (t *Tracker) StaleAfter() time.Duration {
	return max(MinStaleAfter, 10*t.interval)
}

func (t *Tracker) touch(ctx context.Context, id string) {
	if err := t.repo.Touch(ctx, id); err != nil {
		t.logger.Warnf("[%s] Failed to refresh heartbeat: %v", id, err)
	}
}
