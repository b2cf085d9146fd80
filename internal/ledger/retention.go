package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retention prunes old session records once at start-up and then at every UTC midnight.
type Retention struct {
	Recorder Recorder
	MaxAge   time.Duration
	Logger   *zap.Logger

	now func() time.Time
}

// Run blocks until ctx is done.
func (r *Retention) Run(ctx context.Context) error {
	if r.MaxAge <= 0 {
		r.Logger.Info("session retention disabled")
		<-ctx.Done()
		return nil
	}

	r.runOnce(ctx)

	timer := time.NewTimer(time.Until(nextMidnight(r.clock())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			r.runOnce(ctx)
			timer.Reset(time.Until(nextMidnight(r.clock())))
		}
	}
}

func (r *Retention) runOnce(ctx context.Context) {
	cutoff := r.clock().Add(-r.MaxAge)

	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := r.Recorder.DeleteBefore(dbCtx, cutoff)
	if err != nil {
		r.Logger.Warn("failed to prune session records", zap.Error(err))
		return
	}
	r.Logger.Info("pruned session records", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
}

func (r *Retention) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func nextMidnight(now time.Time) time.Time {
	now = now.UTC()
	return now.Truncate(24 * time.Hour).Add(24 * time.Hour)
}
