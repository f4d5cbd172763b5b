package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/robfig/cron/v3"
)

// purgeTimeout bounds one purge pass.
const purgeTimeout = 5 * time.Minute

// Purger deletes runs older than a maximum age.
type Purger interface {
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Retention periodically purges old runs on a cron schedule.
type Retention struct {
	cron   *cron.Cron
	purger Purger
	maxAge time.Duration
	log    *slog.Logger
}

// NewRetention parses the schedule and registers the purge job. A zero
// MaxAge disables purging and returns nil.
func NewRetention(p Purger, cfg config.RetentionConfig, log *slog.Logger) (*Retention, error) {
	if cfg.MaxAge <= 0 {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}

	cronLog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug))
	r := &Retention{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLog),
				cron.Recover(cronLog),
			),
		),
		purger: p,
		maxAge: cfg.MaxAge,
		log:    log,
	}
	if _, err := r.cron.AddFunc(cfg.Schedule, r.Purge); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Retention) Start() {
	r.cron.Start()
	r.log.Info("retention scheduler started", "max_age", r.maxAge, "next", r.Next())
}

// Stop stops the schedule and waits for a running purge to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("retention scheduler stopped")
}

// Next returns when the purge runs next, or the zero time before Start.
func (r *Retention) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Purge deletes expired runs once.
func (r *Retention) Purge() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := r.purger.PurgeOlderThan(ctx, r.maxAge)
	if err != nil {
		r.log.Error("retention purge failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Info("retention purge completed", "deleted", n)
	}
}
