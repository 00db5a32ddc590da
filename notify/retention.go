package notify

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/persistence"
)

// Retention periodically purges read notifications older than the retention period.
type Retention struct {
	persister persistence.Persister
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

func NewRetention(persister persistence.Persister, retention time.Duration, spec string) (*Retention, error) {
	r := &Retention{
		persister: persister,
		retention: retention,
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:       time.Now,
	}
	_, err := r.cron.AddFunc(spec, func() {
		_, _ = r.Purge()
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Purge deletes the read notifications created before now minus the retention period.
func (r *Retention) Purge() (int, error) {
	before := r.now().Add(-r.retention)
	n, err := r.persister.PurgeNotifications(before)
	if err != nil {
		globals.AppLogger.Error("could not purge notifications", "error", err)
		return 0, err
	}
	globals.AppLogger.Info("purged notifications", "count", n, "before", before)
	return n, nil
}

func (r *Retention) Start() {
	r.cron.Start()
}

// Stop stops the schedule, the returned context is done once a running purge finished.
func (r *Retention) Stop() context.Context {
	return r.cron.Stop()
}
