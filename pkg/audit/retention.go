package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultRetentionSchedule runs the purge at 03:30 UTC every day
const DefaultRetentionSchedule = "30 3 * * *"

// Retention periodically purges audit entries older than a fixed window
type Retention struct {
	purger   Purger
	days     int
	schedule string
	cron     *cron.Cron
	log      *logrus.Logger
	now      func() time.Time
}

// NewRetention creates a retention job. days <= 0 disables purging.
func NewRetention(purger Purger, days int, schedule string, log *logrus.Logger) *Retention {
	if log == nil {
		log = logrus.New()
	}
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	return &Retention{
		purger:   purger,
		days:     days,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		log:      log,
		now:      time.Now,
	}
}

// Start registers the purge job and starts the scheduler
func (r *Retention) Start() error {
	if r.days <= 0 {
		r.log.Info("audit retention disabled")
		return nil
	}

	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.WithError(err).Error("audit retention run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid audit retention schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.log.WithFields(logrus.Fields{
		"schedule": r.schedule,
		"days":     r.days,
	}).Info("audit retention scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce purges entries older than the retention window
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	if r.days <= 0 {
		return 0, nil
	}
	cutoff := r.now().UTC().AddDate(0, 0, -r.days)
	purged, err := r.purger.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.log.WithFields(logrus.Fields{
		"cutoff": cutoff.Format(time.RFC3339),
		"purged": purged,
	}).Info("audit retention purge completed")
	return purged, nil
}
