package background_tasks

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Trigger decides how long the scheduler waits after a run completes.
type Trigger interface {
	Next(now time.Time) time.Duration
}

// IntervalTrigger waits a fixed delay after every run. Slow runs therefore
// stretch the effective period; there is no drift correction.
type IntervalTrigger struct {
	Interval time.Duration
}

func (t *IntervalTrigger) Next(time.Time) time.Duration {
	return t.Interval
}

// CronTrigger waits until the next activation of a cron expression.
type CronTrigger struct {
	Expr     string
	schedule cron.Schedule
}

// NewCronTrigger parses a standard five-field expression or a descriptor
// such as "@every 1m".
func NewCronTrigger(expr string) (*CronTrigger, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	return &CronTrigger{Expr: expr, schedule: schedule}, nil
}

func (t *CronTrigger) Next(now time.Time) time.Duration {
	wait := t.schedule.Next(now).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
