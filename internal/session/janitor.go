package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"medibot/internal/domain"
)

// DefaultSweepSchedule runs the sweep every five minutes.
const DefaultSweepSchedule = "*/5 * * * *"

// cronParser accepts standard 5-field expressions and descriptors such as "@every 1m".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a schedule the janitor accepts.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return nil
}

// Janitor sweeps a ContextStore on a cron schedule.
type Janitor struct {
	store  domain.ContextStore
	cron   *cron.Cron
	logger *slog.Logger
}

func NewJanitor(store domain.ContextStore, schedule string, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	j := &Janitor{
		store:  store,
		cron:   cron.New(cron.WithParser(cronParser)),
		logger: logger,
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed, err := j.store.Sweep(ctx)
	if err != nil {
		j.logger.Warn("sender context sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		j.logger.Debug("sender contexts evicted", "count", removed)
	}
	return removed
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
