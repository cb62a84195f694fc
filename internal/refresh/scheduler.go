package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ParseSchedule parses a standard 5-field cron expression (minute hour
// day-of-month month day-of-week), e.g. "0 6 * * *" for daily at 6am or
// "0 6 * * 1-5" for weekdays.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid refresh_schedule '%s': %w", spec, err)
	}
	return sched, nil
}

// Scheduler refreshes on a cron schedule and hands each summary to Notify.
type Scheduler struct {
	Schedule  cron.Schedule
	Refresher Refresher
	Location  *time.Location
	Logger    *zap.Logger
	// Notify is optional; the bot uses it to post to the report channel.
	Notify func(ctx context.Context, summary string)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	for {
		now := time.Now().In(loc)
		next := s.Schedule.Next(now)
		wait := next.Sub(now)
		logger.Info("Next refresh scheduled",
			zap.String("at", next.Format("Mon Jan 2 15:04")),
			zap.Duration("in", wait.Round(time.Second)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		res := Run(ctx, s.Refresher)
		summary := FormatSummary(res)
		if res.Err != nil {
			logger.Warn("Scheduled refresh failed", zap.Error(res.Err), zap.Bool("stale", res.Stale))
		} else {
			logger.Info("Scheduled refresh complete",
				zap.String("version", res.Version),
				zap.Int("rows", res.Kept),
				zap.Int("dropped", res.Stats.Dropped()))
		}
		if s.Notify != nil {
			s.Notify(ctx, "Scheduled refresh: "+summary)
		}
	}
}
