// Package refresh keeps the session table current: on a cron schedule for
// remote sheets and on file changes for a local CSV export.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingrealloc/internal/domain"
	"ingrealloc/internal/session"
)

// Refresher is satisfied by *session.Session.
type Refresher interface {
	Refresh(ctx context.Context) (*domain.UsageTable, error)
}

// Result tracks what a refresh produced. It has no Slack dependency so it can
// be used from the CLI, the slash command and the scheduler.
type Result struct {
	Version string
	Source  string
	Kept    int
	Stats   domain.LoadStats
	Stale   bool // the fetch failed and an older table is still served
	Took    time.Duration
	Err     error
}

func Run(ctx context.Context, r Refresher) Result {
	start := time.Now()
	table, err := r.Refresh(ctx)
	res := Result{Err: err, Took: time.Since(start)}
	if table != nil {
		res.Version = table.Version
		res.Source = table.Source
		res.Kept = table.Len()
		res.Stats = table.Stats
	}
	var stale *session.StaleError
	res.Stale = errors.As(err, &stale)
	return res
}

// FormatSummary returns a human-readable summary of a Result.
func FormatSummary(res Result) string {
	if res.Err != nil && !res.Stale {
		return fmt.Sprintf("Error refreshing usage data:\n%v", res.Err)
	}
	if res.Stale {
		var stale *session.StaleError
		cause := res.Err
		if errors.As(res.Err, &stale) {
			cause = stale.Err
		}
		return fmt.Sprintf("Refresh failed, still using snapshot %s (%d records).\nError: %v",
			shortVersion(res.Version), res.Kept, cause)
	}

	msg := fmt.Sprintf("Loaded %d records from %s (snapshot %s)", res.Kept, res.Source, shortVersion(res.Version))
	if dropped := res.Stats.Dropped(); dropped > 0 {
		msg += fmt.Sprintf(": %d of %d rows skipped (%d bad quantity, %d bad date, %d before cutoff)",
			dropped, res.Stats.RowsRead, res.Stats.DroppedQuantity, res.Stats.DroppedDate, res.Stats.BeforeCutoff)
	}
	return msg + "."
}

func shortVersion(v string) string {
	if len(v) > 8 {
		return v[:8]
	}
	return v
}
