// Package session holds the usage table for the lifetime of the process and
// memoizes per-item shares against the table version they were computed from.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ingrealloc/internal/allocation"
	"ingrealloc/internal/domain"
	"ingrealloc/internal/ingest"
	"ingrealloc/internal/integrations/sheets"
	"ingrealloc/internal/storage/sqlite"
)

type Options struct {
	Ingest ingest.Options
	// MaxAge is how old a stored snapshot may be and still be reused at
	// startup. Zero disables reuse.
	MaxAge time.Duration
	// Keep is the number of snapshots retained after each fetch.
	Keep int
	Now  func() time.Time
}

// StaleError reports a failed fetch while an older table is still served.
type StaleError struct {
	Version string
	Err     error
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%v (serving snapshot %s)", e.Err, e.Version)
}

func (e *StaleError) Unwrap() error { return e.Err }

type cachedShares struct {
	shares []domain.DepartmentShare
	ok     bool
}

type Session struct {
	source sheets.Source
	db     *sql.DB // nil disables snapshots
	opts   Options
	logger *zap.Logger
	group  singleflight.Group

	mu            sync.Mutex
	table         *domain.UsageTable
	shares        map[string]cachedShares
	sharesVersion string
	lastErr       error
	// invalidated makes the next load go to the source even when a young
	// snapshot is stored.
	invalidated bool
}

func New(source sheets.Source, db *sql.DB, opts Options, logger *zap.Logger) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Ingest.CutoffYear == 0 {
		opts.Ingest.CutoffYear = domain.DefaultCutoffYear
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{source: source, db: db, opts: opts, logger: logger}
}

// Current returns the loaded table without triggering a load.
func (s *Session) Current() *domain.UsageTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// LastError is the error of the most recent failed fetch, cleared by the next
// successful one.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Table returns the session table, loading it on first use from a fresh
// snapshot or from the source.
func (s *Session) Table(ctx context.Context) (*domain.UsageTable, error) {
	if t := s.Current(); t != nil {
		return t, nil
	}
	v, err, _ := s.group.Do("load", func() (any, error) {
		if t := s.Current(); t != nil {
			return t, nil
		}
		s.mu.Lock()
		force := s.invalidated
		s.mu.Unlock()
		return s.load(ctx, force)
	})
	table, _ := v.(*domain.UsageTable)
	if table != nil {
		if err != nil {
			s.logger.Warn("Serving stale snapshot", zap.String("version", table.Version), zap.Error(err))
		}
		return table, nil
	}
	return nil, err
}

// Refresh fetches from the source unconditionally and swaps the table in.
// When the fetch fails and an older table exists it stays in place and the
// error is a *StaleError.
func (s *Session) Refresh(ctx context.Context) (*domain.UsageTable, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.load(ctx, true)
	})
	table, _ := v.(*domain.UsageTable)
	return table, err
}

// Invalidate drops the in-memory table and share cache; the next call to
// Table fetches from the source, skipping stored snapshots.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = true
	s.table = nil
	s.shares = nil
	s.sharesVersion = ""
}

func (s *Session) install(table *domain.UsageTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table
	s.shares = make(map[string]cachedShares)
	s.sharesVersion = table.Version
	s.lastErr = nil
	s.invalidated = false
}

func (s *Session) load(ctx context.Context, force bool) (*domain.UsageTable, error) {
	if !force && s.db != nil && s.opts.MaxAge > 0 {
		snap, err := sqlite.LatestSnapshot(ctx, s.db)
		switch {
		case err == nil && s.reusable(snap):
			s.logger.Info("Loaded snapshot",
				zap.String("version", snap.Version),
				zap.Int("rows", snap.Len()),
				zap.Time("fetched_at", snap.FetchedAt))
			s.install(snap)
			return snap, nil
		case err != nil && !errors.Is(err, sqlite.ErrNoSnapshot):
			s.logger.Warn("Reading snapshot failed", zap.Error(err))
		}
	}

	table, err := s.fetch(ctx)
	if err != nil {
		prev := s.fallback(ctx)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		if prev != nil {
			return prev, &StaleError{Version: prev.Version, Err: err}
		}
		return nil, err
	}

	s.install(table)
	s.persist(ctx, table)
	return table, nil
}

func (s *Session) reusable(snap *domain.UsageTable) bool {
	if snap.CutoffYear != s.opts.Ingest.CutoffYear {
		return false
	}
	return s.opts.Now().Sub(snap.FetchedAt) < s.opts.MaxAge
}

// fallback returns the in-memory table, or any stored snapshot built with the
// same cutoff year.
func (s *Session) fallback(ctx context.Context) *domain.UsageTable {
	if t := s.Current(); t != nil {
		return t
	}
	if s.db == nil {
		return nil
	}
	snap, err := sqlite.LatestSnapshot(ctx, s.db)
	if err != nil || snap.CutoffYear != s.opts.Ingest.CutoffYear {
		return nil
	}
	s.install(snap)
	return snap
}

func (s *Session) fetch(ctx context.Context) (*domain.UsageTable, error) {
	start := s.opts.Now()
	raw, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.source.Name(), err)
	}
	records, stats, err := ingest.Normalize(raw, s.opts.Ingest)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.source.Name(), err)
	}

	table := &domain.UsageTable{
		Version:    uuid.NewString(),
		Source:     s.source.Name(),
		FetchedAt:  s.opts.Now(),
		CutoffYear: s.opts.Ingest.CutoffYear,
		Stats:      stats,
		Records:    records,
	}
	s.logger.Info("Fetched usage table",
		zap.String("version", table.Version),
		zap.String("source", table.Source),
		zap.Int("rows", stats.RowsRead),
		zap.Int("kept", len(records)),
		zap.Int("dropped", stats.Dropped()),
		zap.Duration("took", s.opts.Now().Sub(start)))
	return table, nil
}

func (s *Session) persist(ctx context.Context, table *domain.UsageTable) {
	if s.db == nil {
		return
	}
	if err := sqlite.SaveSnapshot(ctx, s.db, table); err != nil {
		s.logger.Error("Saving snapshot failed", zap.String("version", table.Version), zap.Error(err))
		return
	}
	if s.opts.Keep > 0 {
		removed, err := sqlite.PruneSnapshots(ctx, s.db, s.opts.Keep)
		if err != nil {
			s.logger.Warn("Pruning snapshots failed", zap.Error(err))
		} else if removed > 0 {
			s.logger.Debug("Pruned snapshots", zap.Int64("removed", removed))
		}
	}
}

// Shares returns the department shares for identifier, cached per table
// version.
func (s *Session) Shares(ctx context.Context, identifier string) ([]domain.DepartmentShare, bool, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return nil, false, err
	}
	shares, ok := s.sharesFor(table, identifier)
	return shares, ok, nil
}

func (s *Session) sharesFor(table *domain.UsageTable, identifier string) ([]domain.DepartmentShare, bool) {
	key := strings.ToLower(strings.TrimSpace(identifier))

	s.mu.Lock()
	if s.sharesVersion == table.Version {
		if c, hit := s.shares[key]; hit {
			s.mu.Unlock()
			return c.shares, c.ok
		}
	}
	s.mu.Unlock()

	shares, ok := allocation.ComputeShares(table, strings.TrimSpace(identifier))

	s.mu.Lock()
	if s.sharesVersion == table.Version && s.shares != nil {
		s.shares[key] = cachedShares{shares: shares, ok: ok}
	}
	s.mu.Unlock()
	return shares, ok
}

// Allocate runs an allocation against the session table using the share
// cache. Validation is the caller's job.
func (s *Session) Allocate(ctx context.Context, lines []domain.RequestLine) (domain.AllocationResult, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return domain.AllocationResult{}, err
	}
	result := allocation.AllocateWith(lines, func(id string) ([]domain.DepartmentShare, bool) {
		return s.sharesFor(table, id)
	})
	allocation.Annotate(table, &result)
	return result, nil
}

// Items lists unique item names in sheet order, optionally narrowed to names
// containing filter (case-insensitive).
func (s *Session) Items(ctx context.Context, filter string) ([]string, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	names := table.ItemNames()
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return names, nil
	}
	out := names[:0:0]
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), filter) {
			out = append(out, n)
		}
	}
	return out, nil
}
