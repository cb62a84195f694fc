// Package sqlite keeps fetched usage tables as snapshots so a restart does not
// need to hit the spreadsheet again.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"ingrealloc/internal/domain"
)

// insertBatchSize keeps multi-row inserts well under SQLite's bound
// parameter limit.
const insertBatchSize = 500

var ErrNoSnapshot = errors.New("no snapshot stored")

var recordColumns = []string{
	"snapshot_version", "seq", "issued_at", "item_serial", "item_name",
	"department", "quantity", "unit_of_measure", "issued_to",
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		version          TEXT PRIMARY KEY,
		source           TEXT NOT NULL,
		fetched_at       DATETIME NOT NULL,
		cutoff_year      INTEGER NOT NULL,
		rows_read        INTEGER NOT NULL DEFAULT 0,
		dropped_quantity INTEGER NOT NULL DEFAULT 0,
		dropped_date     INTEGER NOT NULL DEFAULT 0,
		before_cutoff    INTEGER NOT NULL DEFAULT 0,
		record_count     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON snapshots(fetched_at);

	CREATE TABLE IF NOT EXISTS usage_records (
		snapshot_version TEXT NOT NULL REFERENCES snapshots(version) ON DELETE CASCADE,
		seq              INTEGER NOT NULL,
		issued_at        DATETIME NOT NULL,
		item_serial      TEXT NOT NULL DEFAULT '',
		item_name        TEXT NOT NULL DEFAULT '',
		department       TEXT NOT NULL DEFAULT '',
		quantity         REAL NOT NULL,
		PRIMARY KEY (snapshot_version, seq)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Migration: optional sheet columns were added after the first release.
	for _, col := range []string{"unit_of_measure", "issued_to"} {
		var colCount int
		_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('usage_records') WHERE name = ?`, col).Scan(&colCount)
		if colCount == 0 {
			if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE usage_records ADD COLUMN %s TEXT NOT NULL DEFAULT ''`, col)); err != nil {
				db.Close()
				return nil, fmt.Errorf("add column %s: %w", col, err)
			}
		}
	}

	return db, nil
}

// SaveSnapshot stores the table and its records in one transaction.
func SaveSnapshot(ctx context.Context, db *sql.DB, table *domain.UsageTable) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sq.Insert("snapshots").
		Columns("version", "source", "fetched_at", "cutoff_year", "rows_read",
			"dropped_quantity", "dropped_date", "before_cutoff", "record_count").
		Values(table.Version, table.Source, table.FetchedAt.UTC(), table.CutoffYear, table.Stats.RowsRead,
			table.Stats.DroppedQuantity, table.Stats.DroppedDate, table.Stats.BeforeCutoff, len(table.Records)).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", table.Version, err)
	}

	for start := 0; start < len(table.Records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(table.Records))
		insert := sq.Insert("usage_records").Columns(recordColumns...)
		for i, r := range table.Records[start:end] {
			insert = insert.Values(table.Version, start+i, r.Date.UTC(), r.ItemSerial, r.ItemName,
				r.Department, r.Quantity, r.UnitOfMeasure, r.IssuedTo)
		}
		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert usage records %d-%d: %w", start, end, err)
		}
	}

	return tx.Commit()
}

// LatestSnapshot loads the most recently fetched snapshot.
func LatestSnapshot(ctx context.Context, db *sql.DB) (*domain.UsageTable, error) {
	var version string
	err := sq.Select("version").
		From("snapshots").
		OrderBy("fetched_at DESC").
		Limit(1).
		RunWith(db).
		QueryRowContext(ctx).
		Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return LoadSnapshot(ctx, db, version)
}

// LoadSnapshot loads one snapshot with its records in sheet order.
func LoadSnapshot(ctx context.Context, db *sql.DB, version string) (*domain.UsageTable, error) {
	table := &domain.UsageTable{Version: version}
	var recordCount int
	err := sq.Select("source", "fetched_at", "cutoff_year", "rows_read",
		"dropped_quantity", "dropped_date", "before_cutoff", "record_count").
		From("snapshots").
		Where(sq.Eq{"version": version}).
		RunWith(db).
		QueryRowContext(ctx).
		Scan(&table.Source, &table.FetchedAt, &table.CutoffYear, &table.Stats.RowsRead,
			&table.Stats.DroppedQuantity, &table.Stats.DroppedDate, &table.Stats.BeforeCutoff, &recordCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	rows, err := sq.Select("issued_at", "item_serial", "item_name", "department",
		"quantity", "unit_of_measure", "issued_to").
		From("usage_records").
		Where(sq.Eq{"snapshot_version": version}).
		OrderBy("seq").
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table.Records = make([]domain.UsageRecord, 0, recordCount)
	for rows.Next() {
		var r domain.UsageRecord
		if err := rows.Scan(&r.Date, &r.ItemSerial, &r.ItemName, &r.Department,
			&r.Quantity, &r.UnitOfMeasure, &r.IssuedTo); err != nil {
			return nil, err
		}
		table.Records = append(table.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(table.Records) != recordCount {
		return nil, fmt.Errorf("snapshot %s is incomplete: %d of %d records", version, len(table.Records), recordCount)
	}
	return table, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func PruneSnapshots(ctx context.Context, db *sql.DB, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	newest := sq.Select("version").From("snapshots").OrderBy("fetched_at DESC").Limit(uint64(keep))
	sub, args, err := newest.ToSql()
	if err != nil {
		return 0, err
	}

	res, err := sq.Delete("snapshots").
		Where(sq.Expr("version NOT IN ("+sub+")", args...)).
		RunWith(db).
		ExecContext(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SnapshotInfo is a snapshot row without its records.
type SnapshotInfo struct {
	Version     string
	Source      string
	FetchedAt   time.Time
	RecordCount int
}

func ListSnapshots(ctx context.Context, db *sql.DB) ([]SnapshotInfo, error) {
	rows, err := sq.Select("version", "source", "fetched_at", "record_count").
		From("snapshots").
		OrderBy("fetched_at DESC").
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var s SnapshotInfo
		if err := rows.Scan(&s.Version, &s.Source, &s.FetchedAt, &s.RecordCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
