package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"ingrealloc/internal/domain"
)

// DefaultDateLayouts covers the formats Google Sheets emits for date cells
// in common locales, plus ISO forms used by CSV exports.
var DefaultDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"2-Jan-2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// Options controls Normalize. Zero values fall back to defaults.
type Options struct {
	Schema      Schema
	CutoffYear  int
	DateLayouts []string
	Location    *time.Location
}

func (o Options) withDefaults() Options {
	o.Schema = o.Schema.WithDefaults()
	if o.CutoffYear == 0 {
		o.CutoffYear = domain.DefaultCutoffYear
	}
	if len(o.DateLayouts) == 0 {
		o.DateLayouts = DefaultDateLayouts
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Normalize maps raw rows onto usage records. Rows whose quantity or date does
// not parse are dropped, as are rows dated before the cutoff year; the counts
// end up in the returned stats. A missing required column fails the whole load
// before any row is read.
func Normalize(raw RawSheet, opts Options) ([]domain.UsageRecord, domain.LoadStats, error) {
	opts = opts.withDefaults()
	var stats domain.LoadStats

	cols, err := opts.Schema.resolve(raw.Header)
	if err != nil {
		return nil, stats, err
	}

	records := make([]domain.UsageRecord, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		if blankRow(row) {
			continue
		}
		stats.RowsRead++

		qty, ok := ParseQuantity(cell(row, cols.quantity))
		if !ok {
			stats.DroppedQuantity++
			continue
		}
		date, ok := ParseDate(cell(row, cols.date), opts.DateLayouts, opts.Location)
		if !ok {
			stats.DroppedDate++
			continue
		}
		if date.Year() < opts.CutoffYear {
			stats.BeforeCutoff++
			continue
		}

		records = append(records, domain.UsageRecord{
			Date:          date,
			ItemSerial:    cell(row, cols.serial),
			ItemName:      cell(row, cols.name),
			Department:    cell(row, cols.department),
			Quantity:      qty,
			UnitOfMeasure: cell(row, cols.unit),
			IssuedTo:      cell(row, cols.issuedTo),
		})
	}
	return records, stats, nil
}

func cell(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ParseQuantity accepts plain decimal numbers. Thousands separators, empty
// cells, NaN and negative values are rejected. A negative row is a return or
// stock adjustment; it is dropped and counted in LoadStats.DroppedQuantity
// rather than netted against the department's issuance, so shares reflect
// gross issuance only.
func ParseQuantity(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseDate tries each layout in order.
func ParseDate(s string, layouts []string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
