package domain

import (
	"fmt"
	"time"
)

// DefaultCutoffYear is the first year of issuance history used for shares.
const DefaultCutoffYear = 2024

// UsageRecord is one issuance event from the CHECK_OUT sheet.
type UsageRecord struct {
	Date          time.Time
	ItemSerial    string
	ItemName      string
	Department    string
	Quantity      float64
	UnitOfMeasure string // optional column
	IssuedTo      string // optional column
}

// Quarter returns the calendar quarter label, e.g. "2024Q3".
func (r UsageRecord) Quarter() string {
	q := (int(r.Date.Month())-1)/3 + 1
	return fmt.Sprintf("%dQ%d", r.Date.Year(), q)
}

type LoadStats struct {
	RowsRead        int
	DroppedQuantity int // quantity did not parse
	DroppedDate     int // date did not parse
	BeforeCutoff    int
}

func (s LoadStats) Dropped() int {
	return s.DroppedQuantity + s.DroppedDate + s.BeforeCutoff
}

// UsageTable is the cleaned dataset. It is never mutated after construction;
// a refresh produces a new table with a new Version.
type UsageTable struct {
	Version    string
	Source     string
	FetchedAt  time.Time
	CutoffYear int
	Stats      LoadStats
	Records    []UsageRecord
}

func (t *UsageTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// ItemNames returns unique item names in sheet order.
func (t *UsageTable) ItemNames() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool, len(t.Records))
	var names []string
	for _, r := range t.Records {
		if r.ItemName == "" || seen[r.ItemName] {
			continue
		}
		seen[r.ItemName] = true
		names = append(names, r.ItemName)
	}
	return names
}

// UnitFor returns the first non-empty unit of measure among records accepted by match.
func (t *UsageTable) UnitFor(match func(UsageRecord) bool) string {
	if t == nil {
		return ""
	}
	for _, r := range t.Records {
		if r.UnitOfMeasure != "" && match(r) {
			return r.UnitOfMeasure
		}
	}
	return ""
}
