// Package allocation splits newly available stock across departments in
// proportion to their historical consumption of each item.
package allocation

import (
	"sort"
	"strings"

	"ingrealloc/internal/domain"
)

// Matches reports whether a record belongs to the item named by identifier.
// The identifier is compared case-insensitively against both the serial and
// the display name.
func Matches(r domain.UsageRecord, identifier string) bool {
	id := strings.ToLower(identifier)
	return strings.ToLower(r.ItemSerial) == id || strings.ToLower(r.ItemName) == id
}

// ComputeShares returns each department's percentage of the item's total
// historical quantity, highest first. ok is false when no record matches.
func ComputeShares(table *domain.UsageTable, identifier string) ([]domain.DepartmentShare, bool) {
	if table == nil {
		return nil, false
	}

	var shares []domain.DepartmentShare
	index := make(map[string]int)
	var total float64
	for _, r := range table.Records {
		if !Matches(r, identifier) {
			continue
		}
		pos, seen := index[r.Department]
		if !seen {
			pos = len(shares)
			index[r.Department] = pos
			shares = append(shares, domain.DepartmentShare{Department: r.Department})
		}
		shares[pos].Quantity += r.Quantity
		total += r.Quantity
	}
	if len(shares) == 0 {
		return nil, false
	}

	for i := range shares {
		// all-zero history yields 0% rather than NaN
		if total > 0 {
			shares[i].Percentage = shares[i].Quantity / total * 100
		}
	}
	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].Percentage > shares[j].Percentage
	})
	return shares, true
}
