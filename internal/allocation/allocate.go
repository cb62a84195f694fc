package allocation

import (
	"sort"

	"github.com/shopspring/decimal"

	"ingrealloc/internal/domain"
)

// ShareFunc resolves the department shares for an identifier. The session
// layer passes a cached implementation; Allocate uses ComputeShares directly.
type ShareFunc func(identifier string) ([]domain.DepartmentShare, bool)

// Allocate distributes every requested quantity over the departments that
// historically consumed the item. Identifiers without history are skipped and
// reported in Unmatched.
func Allocate(table *domain.UsageTable, lines []domain.RequestLine) domain.AllocationResult {
	result := AllocateWith(lines, func(id string) ([]domain.DepartmentShare, bool) {
		return ComputeShares(table, id)
	})
	Annotate(table, &result)
	return result
}

// Annotate stamps the data version, each item's unit of measure and its
// quarterly usage.
func Annotate(table *domain.UsageTable, result *domain.AllocationResult) {
	if table == nil {
		return
	}
	result.DataVersion = table.Version
	for i := range result.Items {
		id := result.Items[i].Identifier
		result.Items[i].Unit = table.UnitFor(func(r domain.UsageRecord) bool { return Matches(r, id) })
		result.Items[i].Quarters = QuarterlyUsage(table, id)
	}
}

// QuarterlyUsage totals the item's history per calendar quarter, oldest first.
func QuarterlyUsage(table *domain.UsageTable, identifier string) []domain.QuarterUsage {
	if table == nil {
		return nil
	}
	totals := make(map[string]float64)
	for _, r := range table.Records {
		if Matches(r, identifier) {
			totals[r.Quarter()] += r.Quantity
		}
	}
	quarters := make([]domain.QuarterUsage, 0, len(totals))
	for q, qty := range totals {
		quarters = append(quarters, domain.QuarterUsage{Quarter: q, Quantity: qty})
	}
	sort.Slice(quarters, func(i, j int) bool { return quarters[i].Quarter < quarters[j].Quarter })
	return quarters
}

func AllocateWith(lines []domain.RequestLine, shares ShareFunc) domain.AllocationResult {
	var result domain.AllocationResult
	for _, line := range lines {
		found, ok := shares(line.Identifier)
		if !ok {
			result.Unmatched = append(result.Unmatched, line.Identifier)
			continue
		}
		item := domain.ItemAllocation{
			Identifier:  line.Identifier,
			Requested:   line.Quantity,
			Departments: make([]domain.DepartmentAllocation, 0, len(found)),
		}
		var total float64
		for _, share := range found {
			total += share.Quantity
		}
		for _, share := range found {
			allocated := RoundUnits(line.Quantity, share.Percentage)
			if total > 0 {
				allocated = AllocateUnits(line.Quantity, share.Quantity, total)
			}
			item.Departments = append(item.Departments, domain.DepartmentAllocation{
				DepartmentShare: share,
				Allocated:       allocated,
			})
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// AllocateUnits returns quantity*part/total rounded to a whole unit, halves
// rounded away from zero (7.5 -> 8). The product is taken before dividing so
// exact ties stay exact. A non-positive total allocates nothing.
func AllocateUnits(quantity, part, total float64) int64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromFloat(quantity).
		Mul(decimal.NewFromFloat(part)).
		Div(decimal.NewFromFloat(total)).
		Round(0).
		IntPart()
}

// RoundUnits returns quantity*percentage/100 rounded like AllocateUnits.
func RoundUnits(quantity, percentage float64) int64 {
	return AllocateUnits(quantity, percentage, 100)
}
