package domain

// DepartmentShare is one department's slice of an item's historical usage.
type DepartmentShare struct {
	Department string
	Quantity   float64 // historical total issued to the department
	Percentage float64
}

type DepartmentAllocation struct {
	DepartmentShare
	Allocated int64
}

// RequestLine is one identifier/quantity pair of an allocation request.
type RequestLine struct {
	Identifier string
	Quantity   float64
}

// QuarterUsage is the historical quantity of one item issued in a quarter.
type QuarterUsage struct {
	Quarter  string // see UsageRecord.Quarter
	Quantity float64
}

type ItemAllocation struct {
	Identifier  string
	Requested   float64
	Unit        string
	Departments []DepartmentAllocation
	Quarters    []QuarterUsage // oldest first
}

// AllocatedTotal is the sum of rounded department quantities.
func (a ItemAllocation) AllocatedTotal() int64 {
	var total int64
	for _, d := range a.Departments {
		total += d.Allocated
	}
	return total
}

// Drift is the rounding difference between what was handed out and what was
// requested. It is reported, never corrected.
func (a ItemAllocation) Drift() float64 {
	return float64(a.AllocatedTotal()) - a.Requested
}

// AllocationResult keeps items in request order. Identifiers without history
// are absent from Items and listed in Unmatched.
type AllocationResult struct {
	DataVersion string
	Items       []ItemAllocation
	Unmatched   []string
}

func (r AllocationResult) Get(identifier string) (ItemAllocation, bool) {
	for _, it := range r.Items {
		if it.Identifier == identifier {
			return it, true
		}
	}
	return ItemAllocation{}, false
}

func (r AllocationResult) Empty() bool {
	return len(r.Items) == 0
}
