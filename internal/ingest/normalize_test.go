package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var checkOutHeader = []string{
	"DATE", "ITEM_SERIAL", "ITEM NAME", "ISSUED_TO", "QUANTITY",
	"UNIT_OF_MEASURE", "ITEM_CATEGORY", "WEEK", "REFERENCE",
	"DEPARTMENT_CAT", "BATCH NO.", "STORE", "RECEIVED BY",
}

func checkOutRow(date, serial, name, qty, dept string) []string {
	return []string{date, serial, name, "Chef", qty, "KG", "DRY", "1", "REF", dept, "B1", "MAIN", "Sam"}
}

func TestNormalizeMapsColumnsByName(t *testing.T) {
	raw := RawSheet{
		Header: checkOutHeader,
		Rows: [][]string{
			checkOutRow("2024-01-15", "FL01", "Flour", "12.5", "Bakery"),
		},
	}

	records, stats, err := Normalize(raw, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "FL01", r.ItemSerial)
	assert.Equal(t, "Flour", r.ItemName)
	assert.Equal(t, "Bakery", r.Department)
	assert.Equal(t, 12.5, r.Quantity)
	assert.Equal(t, "KG", r.UnitOfMeasure)
	assert.Equal(t, "Chef", r.IssuedTo)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), r.Date)
	assert.Equal(t, "2024Q1", r.Quarter())
	assert.Equal(t, 1, stats.RowsRead)
	assert.Equal(t, 0, stats.Dropped())
}

func TestNormalizeDropsBadRows(t *testing.T) {
	raw := RawSheet{
		Header: checkOutHeader,
		Rows: [][]string{
			checkOutRow("2024-02-01", "FL01", "Flour", "abc", "Bakery"),
			checkOutRow("2024-02-01", "FL01", "Flour", "", "Bakery"),
			checkOutRow("not a date", "FL01", "Flour", "3", "Bakery"),
			checkOutRow("2023-12-31", "FL01", "Flour", "3", "Bakery"),
			checkOutRow("3/4/2024", "FL01", "Flour", "4", "Kitchen"),
			{"", "", "", ""},
		},
	}

	records, stats, err := Normalize(raw, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Kitchen", records[0].Department)
	assert.Equal(t, time.March, records[0].Date.Month())

	assert.Equal(t, 5, stats.RowsRead)
	assert.Equal(t, 2, stats.DroppedQuantity)
	assert.Equal(t, 1, stats.DroppedDate)
	assert.Equal(t, 1, stats.BeforeCutoff)
	assert.Equal(t, 4, stats.Dropped())
}

func TestNormalizeCutoffYearOption(t *testing.T) {
	raw := RawSheet{
		Header: checkOutHeader,
		Rows: [][]string{
			checkOutRow("2023-06-01", "FL01", "Flour", "1", "Bakery"),
			checkOutRow("2024-06-01", "FL01", "Flour", "1", "Bakery"),
		},
	}

	records, _, err := Normalize(raw, Options{CutoffYear: 2023})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestNormalizeMissingColumns(t *testing.T) {
	raw := RawSheet{
		Header: []string{"DATE", "ITEM NAME", "QUANTITY"},
		Rows:   [][]string{{"2024-01-01", "Flour", "1"}},
	}

	records, _, err := Normalize(raw, Options{})
	require.Error(t, err)
	assert.Nil(t, records)

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"ITEM_SERIAL", "DEPARTMENT_CAT"}, missing.Columns)
	assert.Contains(t, err.Error(), "ITEM_SERIAL, DEPARTMENT_CAT")
}

func TestNormalizeHeaderMatchIsLenient(t *testing.T) {
	raw := RawSheet{
		Header: []string{" date ", "item_serial", "Item Name", "department_cat", "Quantity"},
		Rows:   [][]string{{"2024-05-05", "S1", "Salt", "Bar", "2"}},
	}

	records, _, err := Normalize(raw, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].UnitOfMeasure)
}

func TestNormalizeCustomSchema(t *testing.T) {
	raw := RawSheet{
		Header: []string{"When", "Code", "Product", "Team", "Qty"},
		Rows:   [][]string{{"2024-05-05", "S1", "Salt", "Bar", "2"}, {"2024-05-06", "S1", "Salt"}},
	}
	schema := Schema{Date: "When", ItemSerial: "Code", ItemName: "Product", Department: "Team", Quantity: "Qty"}

	records, stats, err := Normalize(raw, Options{Schema: schema})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Bar", records[0].Department)
	assert.Equal(t, 1, stats.DroppedQuantity)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10", 10, true},
		{" 2.25 ", 2.25, true},
		{"0", 0, true},
		{"1,000", 0, false},
		{"-3", 0, false},
		{"NaN", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseQuantity(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-07-09", "2024/07/09", "7/9/2024", "9-Jul-2024", "Jul 9, 2024"} {
		got, ok := ParseDate(in, DefaultDateLayouts, nil)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
	}
	_, ok := ParseDate("yesterday", DefaultDateLayouts, nil)
	assert.False(t, ok)
}
