// Package ingest turns raw worksheet rows into a cleaned usage table.
package ingest

import (
	"fmt"
	"strings"
)

// RawSheet is a worksheet as returned by a source: the header row and the
// remaining rows as untyped cells.
type RawSheet struct {
	Header []string
	Rows   [][]string
}

// Schema names the header of each column the loader reads. Names are matched
// case-insensitively after trimming.
type Schema struct {
	Date       string `yaml:"date"`
	ItemSerial string `yaml:"item_serial"`
	ItemName   string `yaml:"item_name"`
	Department string `yaml:"department"`
	Quantity   string `yaml:"quantity"`

	// Optional columns; a missing optional column leaves the field empty.
	UnitOfMeasure string `yaml:"unit_of_measure"`
	IssuedTo      string `yaml:"issued_to"`
}

// DefaultSchema matches the CHECK_OUT worksheet.
func DefaultSchema() Schema {
	return Schema{
		Date:          "DATE",
		ItemSerial:    "ITEM_SERIAL",
		ItemName:      "ITEM NAME",
		Department:    "DEPARTMENT_CAT",
		Quantity:      "QUANTITY",
		UnitOfMeasure: "UNIT_OF_MEASURE",
		IssuedTo:      "ISSUED_TO",
	}
}

// WithDefaults fills every empty field from DefaultSchema.
func (s Schema) WithDefaults() Schema {
	d := DefaultSchema()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&s.Date, d.Date)
	fill(&s.ItemSerial, d.ItemSerial)
	fill(&s.ItemName, d.ItemName)
	fill(&s.Department, d.Department)
	fill(&s.Quantity, d.Quantity)
	fill(&s.UnitOfMeasure, d.UnitOfMeasure)
	fill(&s.IssuedTo, d.IssuedTo)
	return s
}

func (s Schema) required() []string {
	return []string{s.Date, s.ItemSerial, s.ItemName, s.Department, s.Quantity}
}

// MissingColumnsError lists every required column absent from a header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// columnIndex resolves schema names to header positions.
type columnIndex struct {
	date, serial, name, department, quantity int
	unit, issuedTo                           int // -1 when absent
}

func mapHeaders(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = i
	}
	return index
}

// resolve maps the schema onto header. It fails with *MissingColumnsError
// naming all absent required columns.
func (s Schema) resolve(header []string) (columnIndex, error) {
	index := mapHeaders(header)
	lookup := func(name string) int {
		if pos, ok := index[strings.ToLower(strings.TrimSpace(name))]; ok {
			return pos
		}
		return -1
	}

	var missing []string
	for _, name := range s.required() {
		if lookup(name) < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return columnIndex{}, &MissingColumnsError{Columns: missing}
	}

	return columnIndex{
		date:       lookup(s.Date),
		serial:     lookup(s.ItemSerial),
		name:       lookup(s.ItemName),
		department: lookup(s.Department),
		quantity:   lookup(s.Quantity),
		unit:       lookup(s.UnitOfMeasure),
		issuedTo:   lookup(s.IssuedTo),
	}, nil
}
