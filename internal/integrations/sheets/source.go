// Package sheets fetches the raw CHECK_OUT worksheet from wherever it lives:
// the Google Sheets API, a published CSV export, or a local CSV file.
package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"ingrealloc/internal/ingest"
)

// Source yields the worksheet as header plus rows.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (ingest.RawSheet, error)
}

var ErrEmptySheet = errors.New("worksheet has no header row")

// splitSheet treats the first non-empty row as the header.
func splitSheet(rows [][]string) (ingest.RawSheet, error) {
	for i, row := range rows {
		if len(strings.Join(row, "")) == 0 {
			continue
		}
		return ingest.RawSheet{Header: row, Rows: rows[i+1:]}, nil
	}
	return ingest.RawSheet{}, ErrEmptySheet
}

func readCSV(r io.Reader) (ingest.RawSheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return ingest.RawSheet{}, fmt.Errorf("parse csv: %w", err)
	}
	return splitSheet(rows)
}
