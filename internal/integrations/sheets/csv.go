package sheets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"ingrealloc/internal/httpx"
	"ingrealloc/internal/ingest"
)

// CSVFile reads a worksheet exported to disk.
type CSVFile struct {
	Path string
}

func (s CSVFile) Name() string { return "csv_file:" + s.Path }

func (s CSVFile) Fetch(ctx context.Context) (ingest.RawSheet, error) {
	if err := ctx.Err(); err != nil {
		return ingest.RawSheet{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return ingest.RawSheet{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()
	return readCSV(f)
}

// CSVURL downloads a published CSV export, e.g.
// https://docs.google.com/spreadsheets/d/<id>/gviz/tq?tqx=out:csv&sheet=CHECK_OUT
type CSVURL struct {
	URL    string
	Client *http.Client // nil uses the shared external client
}

func (s CSVURL) Name() string { return "csv_url" }

func (s CSVURL) Fetch(ctx context.Context) (ingest.RawSheet, error) {
	client := s.Client
	if client == nil {
		client = httpx.Client()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return ingest.RawSheet{}, fmt.Errorf("build csv request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return ingest.RawSheet{}, fmt.Errorf("download csv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ingest.RawSheet{}, fmt.Errorf("download csv: status %d: %s", resp.StatusCode, string(body))
	}
	return readCSV(resp.Body)
}
