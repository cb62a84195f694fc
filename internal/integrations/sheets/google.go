package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2/google"

	"ingrealloc/internal/httpx"
	"ingrealloc/internal/ingest"
)

const (
	defaultSheetsEndpoint = "https://sheets.googleapis.com/v4"
	sheetsReadOnlyScope   = "https://www.googleapis.com/auth/spreadsheets.readonly"
)

// GoogleSheets reads one worksheet through the Sheets v4 values endpoint
// using a service account.
type GoogleSheets struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsJSON []byte

	// Endpoint and Client are overridden in tests.
	Endpoint string
	Client   *http.Client
}

func (s GoogleSheets) Name() string { return "google_sheets:" + s.Worksheet }

type valueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

func (s GoogleSheets) httpClient(ctx context.Context) (*http.Client, error) {
	if s.Client != nil {
		return s.Client, nil
	}
	conf, err := google.JWTConfigFromJSON(s.CredentialsJSON, sheetsReadOnlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	client := conf.Client(httpx.WithOAuth2Client(ctx))
	client.Timeout = httpx.Client().Timeout
	return client, nil
}

func (s GoogleSheets) Fetch(ctx context.Context) (ingest.RawSheet, error) {
	client, err := s.httpClient(ctx)
	if err != nil {
		return ingest.RawSheet{}, err
	}

	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultSheetsEndpoint
	}
	reqURL := fmt.Sprintf("%s/spreadsheets/%s/values/%s?majorDimension=ROWS&valueRenderOption=FORMATTED_VALUE",
		endpoint, url.PathEscape(s.SpreadsheetID), url.PathEscape(s.Worksheet))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ingest.RawSheet{}, fmt.Errorf("build sheets request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return ingest.RawSheet{}, fmt.Errorf("fetch worksheet %s: %w", s.Worksheet, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ingest.RawSheet{}, fmt.Errorf("fetch worksheet %s: status %d: %s", s.Worksheet, resp.StatusCode, string(body))
	}

	var vr valueRange
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return ingest.RawSheet{}, fmt.Errorf("decode worksheet %s: %w", s.Worksheet, err)
	}

	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return splitSheet(rows)
}
