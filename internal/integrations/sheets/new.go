package sheets

import (
	"fmt"
	"os"

	"ingrealloc/internal/config"
)

// New picks the source configured by cfg.Source.
func New(cfg config.Config) (Source, error) {
	switch cfg.Source {
	case config.SourceGoogleSheets:
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		return GoogleSheets{
			SpreadsheetID:   cfg.SpreadsheetID,
			Worksheet:       cfg.Worksheet,
			CredentialsJSON: creds,
		}, nil
	case config.SourceCSVURL:
		return CSVURL{URL: cfg.CSVURL}, nil
	case config.SourceCSVFile:
		return CSVFile{Path: cfg.CSVPath}, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func credentials(cfg config.Config) ([]byte, error) {
	if cfg.GoogleCredentialsFile != "" {
		data, err := os.ReadFile(cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		return data, nil
	}
	if data := cfg.ServiceAccount.JSON(); data != nil {
		return data, nil
	}
	return nil, fmt.Errorf("google_sheets source needs google_credentials_file or GOOGLE_* service account variables")
}
