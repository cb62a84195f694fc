package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ingrealloc/internal/domain"
	"ingrealloc/internal/ingest"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

// scheduleParser matches the five-field specs the refresh scheduler accepts.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const (
	SourceGoogleSheets = "google_sheets"
	SourceCSVURL       = "csv_url"
	SourceCSVFile      = "csv_file"
)

type Config struct {
	Source                string         `yaml:"source"`
	SpreadsheetID         string         `yaml:"spreadsheet_id"`
	Worksheet             string         `yaml:"worksheet"`
	GoogleCredentialsFile string         `yaml:"google_credentials_file"`
	ServiceAccount        ServiceAccount `yaml:"google_service_account"`
	CSVURL                string         `yaml:"csv_url"`
	CSVPath               string         `yaml:"csv_path"`

	Columns     ingest.Schema `yaml:"columns"`
	DateLayouts []string      `yaml:"date_layouts"`
	CutoffYear  int           `yaml:"cutoff_year"`
	MaxItems    int           `yaml:"max_items"`

	DBPath string `yaml:"db_path"`
	// SnapshotMaxAgeMinutes is nil when unset; 0 turns snapshot reuse off.
	SnapshotMaxAgeMinutes *int   `yaml:"snapshot_max_age_minutes"`
	SnapshotKeep          int    `yaml:"snapshot_keep"`
	RefreshSchedule       string `yaml:"refresh_schedule"`
	WatchCSVFile          bool   `yaml:"watch_csv_file"`

	ReportOutputDir            string `yaml:"report_output_dir"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	SlackAppToken   string `yaml:"slack_app_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// ServiceAccount mirrors a Google service account key file. Every field can
// come from a GOOGLE_* environment variable.
type ServiceAccount struct {
	ProjectID               string `yaml:"project_id" json:"project_id"`
	PrivateKeyID            string `yaml:"private_key_id" json:"private_key_id"`
	PrivateKey              string `yaml:"private_key" json:"private_key"`
	ClientEmail             string `yaml:"client_email" json:"client_email"`
	ClientID                string `yaml:"client_id" json:"client_id"`
	AuthURI                 string `yaml:"auth_uri" json:"auth_uri"`
	TokenURI                string `yaml:"token_uri" json:"token_uri"`
	AuthProviderX509CertURL string `yaml:"auth_provider_x509_cert_url" json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `yaml:"client_x509_cert_url" json:"client_x509_cert_url"`
}

// JSON renders the key file google.JWTConfigFromJSON expects, or nil when the
// key or client email is missing.
func (s ServiceAccount) JSON() []byte {
	if s.PrivateKey == "" || s.ClientEmail == "" {
		return nil
	}
	key := struct {
		Type string `json:"type"`
		ServiceAccount
	}{Type: "service_account", ServiceAccount: s}
	data, err := json.Marshal(key)
	if err != nil {
		return nil
	}
	return data
}

// Path returns the config file location: CONFIG_PATH, else ./config.yaml.
func Path() string {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return "config.yaml"
}

// Load reads .env, then the YAML file at path (missing is fine), then
// environment overrides, then fills defaults and validates.
func Load(path string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = Path()
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	envOverride(&cfg.Source, "SOURCE")
	envOverride(&cfg.SpreadsheetID, "SPREADSHEET_ID")
	envOverride(&cfg.Worksheet, "WORKSHEET")
	envOverride(&cfg.GoogleCredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	envOverride(&cfg.ServiceAccount.ProjectID, "GOOGLE_PROJECT_ID")
	envOverride(&cfg.ServiceAccount.PrivateKeyID, "GOOGLE_PRIVATE_KEY_ID")
	envOverride(&cfg.ServiceAccount.PrivateKey, "GOOGLE_PRIVATE_KEY")
	envOverride(&cfg.ServiceAccount.ClientEmail, "GOOGLE_CLIENT_EMAIL")
	envOverride(&cfg.ServiceAccount.ClientID, "GOOGLE_CLIENT_ID")
	envOverride(&cfg.ServiceAccount.AuthURI, "GOOGLE_AUTH_URI")
	envOverride(&cfg.ServiceAccount.TokenURI, "GOOGLE_TOKEN_URI")
	envOverride(&cfg.ServiceAccount.AuthProviderX509CertURL, "GOOGLE_AUTH_PROVIDER_X509_CERT_URL")
	envOverride(&cfg.ServiceAccount.ClientX509CertURL, "GOOGLE_CLIENT_X509_CERT_URL")
	envOverride(&cfg.CSVURL, "CSV_URL")
	envOverride(&cfg.CSVPath, "CSV_PATH")
	errs = append(errs, envOverrideInt(&cfg.CutoffYear, "CUTOFF_YEAR"))
	errs = append(errs, envOverrideInt(&cfg.MaxItems, "MAX_ITEMS"))
	envOverride(&cfg.DBPath, "DB_PATH")
	errs = append(errs, envOverrideIntPtr(&cfg.SnapshotMaxAgeMinutes, "SNAPSHOT_MAX_AGE_MINUTES"))
	errs = append(errs, envOverrideInt(&cfg.SnapshotKeep, "SNAPSHOT_KEEP"))
	envOverrideAllowEmpty(&cfg.RefreshSchedule, "REFRESH_SCHEDULE")
	envOverrideBool(&cfg.WatchCSVFile, "WATCH_CSV_FILE")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverrideBool(&cfg.LogJSON, "LOG_JSON")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if layouts := os.Getenv("DATE_LAYOUTS"); layouts != "" {
		cfg.DateLayouts = nil
		for _, l := range strings.Split(layouts, ";") {
			l = strings.TrimSpace(l)
			if l != "" {
				cfg.DateLayouts = append(cfg.DateLayouts, l)
			}
		}
	}

	// .env files store the PEM key on one line with literal \n sequences.
	cfg.ServiceAccount.PrivateKey = strings.ReplaceAll(cfg.ServiceAccount.PrivateKey, `\n`, "\n")

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Source == "" {
		cfg.Source = SourceGoogleSheets
	}
	if cfg.Worksheet == "" {
		cfg.Worksheet = "CHECK_OUT"
	}
	cfg.Columns = cfg.Columns.WithDefaults()
	if len(cfg.DateLayouts) == 0 {
		cfg.DateLayouts = ingest.DefaultDateLayouts
	}
	if cfg.CutoffYear == 0 {
		cfg.CutoffYear = domain.DefaultCutoffYear
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 10
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./ingrealloc.db"
	}
	if cfg.SnapshotMaxAgeMinutes == nil {
		minutes := 60
		cfg.SnapshotMaxAgeMinutes = &minutes
	}
	if cfg.SnapshotKeep == 0 {
		cfg.SnapshotKeep = 5
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	switch c.Source {
	case SourceGoogleSheets:
		if c.SpreadsheetID == "" {
			return fmt.Errorf("spreadsheet_id is required when source=%s", SourceGoogleSheets)
		}
		if c.GoogleCredentialsFile == "" && c.ServiceAccount.JSON() == nil {
			return fmt.Errorf("source=%s needs google_credentials_file or GOOGLE_PRIVATE_KEY and GOOGLE_CLIENT_EMAIL", SourceGoogleSheets)
		}
	case SourceCSVURL:
		if c.CSVURL == "" {
			return fmt.Errorf("csv_url is required when source=%s", SourceCSVURL)
		}
	case SourceCSVFile:
		if c.CSVPath == "" {
			return fmt.Errorf("csv_path is required when source=%s", SourceCSVFile)
		}
	default:
		return fmt.Errorf("source must be '%s', '%s' or '%s', got '%s'", SourceGoogleSheets, SourceCSVURL, SourceCSVFile, c.Source)
	}

	if c.WatchCSVFile && c.Source != SourceCSVFile {
		return fmt.Errorf("watch_csv_file requires source=%s", SourceCSVFile)
	}
	if c.CutoffYear < 1900 || c.CutoffYear > 9999 {
		return fmt.Errorf("invalid cutoff_year '%d'", c.CutoffYear)
	}
	if c.MaxItems < 1 {
		return fmt.Errorf("invalid max_items '%d': must be >= 1", c.MaxItems)
	}
	if c.SnapshotMaxAgeMinutes != nil && *c.SnapshotMaxAgeMinutes < 0 {
		return fmt.Errorf("invalid snapshot_max_age_minutes '%d': must be >= 0", *c.SnapshotMaxAgeMinutes)
	}
	if c.SnapshotKeep < 1 {
		return fmt.Errorf("invalid snapshot_keep '%d': must be >= 1", c.SnapshotKeep)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.RefreshSchedule != "" {
		if _, err := scheduleParser.Parse(strings.TrimSpace(c.RefreshSchedule)); err != nil {
			return fmt.Errorf("invalid refresh_schedule '%s': %w", c.RefreshSchedule, err)
		}
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// ValidateSlack reports the missing tokens needed by the Slack bot.
func (c Config) ValidateSlack() error {
	required := []struct{ name, val string }{
		{"slack_bot_token", c.SlackBotToken},
		{"slack_app_token", c.SlackAppToken},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", r.name)
		}
	}
	return nil
}

func (c Config) SnapshotMaxAge() time.Duration {
	if c.SnapshotMaxAgeMinutes == nil {
		return 0
	}
	return time.Duration(*c.SnapshotMaxAgeMinutes) * time.Minute
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideIntPtr(field **int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = &parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}
