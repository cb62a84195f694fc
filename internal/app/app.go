package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ingrealloc/internal/config"
	"ingrealloc/internal/httpx"
	"ingrealloc/internal/ingest"
	"ingrealloc/internal/integrations/sheets"
	"ingrealloc/internal/logging"
	"ingrealloc/internal/session"
	"ingrealloc/internal/storage/sqlite"
)

func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what PersistentPreRunE prepares for every subcommand.
type env struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
}

func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "ingrealloc",
		Short: "Split ingredient quantities across departments by historical usage",
		Long: `ingrealloc reads CHECK_OUT issuance records from a Google Sheet or CSV export,
computes each department's share of every item, and allocates requested
quantities in whole units.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default $CONFIG_PATH or config.yaml)")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCommand(e),
		newAllocateCommand(e),
		newItemsCommand(e),
		newRefreshCommand(e),
		newSnapshotsCommand(e),
		newTUICommand(e),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg

	// The terminal form owns the screen.
	if cmd.Name() == "tui" && !e.verbose {
		e.logger = zap.NewNop()
	} else {
		logger, err := logging.New(cfg.LogLevel, cfg.LogJSON, e.verbose)
		if err != nil {
			return err
		}
		e.logger = logger
	}

	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	e.logger.Debug("Config loaded",
		zap.String("source", cfg.Source),
		zap.String("worksheet", cfg.Worksheet),
		zap.Int("cutoff_year", cfg.CutoffYear),
		zap.Int("max_items", cfg.MaxItems),
		zap.String("db", cfg.DBPath),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("http_timeout", applied))
	return nil
}

// openDB opens the snapshot store, creating its directory if needed.
func (e *env) openDB() (*sql.DB, error) {
	if dir := filepath.Dir(e.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sqlite.InitDB(e.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	e.logger.Debug("Database initialized", zap.String("path", e.cfg.DBPath))
	return db, nil
}

// openSession wires source, snapshot store and session cache. The returned
// close func releases the database.
func (e *env) openSession() (*session.Session, func(), error) {
	src, err := sheets.New(e.cfg)
	if err != nil {
		return nil, nil, err
	}
	db, err := e.openDB()
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(src, db, session.Options{
		Ingest: ingest.Options{
			Schema:      e.cfg.Columns,
			CutoffYear:  e.cfg.CutoffYear,
			DateLayouts: e.cfg.DateLayouts,
			Location:    e.cfg.Location,
		},
		MaxAge: e.cfg.SnapshotMaxAge(),
		Keep:   e.cfg.SnapshotKeep,
	}, e.logger)
	return sess, func() { _ = db.Close() }, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
