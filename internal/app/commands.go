package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ingrealloc/internal/allocation"
	"ingrealloc/internal/domain"
	"ingrealloc/internal/refresh"
	"ingrealloc/internal/report"
	"ingrealloc/internal/storage/sqlite"
	"ingrealloc/internal/tui"
)

func newAllocateCommand(e *env) *cobra.Command {
	var (
		items  []string
		format string
		outDir string
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "allocate [NAME=QTY, ...]",
		Short: "Allocate quantities across departments",
		Example: `  ingrealloc allocate --item Flour=50 --item Sugar=12.5
  ingrealloc allocate "flour=50, sugar=12.5" --format markdown --out ./reports
  ingrealloc allocate --item Flour=50 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(report.Formats, format) {
				return fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(report.Formats, ", "))
			}
			lines, err := requestFromFlags(items, args)
			if err != nil {
				return err
			}
			if err := allocation.Validate(lines, e.cfg.MaxItems); err != nil {
				return errors.New(allocation.UserMessage(err))
			}

			sess, closeDB, err := e.openSession()
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := sess.Allocate(commandContext(cmd), lines)
			if err != nil {
				return err
			}
			if save && outDir == "" {
				outDir = e.cfg.ReportOutputDir
			}
			return writeResult(cmd.OutOrStdout(), result, format, outDir)
		},
	}
	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "item to allocate as NAME=QTY (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatText, "output format: "+strings.Join(report.Formats, "|"))
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "also write the report to a file in this directory")
	cmd.Flags().BoolVar(&save, "save", false, "also write the report to report_output_dir")
	return cmd
}

// requestFromFlags merges --item flags with free-text arguments.
func requestFromFlags(items, args []string) ([]domain.RequestLine, error) {
	var lines []domain.RequestLine
	for _, it := range items {
		line, err := allocation.ParseRequestLine(it)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if len(args) > 0 {
		parsed, err := allocation.ParseRequest(strings.Join(args, "\n"))
		if err != nil {
			return nil, err
		}
		lines = append(lines, parsed...)
	}
	return allocation.NewRequest(lines), nil
}

func writeResult(w io.Writer, result domain.AllocationResult, format, outDir string) error {
	var buf bytes.Buffer
	if err := report.Render(&buf, result, format); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	if outDir == "" {
		return nil
	}
	path, err := report.WriteReportFile(buf.String(), outDir, time.Now(), report.Extension(format))
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(w, "Report saved to %s\n", path)
	return nil
}

func newItemsCommand(e *env) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List items with usage history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeDB, err := e.openSession()
			if err != nil {
				return err
			}
			defer closeDB()

			items, err := sess.Items(commandContext(cmd), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items found.")
				return nil
			}
			for _, name := range items {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only items whose name contains this text")
	return cmd
}

func newRefreshCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the source now and store a new snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeDB, err := e.openSession()
			if err != nil {
				return err
			}
			defer closeDB()

			res := refresh.Run(commandContext(cmd), sess)
			fmt.Fprintln(cmd.OutOrStdout(), refresh.FormatSummary(res))
			return res.Err
		},
	}
}

func newSnapshotsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := e.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			snaps, err := sqlite.ListSnapshots(commandContext(cmd), db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No snapshots stored.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tFETCHED\tRECORDS\tSOURCE")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Version, s.FetchedAt.In(e.cfg.Location).Format("2006-01-02 15:04"), s.RecordCount, s.Source)
			}
			return tw.Flush()
		},
	}
}

func newTUICommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive allocation form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeDB, err := e.openSession()
			if err != nil {
				return err
			}
			defer closeDB()
			return tui.Run(commandContext(cmd), sess, e.cfg.MaxItems)
		},
	}
}
