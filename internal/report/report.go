// Package report renders allocation results for terminals, files and JSON
// consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"ingrealloc/internal/domain"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatPretty   = "pretty"
	FormatJSON     = "json"
)

// Formats lists the accepted --format values.
var Formats = []string{FormatText, FormatMarkdown, FormatPretty, FormatJSON}

// Render writes result in the given format.
func Render(w io.Writer, result domain.AllocationResult, format string) error {
	switch format {
	case FormatText, "":
		_, err := io.WriteString(w, Text(result))
		return err
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(result))
		return err
	case FormatPretty:
		out, err := Pretty(Markdown(result), 100)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toJSON(result))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Title is the heading used for one item's table.
func Title(item domain.ItemAllocation) string {
	return "Allocation for " + item.Identifier
}

func Percent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func Quantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// Requested formats the requested quantity with the unit when known.
func Requested(item domain.ItemAllocation) string {
	if item.Unit == "" {
		return Quantity(item.Requested)
	}
	return Quantity(item.Requested) + " " + item.Unit
}

// Quarters formats quarterly usage as "2024Q1 5, 2024Q2 7".
func Quarters(quarters []domain.QuarterUsage) string {
	parts := make([]string, len(quarters))
	for i, q := range quarters {
		parts[i] = q.Quarter + " " + Quantity(q.Quantity)
	}
	return strings.Join(parts, ", ")
}

// Text renders fixed-width tables for terminals and logs.
func Text(result domain.AllocationResult) string {
	var b strings.Builder
	if result.Empty() {
		b.WriteString("No matching data found for the selected items!\n")
	}
	for _, item := range result.Items {
		title := Title(item)
		fmt.Fprintf(&b, "%s (requested %s)\n", title, Requested(item))
		fmt.Fprintf(&b, "%s\n", strings.Repeat("=", len(title)))
		fmt.Fprintf(&b, "%-24s %14s %18s\n", "Department", "Proportion (%)", "Allocated Quantity")
		fmt.Fprintf(&b, "%-24s %14s %18s\n", strings.Repeat("-", 24), strings.Repeat("-", 14), strings.Repeat("-", 18))
		for _, d := range item.Departments {
			fmt.Fprintf(&b, "%-24s %14s %18d\n", d.Department, Percent(d.Percentage), d.Allocated)
		}
		if drift := item.Drift(); drift != 0 {
			fmt.Fprintf(&b, "Rounding drift: %+g (allocated %d)\n", drift, item.AllocatedTotal())
		}
		if len(item.Quarters) > 0 {
			fmt.Fprintf(&b, "Usage by quarter: %s\n", Quarters(item.Quarters))
		}
		b.WriteString("\n")
	}
	if len(result.Unmatched) > 0 {
		fmt.Fprintf(&b, "No history: %s\n", strings.Join(result.Unmatched, ", "))
	}
	return b.String()
}

// Markdown renders one "Allocation for <item>" table per item.
func Markdown(result domain.AllocationResult) string {
	var b strings.Builder
	if result.Empty() {
		b.WriteString("_No matching data found for the selected items!_\n")
	}
	for _, item := range result.Items {
		fmt.Fprintf(&b, "## %s\n\n", Title(item))
		fmt.Fprintf(&b, "Requested: **%s**\n\n", Requested(item))
		b.WriteString("| Department | Proportion (%) | Allocated Quantity |\n")
		b.WriteString("|---|---:|---:|\n")
		for _, d := range item.Departments {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", escapeCell(d.Department), Percent(d.Percentage), d.Allocated)
		}
		if drift := item.Drift(); drift != 0 {
			fmt.Fprintf(&b, "\n_Rounding drift: %+g (allocated %d)_\n", drift, item.AllocatedTotal())
		}
		if len(item.Quarters) > 0 {
			fmt.Fprintf(&b, "\nUsage by quarter: %s\n", Quarters(item.Quarters))
		}
		b.WriteString("\n")
	}
	if len(result.Unmatched) > 0 {
		fmt.Fprintf(&b, "**No history:** %s\n", strings.Join(result.Unmatched, ", "))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Pretty renders markdown for a terminal with glamour.
func Pretty(markdown string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

type jsonResult struct {
	DataVersion string     `json:"data_version"`
	Items       []jsonItem `json:"items"`
	Unmatched   []string   `json:"unmatched,omitempty"`
}

type jsonItem struct {
	Identifier     string           `json:"identifier"`
	Requested      float64          `json:"requested"`
	Unit           string           `json:"unit,omitempty"`
	AllocatedTotal int64            `json:"allocated_total"`
	Drift          float64          `json:"drift"`
	Departments    []jsonDepartment `json:"departments"`
	Quarters       []jsonQuarter    `json:"quarters,omitempty"`
}

type jsonQuarter struct {
	Quarter  string  `json:"quarter"`
	Quantity float64 `json:"quantity"`
}

type jsonDepartment struct {
	Department string  `json:"department"`
	Historical float64 `json:"historical_quantity"`
	Percentage float64 `json:"percentage"`
	Allocated  int64   `json:"allocated"`
}

func toJSON(result domain.AllocationResult) jsonResult {
	out := jsonResult{DataVersion: result.DataVersion, Items: []jsonItem{}, Unmatched: result.Unmatched}
	for _, item := range result.Items {
		ji := jsonItem{
			Identifier:     item.Identifier,
			Requested:      item.Requested,
			Unit:           item.Unit,
			AllocatedTotal: item.AllocatedTotal(),
			Drift:          item.Drift(),
		}
		for _, d := range item.Departments {
			ji.Departments = append(ji.Departments, jsonDepartment{
				Department: d.Department,
				Historical: d.Quantity,
				Percentage: d.Percentage,
				Allocated:  d.Allocated,
			})
		}
		for _, q := range item.Quarters {
			ji.Quarters = append(ji.Quarters, jsonQuarter{Quarter: q.Quarter, Quantity: q.Quantity})
		}
		out.Items = append(out.Items, ji)
	}
	return out
}

// Extension maps a format to the file extension used by WriteReportFile.
func Extension(format string) string {
	switch format {
	case FormatJSON:
		return "json"
	case FormatMarkdown, FormatPretty:
		return "md"
	default:
		return "txt"
	}
}

func WriteReportFile(content, outputDir string, at time.Time, ext string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("allocation_%s.%s", at.Format("20060102_150405"), ext)
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}
