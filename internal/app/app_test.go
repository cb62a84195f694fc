package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usageCSV = `DATE,ITEM_SERIAL,ITEM NAME,QUANTITY,DEPARTMENT_CAT,UNIT_OF_MEASURE
2024-01-05,FL01,Flour,30,Bakery,KG
2024-01-06,FL01,Flour,70,Kitchen,KG
2024-02-01,SU02,Sugar,10,Bar,KG
2023-11-01,SA03,Salt,4,Bar,KG
`

// writeConfig points a csv_file config at a fresh CSV and database.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "usage.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(usageCSV), 0644))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := strings.Join([]string{
		"source: csv_file",
		"csv_path: " + csvPath,
		"db_path: " + filepath.Join(dir, "data", "ingrealloc.db"),
		"log_level: error",
		"timezone: UTC",
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	return cfgPath, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAllocateCommandJSON(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "allocate", "--config", cfgPath, "--item", "flour=50", "--item", "caviar=2", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Items []struct {
			Identifier  string `json:"identifier"`
			Unit        string `json:"unit"`
			Departments []struct {
				Department string  `json:"department"`
				Percentage float64 `json:"percentage"`
				Allocated  int64   `json:"allocated"`
			} `json:"departments"`
		} `json:"items"`
		Unmatched []string `json:"unmatched"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "KG", got.Items[0].Unit)
	require.Len(t, got.Items[0].Departments, 2)
	assert.Equal(t, "Kitchen", got.Items[0].Departments[0].Department)
	assert.Equal(t, int64(35), got.Items[0].Departments[0].Allocated)
	assert.Equal(t, int64(15), got.Items[0].Departments[1].Allocated)
	assert.Equal(t, []string{"caviar"}, got.Unmatched)
}

func TestAllocateCommandTextArgsAndOut(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	reports := filepath.Join(dir, "reports")

	out, err := run(t, "allocate", "--config", cfgPath, "flour=10, sugar=3", "--out", reports)
	require.NoError(t, err)
	assert.Contains(t, out, "Allocation for flour")
	assert.Contains(t, out, "Allocation for sugar")
	assert.Contains(t, out, "Report saved to ")

	files, err := filepath.Glob(filepath.Join(reports, "allocation_*.txt"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestAllocateCommandSaveUsesReportOutputDir(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	saved := filepath.Join(dir, "saved")
	t.Setenv("REPORT_OUTPUT_DIR", saved)

	out, err := run(t, "allocate", "--config", cfgPath, "--item", "flour=10", "--format", "markdown", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Report saved to "+saved)

	files, err := filepath.Glob(filepath.Join(saved, "allocation_*.md"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestAllocateCommandValidation(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := run(t, "allocate", "--config", cfgPath, "--item", "flour=0")
	require.Error(t, err)
	assert.Equal(t, "Please select valid item(s) and enter a quantity.", err.Error())

	_, err = run(t, "allocate", "--config", cfgPath, "--item", "flour=1", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestItemsCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "items", "--config", cfgPath)
	require.NoError(t, err)
	// Salt only appears before the cutoff year.
	assert.Equal(t, "Flour\nSugar\n", out)

	out, err = run(t, "items", "--config", cfgPath, "--filter", "SUG")
	require.NoError(t, err)
	assert.Equal(t, "Sugar\n", out)
}

func TestRefreshAndSnapshotsCommands(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "refresh", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 3 records from csv_file:")
	assert.Contains(t, out, "1 before cutoff")

	out, err = run(t, "snapshots", "--config", cfgPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "VERSION"))
	assert.Contains(t, lines[1], "csv_file:")
}

func TestSnapshotsEmpty(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "snapshots", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "No snapshots stored.\n", out)
}

func TestServeRequiresSlackTokens(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_APP_TOKEN", "")

	_, err := run(t, "serve", "--config", cfgPath)
	require.Error(t, err)
}

func TestServeRejectsBadScheduleBeforeConnecting(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "xapp-test")
	t.Setenv("REFRESH_SCHEDULE", "61 * * * *")

	_, err := run(t, "serve", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh_schedule")
}
