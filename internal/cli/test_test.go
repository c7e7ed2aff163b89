package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: cli-smoke
description: A scan on a lone station succeeds
stations: [desk]
steps:
  - station: desk
    add_guest: {id: A1, name: Asha Menon}
  - station: desk
    scan: {guest: A1, day: 1}
    expect: {status: SUCCESS}
assertions:
  - type: guest
    station: desk
    guest: A1
    day: 1
    checked_in: true
`

const failingScenario = `name: cli-failing
description: Expects the wrong status
stations: [desk]
steps:
  - station: desk
    scan: {guest: NOPE, day: 1}
    expect: {status: SUCCESS}
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestFindScenarioFiles(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"host-one.yaml": passingScenario,
		"host-two.yml":  passingScenario,
		"scan.yaml":     passingScenario,
		"notes.txt":     "ignored",
	})

	all, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	hosts, err := findScenarioFiles(dir, "host-*")
	require.NoError(t, err)
	assert.Len(t, hosts, 2)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"smoke.yaml": passingScenario})
	golden := filepath.Join(filepath.Dir(dir), "golden", "cli-smoke.golden")

	out, err := runCLI(t, nil, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cli-smoke (golden updated)")
	require.FileExists(t, golden)

	out, err = runCLI(t, nil, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cli-smoke")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err = runCLI(t, nil, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"smoke.yaml":   passingScenario,
		"failing.yaml": failingScenario,
	})

	out, err := runCLI(t, nil, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandMissingDir(t *testing.T) {
	_, err := runCLI(t, nil, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandRunsBundledScenarios(t *testing.T) {
	out, err := runCLI(t, nil, "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios passed")
}
