package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventguard/internal/config"
	"github.com/roach88/eventguard/internal/store"
)

const guestsCSV = `id,name,email,category
G1,Asha Menon,asha@example.com,VIP
G2,Ravi Kumar,ravi@example.com,General
`

// testConfig returns a configuration backed by a sqlite file in a fresh
// temporary directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "eventguard.db")
	cfg.Transport.Backend = config.TransportMemory
	cfg.Station.Timezone = "UTC"
	return &cfg
}

// runCLI executes args against cfg and returns stdout.
func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestImportAndListGuests(t *testing.T) {
	cfg := testConfig(t)
	file := writeFile(t, "guests.csv", guestsCSV)

	out, err := runCLI(t, cfg, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 guests (0 skipped, 0 unreadable rows)")

	out, err = runCLI(t, cfg, "import", file, "--format", "json")
	require.NoError(t, err)
	var rep struct {
		Added   int `json:"added"`
		Skipped int `json:"skipped"`
	}
	decodeData(t, out, &rep)
	assert.Equal(t, 0, rep.Added)
	assert.Equal(t, 2, rep.Skipped)

	out, err = runCLI(t, cfg, "guests")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Asha Menon")
	assert.Contains(t, out, "Ravi Kumar")

	out, err = runCLI(t, cfg, "guests", "ravi")
	require.NoError(t, err)
	assert.Contains(t, out, "Ravi Kumar")
	assert.NotContains(t, out, "Asha Menon")
}

func TestScanCommand(t *testing.T) {
	cfg := testConfig(t)
	_, err := runCLI(t, cfg, "import", writeFile(t, "guests.csv", guestsCSV))
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "scan", "G1", "--day", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[SUCCESS] Welcome, Asha Menon")

	out, err = runCLI(t, cfg, "scan", "G1", "--day", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "[DUPLICATE] Already checked in Day 1")

	out, err = runCLI(t, cfg, "scan", "NOPE", "--day", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "[ERROR] Unknown Ticket ID")

	_, err = runCLI(t, cfg, "scan", "G1", "--day", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = runCLI(t, cfg, "stats", "--format", "json")
	require.NoError(t, err)
	var st struct {
		TotalGuests   int            `json:"totalGuests"`
		CheckedInDay1 int            `json:"checkedInDay1"`
		TotalLogs     int            `json:"totalLogs"`
		LogsByStatus  map[string]int `json:"logsByStatus"`
	}
	decodeData(t, out, &st)
	assert.Equal(t, 2, st.TotalGuests)
	assert.Equal(t, 1, st.CheckedInDay1)
	assert.Equal(t, 3, st.TotalLogs)
	assert.Equal(t, map[string]int{"SUCCESS": 1, "DUPLICATE": 1, "ERROR": 1}, st.LogsByStatus)
}

func TestGuestAddAndDelete(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCLI(t, cfg, "guests", "add", "--id", "TCK-1", "--name", "Priya Rao", "--email", "priya@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Added Priya Rao (TCK-1)")

	_, err = runCLI(t, cfg, "guests", "add", "--id", "TCK-1", "--name", "Someone Else")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guest already exists")

	_, err = runCLI(t, cfg, "scan", "TCK-1")
	require.NoError(t, err)

	out, err = runCLI(t, cfg, "guests", "delete", "TCK-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted TCK-1 (1 logs removed)")

	_, err = runCLI(t, cfg, "guests", "delete", "TCK-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guest not found")
}

func TestExportAndMergeLogs(t *testing.T) {
	file := writeFile(t, "guests.csv", guestsCSV)

	deskA := testConfig(t)
	_, err := runCLI(t, deskA, "import", file)
	require.NoError(t, err)
	_, err = runCLI(t, deskA, "scan", "G2", "--day", "2")
	require.NoError(t, err)

	export := filepath.Join(t.TempDir(), "desk-a.json")
	out, err := runCLI(t, deskA, "logs", "--export", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 logs")

	deskB := testConfig(t)
	_, err = runCLI(t, deskB, "import", file)
	require.NoError(t, err)

	out, err = runCLI(t, deskB, "merge-logs", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Merged 1 new logs, 1 guests updated")

	out, err = runCLI(t, deskB, "merge-logs", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Merged 0 new logs, 0 guests updated")

	out, err = runCLI(t, deskB, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "G2")
}

func TestLogsEmpty(t *testing.T) {
	out, err := runCLI(t, testConfig(t), "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "No scans yet.")
}

func TestResetCommand(t *testing.T) {
	cfg := testConfig(t)
	_, err := runCLI(t, cfg, "import", writeFile(t, "guests.csv", guestsCSV))
	require.NoError(t, err)

	_, err = runCLI(t, cfg, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := runCLI(t, cfg, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Station reset")

	out, err = runCLI(t, cfg, "guests")
	require.NoError(t, err)
	assert.Contains(t, out, "No guests found.")
}

func TestUnreadableStoreIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	slots, err := store.OpenSQLite(ctx, cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, slots.Put(ctx, store.KeyGuests, []byte("{not json")))
	require.NoError(t, slots.Close())

	_, err = runCLI(t, cfg, "import", writeFile(t, "guests.csv", guestsCSV))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load store")

	slots, err = store.OpenSQLite(ctx, cfg.Store.Path)
	require.NoError(t, err)
	defer slots.Close()
	raw, ok, err := slots.Get(ctx, store.KeyGuests)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "{not json", string(raw))
}

func TestMergeLogsRejectsGarbage(t *testing.T) {
	_, err := runCLI(t, testConfig(t), "merge-logs", writeFile(t, "bad.json", "not json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNewFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, backend := range []string{config.TransportRelay, config.TransportNATS, config.TransportMemory} {
		f, err := newFactory(config.Transport{Backend: backend, Namespace: "eventguard"}, logger)
		require.NoError(t, err, backend)
		assert.NotNil(t, f, backend)
	}

	_, err := newFactory(config.Transport{Backend: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}
