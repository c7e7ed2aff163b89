package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventguard/internal/config"
	"github.com/roach88/eventguard/internal/model"
)

// createTestStore opens a sqlite store in a temp dir.
func createTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), config.Store{Backend: config.BackendSQLite, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

type backendCase struct {
	name  string
	slots func(t *testing.T) Slots
}

func backends() []backendCase {
	return []backendCase{
		{"memory", func(t *testing.T) Slots { return NewMemory() }},
		{"sqlite", func(t *testing.T) Slots {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "slots.db"))
			require.NoError(t, err)
			return s
		}},
		{"badger", func(t *testing.T) Slots {
			b, err := OpenBadger("")
			require.NoError(t, err)
			return b
		}},
		{"redis", func(t *testing.T) Slots {
			addr := os.Getenv("EVENTGUARD_TEST_REDIS")
			if addr == "" {
				t.Skip("EVENTGUARD_TEST_REDIS not set")
			}
			r, err := OpenRedis(context.Background(), addr, "test:"+t.Name()+":")
			require.NoError(t, err)
			return r
		}},
		{"postgres", func(t *testing.T) Slots {
			dsn := os.Getenv("EVENTGUARD_TEST_POSTGRES")
			if dsn == "" {
				t.Skip("EVENTGUARD_TEST_POSTGRES not set")
			}
			p, err := OpenPostgres(context.Background(), dsn)
			require.NoError(t, err)
			return p
		}},
	}
}

func TestSlotsContract(t *testing.T) {
	ctx := context.Background()
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			slots := bc.slots(t)
			defer slots.Close()
			require.NoError(t, slots.Delete(ctx, "k"))

			_, ok, err := slots.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok, "missing key")

			require.NoError(t, slots.Put(ctx, "k", []byte(`["one"]`)))
			v, ok, err := slots.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `["one"]`, string(v))

			require.NoError(t, slots.Put(ctx, "k", []byte(`["two"]`)))
			v, _, err = slots.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `["two"]`, string(v), "put overwrites")

			require.NoError(t, slots.Delete(ctx, "k"))
			_, ok, err = slots.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, slots.Delete(ctx, "never-written"), "deleting a missing key is not an error")
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	s, _ := createTestStore(t)

	guests, logs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, guests)
	assert.NotNil(t, logs)
	assert.Empty(t, guests)
	assert.Empty(t, logs)
}

func TestSaveAndReopen(t *testing.T) {
	ctx := context.Background()
	s, path := createTestStore(t)

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	g := model.Guest{ID: "A1", Name: "Alice", Category: "General"}
	g.SetCheckIn(model.Day1, at)
	log := model.ScanLog{
		ID: "l1", GuestID: "A1", GuestName: "Alice", Timestamp: at,
		Day: model.Day1, Status: model.StatusSuccess, Message: "Check-in Successful",
	}

	require.NoError(t, s.SaveGuests(ctx, []model.Guest{g}))
	require.NoError(t, s.SaveLogs(ctx, []model.ScanLog{log}))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, config.Store{Backend: config.BackendSQLite, Path: path})
	require.NoError(t, err)
	defer s2.Close()

	snap, err := s2.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Guests, 1)
	require.Len(t, snap.ScanLogs, 1)
	assert.Equal(t, "Alice", snap.Guests[0].Name)
	require.NotNil(t, snap.Guests[0].CheckInDay1)
	assert.True(t, at.Equal(*snap.Guests[0].CheckInDay1))
	assert.Nil(t, snap.Guests[0].CheckInDay2)
	assert.Equal(t, "l1", snap.ScanLogs[0].ID)
}

func TestSlotFormatIsJSONArray(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	s := New(mem)

	require.NoError(t, s.SaveGuests(ctx, nil))
	require.NoError(t, s.SaveLogs(ctx, nil))

	v, ok, err := mem.Get(ctx, KeyGuests)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(v))

	require.NoError(t, s.SaveGuests(ctx, []model.Guest{{ID: "A1", Name: "Alice", Category: "General"}}))
	v, _, err = mem.Get(ctx, KeyGuests)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"A1","name":"Alice","category":"General","checkInDay1":null,"checkInDay2":null}]`, string(v))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	s := New(mem)
	require.NoError(t, s.SaveGuests(ctx, []model.Guest{{ID: "A1", Name: "Alice"}}))
	require.NoError(t, s.SaveLogs(ctx, []model.ScanLog{{ID: "l1"}}))

	require.NoError(t, s.Clear(ctx))
	for _, key := range []string{KeyGuests, KeyLogs} {
		_, ok, err := mem.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestLoadCorruptSlot(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Put(ctx, KeyLogs, []byte("{not json")))

	_, _, err := New(mem).Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyLogs)
}

func TestSQLitePragmas(t *testing.T) {
	slots, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	defer slots.Close()

	mode, err := slots.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	timeout, err := slots.pragma("busy_timeout")
	require.NoError(t, err)
	assert.Equal(t, "5000", timeout)
}

func TestSQLiteReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 3; i++ {
		slots, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err, "open #%d", i)
		require.NoError(t, slots.Close())
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Store{Backend: "floppy"})
	assert.Error(t, err)
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Put(context.Background(), "k", nil), ErrClosed)
}
