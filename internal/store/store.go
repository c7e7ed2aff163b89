package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/roach88/eventguard/internal/config"
	"github.com/roach88/eventguard/internal/model"
)

// Slot keys. The _v1 suffix versions the JSON shape of each collection.
const (
	KeyGuests = "eventguard_guests_v1"
	KeyLogs   = "eventguard_logs_v1"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("store closed")

// Slots is a string-keyed blob store. Get reports ok=false for a missing key.
type Slots interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store reads and writes the two collections through a Slots backend.
type Store struct {
	slots Slots
}

// New wraps a backend.
func New(slots Slots) *Store {
	return &Store{slots: slots}
}

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Store) (*Store, error) {
	var (
		slots Slots
		err   error
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		slots, err = OpenSQLite(ctx, cfg.Path)
	case config.BackendPostgres:
		slots, err = OpenPostgres(ctx, cfg.DSN)
	case config.BackendRedis:
		slots, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case config.BackendBadger:
		slots, err = OpenBadger(cfg.BadgerDir)
	case config.BackendMemory:
		slots = NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return New(slots), nil
}

// Load reads both collections. Missing slots yield empty, non-nil slices.
func (s *Store) Load(ctx context.Context) ([]model.Guest, []model.ScanLog, error) {
	guests := []model.Guest{}
	if err := s.load(ctx, KeyGuests, &guests); err != nil {
		return nil, nil, err
	}
	logs := []model.ScanLog{}
	if err := s.load(ctx, KeyLogs, &logs); err != nil {
		return nil, nil, err
	}
	if guests == nil {
		guests = []model.Guest{}
	}
	if logs == nil {
		logs = []model.ScanLog{}
	}
	return guests, logs, nil
}

// LoadSnapshot is Load packaged as a Snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	guests, logs, err := s.Load(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{Guests: guests, ScanLogs: logs}, nil
}

// SaveGuests overwrites the Guests slot.
func (s *Store) SaveGuests(ctx context.Context, guests []model.Guest) error {
	if guests == nil {
		guests = []model.Guest{}
	}
	return s.save(ctx, KeyGuests, guests)
}

// SaveLogs overwrites the ScanLogs slot.
func (s *Store) SaveLogs(ctx context.Context, logs []model.ScanLog) error {
	if logs == nil {
		logs = []model.ScanLog{}
	}
	return s.save(ctx, KeyLogs, logs)
}

// Clear deletes both slots.
func (s *Store) Clear(ctx context.Context) error {
	return multierr.Combine(
		s.slots.Delete(ctx, KeyGuests),
		s.slots.Delete(ctx, KeyLogs),
	)
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.slots == nil {
		return nil
	}
	return s.slots.Close()
}

func (s *Store) load(ctx context.Context, key string, dst any) error {
	data, ok, err := s.slots.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.slots.Put(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
