// Package config loads station, relay and API settings from defaults, an
// optional config file, a .env file and EVENTGUARD_* environment variables,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// EVENTGUARD_STORE_BACKEND for store.backend.
const EnvPrefix = "EVENTGUARD"

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// Transport backends.
const (
	TransportRelay  = "relay"
	TransportNATS   = "nats"
	TransportMemory = "memory"
)

type Config struct {
	Log       Log       `mapstructure:"log"`
	Store     Store     `mapstructure:"store"`
	Transport Transport `mapstructure:"transport"`
	Relay     Relay     `mapstructure:"relay"`
	API       API       `mapstructure:"api"`
	Station   Station   `mapstructure:"station"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Store selects where the two collections are persisted.
type Store struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	DSN         string `mapstructure:"dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	// BadgerDir empty means an in-memory badger instance.
	BadgerDir string `mapstructure:"badger_dir"`
}

type Transport struct {
	Backend   string `mapstructure:"backend"`
	RelayURL  string `mapstructure:"relay_url"`
	NATSURL   string `mapstructure:"nats_url"`
	Namespace string `mapstructure:"namespace"`
}

type Relay struct {
	Listen string `mapstructure:"listen"`
}

type API struct {
	Listen  string `mapstructure:"listen"`
	Release bool   `mapstructure:"release"`
}

type Station struct {
	Timezone    string `mapstructure:"timezone"`
	PhoneRegion string `mapstructure:"phone_region"`
}

// Location resolves Timezone; empty means the process-local zone.
func (s Station) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("station.timezone: %w", err)
	}
	return loc, nil
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Store: Store{
			Backend:     BackendSQLite,
			Path:        "eventguard.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "",
		},
		Transport: Transport{
			Backend:   TransportRelay,
			RelayURL:  "ws://localhost:9000/ws",
			NATSURL:   "nats://localhost:4222",
			Namespace: "eventguard",
		},
		Relay:   Relay{Listen: ":9000"},
		API:     API{Listen: ":8080"},
		Station: Station{PhoneRegion: "IN"},
	}
}

// Load builds a Config. path names an optional YAML/TOML/JSON config file;
// when empty, ./eventguard.{yaml,toml,json} is used if present. A .env file
// in the working directory is loaded into the environment first.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("eventguard")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and formats.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres, BackendRedis, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	switch c.Transport.Backend {
	case TransportRelay, TransportNATS, TransportMemory:
	default:
		return fmt.Errorf("transport.backend: unknown backend %q", c.Transport.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format)
	}
	if c.Transport.Namespace == "" {
		return fmt.Errorf("transport.namespace: must not be empty")
	}
	if _, err := c.Station.Location(); err != nil {
		return err
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_prefix", d.Store.RedisPrefix)
	v.SetDefault("store.badger_dir", d.Store.BadgerDir)
	v.SetDefault("transport.backend", d.Transport.Backend)
	v.SetDefault("transport.relay_url", d.Transport.RelayURL)
	v.SetDefault("transport.nats_url", d.Transport.NATSURL)
	v.SetDefault("transport.namespace", d.Transport.Namespace)
	v.SetDefault("relay.listen", d.Relay.Listen)
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.release", d.API.Release)
	v.SetDefault("station.timezone", d.Station.Timezone)
	v.SetDefault("station.phone_region", d.Station.PhoneRegion)
}
