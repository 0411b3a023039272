// Package config is the JSON-file-backed application configuration,
// grounded on pkg/config/config.go's nested-section-struct-plus-
// DefaultConfig-plus-LoadConfig shape, generalized from a single MySQL-
// wire-protocol server's knobs to this repo's backend/pool/sync/binary/
// track sections.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kasuganosora/syncbase/internal/binary"
	"github.com/kasuganosora/syncbase/internal/pool"
	"github.com/kasuganosora/syncbase/internal/sync"
	"github.com/kasuganosora/syncbase/internal/track"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Backend BackendConfig `json:"backend"`
	Pool    PoolConfig    `json:"pool"`
	Sync    SyncConfig    `json:"sync"`
	Binary  BinaryConfig  `json:"binary"`
	Track   TrackConfig   `json:"track"`
}

// ServerConfig configures the HTTP external interface.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ConfigDir    string        `json:"config_dir"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// Addr returns the host:port the HTTP server should listen on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BackendConfig names the authoritative SQL backend the Access Client
// opens: one of "mysql", "postgres", "sqlite", each resolving to the
// matching internal/query.Dialect and database/sql driver name.
type BackendConfig struct {
	Driver string `json:"driver"` // mysql | postgres | sqlite
	DSN    string `json:"dsn"`
}

// PoolConfig mirrors internal/pool.Config, the connection-pool knobs
// applied to every backend handle the registry opens.
type PoolConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// ToPoolConfig converts to internal/pool.Config.
func (c PoolConfig) ToPoolConfig() pool.Config {
	return pool.Config{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// SyncConfig mirrors internal/sync.Config: the tables the Sync Engine
// moves changes for, and any masked columns excluded from conflict
// comparison and history.
type SyncConfig struct {
	Tables []string            `json:"tables"`
	Masked map[string][]string `json:"masked"`
}

// ToSyncConfig converts to internal/sync.Config.
func (c SyncConfig) ToSyncConfig() sync.Config {
	return sync.Config{Tables: c.Tables, Masked: c.Masked}
}

// BinaryConfig mirrors internal/binary.Config's JSON-expressible fields
// (NewHash is a func value and stays at its Go default, md5, unless the
// caller overrides it in code after loading).
type BinaryConfig struct {
	Root        string `json:"root"`
	PathPattern string `json:"path_pattern"`
}

// ToBinaryConfig converts to internal/binary.Config.
func (c BinaryConfig) ToBinaryConfig() binary.Config {
	return binary.Config{Root: c.Root, PathPattern: c.PathPattern}
}

// TrackConfig mirrors internal/track.Config.
type TrackConfig struct {
	Include     []string `json:"include"`
	Exclude     []string `json:"exclude"`
	StrictActor bool     `json:"strict_actor"`
}

// ToTrackConfig converts to internal/track.Config. masked is shared with
// the sync engine (SyncConfig.Masked) so a masked column is excluded from
// history the same way it's excluded from conflict comparison.
func (c TrackConfig) ToTrackConfig(masked map[string][]string) track.Config {
	return track.Config{Include: c.Include, Exclude: c.Exclude, StrictActor: c.StrictActor, Masked: masked}
}

// DefaultConfig returns sane defaults for a single-process sqlite
// deployment, the lightest path to "it runs".
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ConfigDir:    "./config",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Backend: BackendConfig{
			Driver: "sqlite",
			DSN:    "syncbase.db",
		},
		Pool: PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Sync: SyncConfig{
			Tables: []string{},
			Masked: map[string][]string{},
		},
		Binary: BinaryConfig{
			Root:        "./data/binary",
			PathPattern: binary.DefaultPathPattern,
		},
		Track: TrackConfig{
			StrictActor: true,
		},
	}
}

// Load reads and parses a JSON config file, starting from DefaultConfig
// so an omitted section keeps its default, then validates the result. An
// empty path returns DefaultConfig() unchanged.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: file does not exist: %s", path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault tries SYNCBASE_CONFIG then ./config.json, falling back to
// DefaultConfig on any failure — an env var, then common relative paths,
// search order.
func LoadOrDefault() *Config {
	if envPath := os.Getenv("SYNCBASE_CONFIG"); envPath != "" {
		if cfg, err := Load(envPath); err == nil {
			return cfg
		}
	}
	if cfg, err := Load("config.json"); err == nil {
		return cfg
	}
	return DefaultConfig()
}

// Save writes cfg to path as indented JSON, overwriting any existing file.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", cfg.Server.Port)
	}
	switch cfg.Backend.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown backend driver %q", cfg.Backend.Driver)
	}
	if cfg.Pool.MaxOpenConns < 1 {
		return fmt.Errorf("config: pool.max_open_conns must be > 0")
	}
	if cfg.Pool.MaxIdleConns < 1 {
		return fmt.Errorf("config: pool.max_idle_conns must be > 0")
	}
	if cfg.Binary.Root == "" {
		return fmt.Errorf("config: binary.root must be set")
	}
	return nil
}
