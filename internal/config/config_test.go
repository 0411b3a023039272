package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, validate(cfg))
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 9090
	cfg.Backend.Driver = "postgres"
	cfg.Backend.DSN = "postgres://localhost/db"
	cfg.Sync.Tables = []string{"widgets"}

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "postgres", loaded.Backend.Driver)
	assert.Equal(t, []string{"widgets"}, loaded.Sync.Tables)
}

func TestLoad_RejectsInvalidBackendDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := DefaultConfig()
	cfg.Backend.Driver = "oracle"
	require.NoError(t, Save(cfg, path))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := DefaultConfig()
	cfg.Server.Port = 70000
	require.NoError(t, Save(cfg, path))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestServerConfig_Addr(t *testing.T) {
	sc := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", sc.Addr())
}

func TestSectionConversions(t *testing.T) {
	cfg := DefaultConfig()
	pc := cfg.Pool.ToPoolConfig()
	assert.Equal(t, cfg.Pool.MaxOpenConns, pc.MaxOpenConns)

	sc := cfg.Sync.ToSyncConfig()
	assert.NotNil(t, sc.Masked)

	bc := cfg.Binary.ToBinaryConfig()
	assert.Equal(t, cfg.Binary.Root, bc.Root)

	tc := cfg.Track.ToTrackConfig(cfg.Sync.Masked)
	assert.True(t, tc.StrictActor)
}
