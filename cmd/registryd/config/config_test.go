package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should load a complete configuration", func(t *testing.T) {
		path := writeConfigFile(t, `
listen_address: "127.0.0.1:9547"
metrics_address: "127.0.0.1:9548"
owner: "0x0E0E0e0e0E0E0e0E0e0e0E0E0E0e0e0e0E0e0E0E"
identity: "0x1D1d1D1d1d1D1D1D1d1d1d1D1d1d1d1d1d1D1d1D"
snapshot_path: "registry.json"
snapshot_interval: "30s"
stream_buffer_size: 64
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:9547", cfg.ListenAddress)
		assert.Equal(t, "127.0.0.1:9548", cfg.MetricsAddress)
		assert.Equal(t, common.HexToAddress("0x0E0E0e0e0E0E0e0E0e0e0E0E0E0e0e0e0E0e0E0E"), cfg.OwnerAddress())
		assert.Equal(t, common.HexToAddress("0x1D1d1D1d1d1D1D1D1d1d1d1D1d1d1d1d1d1D1d1D"), cfg.IdentityAddress())
		assert.Equal(t, "registry.json", cfg.SnapshotPath)
		assert.Equal(t, uint(64), cfg.StreamBufferSize)

		interval, err := cfg.SnapshotEvery()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, interval)
	})

	t.Run("should treat identity as optional", func(t *testing.T) {
		path := writeConfigFile(t, `
listen_address: "127.0.0.1:9547"
metrics_address: "127.0.0.1:9548"
owner: "0x0E0E0e0e0E0E0e0E0e0e0E0E0E0e0e0e0E0e0E0E"
snapshot_path: "registry.json"
snapshot_interval: "1m"
stream_buffer_size: 16
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, common.Address{}, cfg.IdentityAddress())
	})

	t.Run("should fail when the file is missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("should fail on malformed yaml", func(t *testing.T) {
		path := writeConfigFile(t, "listen_address: [")
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to unmarshal config")
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ListenAddress:    "127.0.0.1:9547",
			MetricsAddress:   "127.0.0.1:9548",
			Owner:            "0x0E0E0e0e0E0E0e0E0e0e0E0E0E0e0e0e0E0e0E0E",
			SnapshotPath:     "registry.json",
			SnapshotInterval: "30s",
			StreamBufferSize: 16,
		}
	}

	t.Run("should accept a valid configuration", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.validate())
	})

	t.Run("should require listen_address", func(t *testing.T) {
		cfg := valid()
		cfg.ListenAddress = ""
		assert.ErrorContains(t, cfg.validate(), "listen_address is required")
	})

	t.Run("should require metrics_address", func(t *testing.T) {
		cfg := valid()
		cfg.MetricsAddress = ""
		assert.ErrorContains(t, cfg.validate(), "metrics_address is required")
	})

	t.Run("should require owner", func(t *testing.T) {
		cfg := valid()
		cfg.Owner = ""
		assert.ErrorContains(t, cfg.validate(), "owner is required")
	})

	t.Run("should reject a malformed owner", func(t *testing.T) {
		cfg := valid()
		cfg.Owner = "not-an-address"
		assert.ErrorContains(t, cfg.validate(), "owner is not a valid address")
	})

	t.Run("should reject a malformed identity", func(t *testing.T) {
		cfg := valid()
		cfg.Identity = "0x123"
		assert.ErrorContains(t, cfg.validate(), "identity is not a valid address")
	})

	t.Run("should require snapshot_path", func(t *testing.T) {
		cfg := valid()
		cfg.SnapshotPath = ""
		assert.ErrorContains(t, cfg.validate(), "snapshot_path is required")
	})

	t.Run("should reject an unparseable snapshot_interval", func(t *testing.T) {
		cfg := valid()
		cfg.SnapshotInterval = "soon"
		assert.ErrorContains(t, cfg.validate(), "snapshot_interval")
	})

	t.Run("should reject a non-positive snapshot_interval", func(t *testing.T) {
		cfg := valid()
		cfg.SnapshotInterval = "0s"
		assert.ErrorContains(t, cfg.validate(), "must be greater than 0")
	})

	t.Run("should reject a zero stream_buffer_size", func(t *testing.T) {
		cfg := valid()
		cfg.StreamBufferSize = 0
		assert.ErrorContains(t, cfg.validate(), "stream_buffer_size must be greater than 0")
	})
}
