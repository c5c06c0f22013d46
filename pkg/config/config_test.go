package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 15, cfg.MaxTurns)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 32000, cfg.ContextWindowLimit)
	assert.Equal(t, 0.70, cfg.SummaryThreshold)
	assert.Equal(t, 5, cfg.PreserveRecent)
	assert.Equal(t, 2, cfg.PreserveEarly)
	assert.Equal(t, 50, cfg.MaxReferences)
	assert.Equal(t, 100, cfg.TelemetrySize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "max_turns: 20\ncache_ttl: 1m\nstorage_dir: /tmp/convo\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MaxTurns)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, "/tmp/convo", cfg.StorageDir)
	// Untouched fields keep defaults.
	assert.Equal(t, 0.70, cfg.SummaryThreshold)
	assert.Equal(t, 50, cfg.MaxReferences)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero max turns",
			mutate:  func(c *Config) { c.MaxTurns = 0 },
			wantErr: "max_turns",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.SummaryThreshold = 1.5 },
			wantErr: "summary_threshold",
		},
		{
			name:    "preserve windows exceed max turns",
			mutate:  func(c *Config) { c.PreserveRecent = 10; c.PreserveEarly = 10 },
			wantErr: "exceeds max_turns",
		},
		{
			name:    "empty storage dir",
			mutate:  func(c *Config) { c.StorageDir = "" },
			wantErr: "storage_dir",
		},
		{
			name:    "negative cache ttl",
			mutate:  func(c *Config) { c.CacheTTL = -time.Second },
			wantErr: "cache_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
