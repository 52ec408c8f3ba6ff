package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Claude.ProjectsDir = t.TempDir()
	cfg.Tmux.Path = ""
	return &cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir",
		},
		{
			name:    "zero capacity",
			mutate:  func(c *Config) { c.Cache.Capacity = 0 },
			wantErr: "cache.capacity",
		},
		{
			name:    "negative load timeout",
			mutate:  func(c *Config) { c.Cache.LoadTimeout = -time.Second },
			wantErr: "cache.load_timeout",
		},
		{
			name:    "bad glob",
			mutate:  func(c *Config) { c.Claude.TranscriptGlob = "**/[.jsonl" },
			wantErr: "claude.transcript_glob",
		},
		{
			name:    "empty submit key",
			mutate:  func(c *Config) { c.Tmux.SubmitKey = "" },
			wantErr: "tmux.submit_key",
		},
		{
			name:    "unknown theme",
			mutate:  func(c *Config) { c.Theme = "neon" },
			wantErr: "unknown theme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Cache.Capacity = 0
	cfg.Theme = "neon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.capacity")
	assert.Contains(t, err.Error(), "theme")
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.ValidateDeep(""))
}

func TestValidateDeep_ConfigFileIsDirectory(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep(t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, err.Error(), "config_file")
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.DataDir = file

	err := cfg.ValidateDeep("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestValidateDeep_MissingTmux(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tmux.Path = "definitely-not-a-real-tmux-binary"

	err := cfg.ValidateDeep("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable not found")
}
