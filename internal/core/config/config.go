// Package config handles configuration loading and validation for taskdeck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	Claude    ClaudeConfig    `yaml:"claude"`
	Retention RetentionConfig `yaml:"retention"`
	Tmux      TmuxConfig      `yaml:"tmux"`
	Theme     string          `yaml:"theme"`
	DataDir   string          `yaml:"-"` // set by caller, not from config file
}

// CacheConfig sizes the in-memory task state cache.
type CacheConfig struct {
	Capacity    int           `yaml:"capacity"`
	LoadTimeout time.Duration `yaml:"load_timeout"` // 0 disables the timeout
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ClaudeConfig locates Claude Code transcripts on disk.
type ClaudeConfig struct {
	ProjectsDir    string        `yaml:"projects_dir"`
	TranscriptGlob string        `yaml:"transcript_glob"` // doublestar pattern relative to ProjectsDir
	Debounce       time.Duration `yaml:"debounce"`
}

// RetentionConfig controls pruning of finished tasks.
type RetentionConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`        // 0 keeps everything
	SweepInterval time.Duration `yaml:"sweep_interval"` // how often the sweep runs
}

// TmuxConfig controls how queued prompts are typed into agent panes.
type TmuxConfig struct {
	Path      string `yaml:"path"`
	SubmitKey string `yaml:"submit_key"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Capacity: 20,
		},
		Database: DatabaseConfig{
			BusyTimeout: 5 * time.Second,
		},
		Claude: ClaudeConfig{
			ProjectsDir:    "~/.claude/projects",
			TranscriptGlob: "**/*.jsonl",
			Debounce:       100 * time.Millisecond,
		},
		Retention: RetentionConfig{
			MaxAge:        30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Tmux: TmuxConfig{
			Path:      "tmux",
			SubmitKey: "Enter",
		},
		Theme: "tokyo-night",
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.DataDir = dataDir
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills zero values a partial config file left unset and
// expands "~" in paths.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = defaults.Cache.Capacity
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = defaults.Database.BusyTimeout
	}
	if c.Claude.ProjectsDir == "" {
		c.Claude.ProjectsDir = defaults.Claude.ProjectsDir
	}
	if c.Claude.TranscriptGlob == "" {
		c.Claude.TranscriptGlob = defaults.Claude.TranscriptGlob
	}
	if c.Claude.Debounce == 0 {
		c.Claude.Debounce = defaults.Claude.Debounce
	}
	if c.Retention.SweepInterval == 0 {
		c.Retention.SweepInterval = defaults.Retention.SweepInterval
	}
	if c.Tmux.Path == "" {
		c.Tmux.Path = defaults.Tmux.Path
	}
	if c.Tmux.SubmitKey == "" {
		c.Tmux.SubmitKey = defaults.Tmux.SubmitKey
	}
	if c.Theme == "" {
		c.Theme = defaults.Theme
	}

	c.Claude.ProjectsDir = expandHome(c.Claude.ProjectsDir)
}

// DatabaseFile returns the path to the SQLite database.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "taskdeck.db")
}

// LogFile returns the default log file path.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "taskdeck.log")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
