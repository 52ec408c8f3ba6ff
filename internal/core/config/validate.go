package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/colonyops/taskdeck/internal/core/styles"
)

// Validate checks the structural validity of the configuration. It does no
// I/O; see ValidateDeep for filesystem checks.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("data_dir", c.DataDir, notEmpty),
		criterio.Run("cache.capacity", c.Cache.Capacity, atLeast(1)),
		criterio.Run("cache.load_timeout", c.Cache.LoadTimeout, nonNegative),
		criterio.Run("database.busy_timeout", c.Database.BusyTimeout, nonNegative),
		criterio.Run("claude.transcript_glob", c.Claude.TranscriptGlob, validGlob),
		criterio.Run("claude.debounce", c.Claude.Debounce, nonNegative),
		criterio.Run("retention.max_age", c.Retention.MaxAge, nonNegative),
		criterio.Run("retention.sweep_interval", c.Retention.SweepInterval, nonNegative),
		criterio.Run("tmux.submit_key", c.Tmux.SubmitKey, notEmpty),
		criterio.Run("theme", c.Theme, knownTheme),
	)
}

// ValidateDeep runs Validate and then checks the filesystem: the config file,
// the data and projects directories, and the tmux executable. An empty
// configPath skips the config file check.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		criterio.Run("claude.projects_dir", c.Claude.ProjectsDir, isDirectoryOrNotExist),
		criterio.Run("tmux.path", c.Tmux.Path, executableExists),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func notEmpty(s string) error {
	if s == "" {
		return errors.New("cannot be empty")
	}
	return nil
}

func atLeast(n int) func(int) error {
	return func(v int) error {
		if v < n {
			return fmt.Errorf("must be at least %d", n)
		}
		return nil
	}
}

func nonNegative(v time.Duration) error {
	if v < 0 {
		return errors.New("cannot be negative")
	}
	return nil
}

func validGlob(pattern string) error {
	if pattern == "" {
		return errors.New("cannot be empty")
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid glob %q", pattern)
	}
	return nil
}

func knownTheme(name string) error {
	if !slices.Contains(styles.ThemeNames(), name) {
		return fmt.Errorf("unknown theme %q (available: %v)", name, styles.ThemeNames())
	}
	return nil
}

func executableExists(path string) error {
	if path == "" {
		return nil
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable not found: %s", path)
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return errors.New("exists but is not a directory")
	}
	return nil
}
