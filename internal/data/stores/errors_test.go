package stores

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(fmt.Errorf("get: %w", sql.ErrNoRows)))
	assert.False(t, IsNotFoundError(errors.New("other")))
}

func TestIsCorruptionError(t *testing.T) {
	assert.True(t, IsCorruptionError(errors.New("database disk image is malformed")))
	assert.False(t, IsCorruptionError(errors.New("timeout")))
	assert.False(t, IsCorruptionError(nil))
	assert.False(t, IsBusyError(errors.New("busy")))
}

func TestRecoverFromCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskdeck.db")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0o644))

	backup, err := RecoverFromCorruption(path)
	require.NoError(t, err)

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+"-wal")
	assert.FileExists(t, backup)
	assert.FileExists(t, backup+"-wal")

	// Nothing left to move is not an error.
	_, err = RecoverFromCorruption(path)
	assert.NoError(t, err)
}
