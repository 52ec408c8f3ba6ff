package stores

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/colonyops/taskdeck/internal/data/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "taskdeck.db"), db.DefaultOpenOptions())
	require.NoError(t, err, "Open")
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	now := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}
