package stores

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsBusyError returns true if the error is a SQLITE_BUSY error, including
// its extended codes.
func IsBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// IsCorruptionError returns true if the error indicates database corruption.
func IsCorruptionError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CANTOPEN:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "file is not a database")
}

// IsNotFoundError returns true if the error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// RecoverFromCorruption moves a corrupt database file, along with its WAL and
// SHM siblings, aside so the next Open starts fresh. Returns the backup path.
func RecoverFromCorruption(dbPath string) (string, error) {
	backup := fmt.Sprintf("%s.corrupt.%s", dbPath, time.Now().Format("20060102-150405"))

	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Rename(dbPath+suffix, backup+suffix)
		if err == nil || os.IsNotExist(err) {
			continue
		}
		// Stale WAL/SHM files must not survive next to a fresh database.
		if suffix != "" && os.Remove(dbPath+suffix) == nil {
			continue
		}
		return "", fmt.Errorf("move %s aside: %w", dbPath+suffix, err)
	}
	return backup, nil
}
