package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyops/taskdeck/internal/data/db"
)

// OffsetStore remembers how far each transcript file has been ingested so a
// restarted tailer resumes where it stopped.
type OffsetStore struct {
	db *db.DB
}

// NewOffsetStore creates a new SQLite-backed offset store.
func NewOffsetStore(db *db.DB) *OffsetStore {
	return &OffsetStore{db: db}
}

// Get returns the ingested byte offset for path, or 0 when the file is new.
func (s *OffsetStore) Get(ctx context.Context, path string) (int64, error) {
	var off int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT byte_offset FROM transcript_offsets WHERE path = ?`, path).Scan(&off)
	if IsNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get offset: %w", err)
	}
	return off, nil
}

// Set records the ingested byte offset for path.
func (s *OffsetStore) Set(ctx context.Context, path, taskID string, offset int64) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO transcript_offsets (path, task_id, byte_offset, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			task_id = excluded.task_id,
			byte_offset = excluded.byte_offset,
			updated_at = excluded.updated_at`,
		path, taskID, offset, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set offset: %w", err)
	}
	return nil
}
