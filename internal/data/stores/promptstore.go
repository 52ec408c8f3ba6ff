package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/data/db"
)

// PromptStore implements prompts.Store using SQLite.
type PromptStore struct {
	db *db.DB
}

var _ prompts.Store = (*PromptStore)(nil)

// NewPromptStore creates a new SQLite-backed prompt store.
func NewPromptStore(db *db.DB) *PromptStore {
	return &PromptStore{db: db}
}

// LoadAll returns every queued prompt grouped by task, in queue order.
func (s *PromptStore) LoadAll(ctx context.Context) (map[string][]prompts.Prompt, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, task_id, content, created_at FROM queued_prompts ORDER BY task_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list queued prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]prompts.Prompt)
	for rows.Next() {
		var (
			p         prompts.Prompt
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.TaskID, &p.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan queued prompt: %w", err)
		}
		p.CreatedAt = time.Unix(0, createdAt)
		out[p.TaskID] = append(out[p.TaskID], p)
	}
	return out, rows.Err()
}

// Replace overwrites the task's persisted queue.
func (s *PromptStore) Replace(ctx context.Context, taskID string, queue []prompts.Prompt) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queued_prompts WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}

		for i, p := range queue {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO queued_prompts (id, task_id, position, content, created_at) VALUES (?, ?, ?, ?, ?)`,
				p.ID, taskID, i, p.Content, p.CreatedAt.UnixNano(),
			); err != nil {
				return fmt.Errorf("insert queued prompt %s: %w", p.ID, err)
			}
		}
		return nil
	})
}
