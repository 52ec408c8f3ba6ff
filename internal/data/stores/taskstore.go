package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
	"github.com/colonyops/taskdeck/internal/data/db"
)

// Task is the persisted record of an agent session.
type Task struct {
	ID         string
	Status     taskstate.Status
	Error      string
	SourcePath string // transcript file the task was ingested from
	TmuxTarget string // pane queued prompts are typed into
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaskStore persists tasks and their message logs. It is the cache's Fetcher.
type TaskStore struct {
	db  *db.DB
	now func() time.Time
}

var _ taskstate.Fetcher = (*TaskStore)(nil)

// NewTaskStore creates a new SQLite-backed task store.
func NewTaskStore(db *db.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

// GetMessages returns the task's entries in order.
func (s *TaskStore) GetMessages(ctx context.Context, taskID string) ([]transcript.Entry, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT payload FROM entries WHERE task_id = ? ORDER BY idx`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []transcript.Entry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		var e transcript.Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", len(out), err)
		}
		e.Index = len(out)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetTask returns the task's status record, or taskstate.ErrTaskNotFound.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (taskstate.TaskRecord, error) {
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return taskstate.TaskRecord{}, err
	}
	return taskstate.TaskRecord{ID: t.ID, Status: t.Status, Error: t.Error}, nil
}

const taskColumns = `id, status, error, source_path, tmux_target, created_at, updated_at`

// Get returns a task by ID, or taskstate.ErrTaskNotFound.
func (s *TaskStore) Get(ctx context.Context, taskID string) (Task, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if IsNotFoundError(err) {
		return Task{}, fmt.Errorf("%w: %s", taskstate.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns all tasks, most recently updated first.
func (s *TaskStore) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Ensure creates the task if it does not exist and fills in an empty source
// path. It reports whether the task was created.
func (s *TaskStore) Ensure(ctx context.Context, taskID, sourcePath string) (bool, error) {
	now := s.now().UnixNano()
	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO tasks (id, status, source_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		taskID, taskstate.StatusWaiting, sourcePath, now, now)
	if err != nil {
		return false, fmt.Errorf("ensure task: %w", err)
	}

	created, _ := res.RowsAffected()
	if created == 0 && sourcePath != "" {
		_, err := s.db.Conn().ExecContext(ctx,
			`UPDATE tasks SET source_path = ? WHERE id = ? AND source_path = ''`, sourcePath, taskID)
		if err != nil {
			return false, fmt.Errorf("set source path: %w", err)
		}
	}
	return created > 0, nil
}

// AppendEntry appends an entry to the task's log and returns its index.
func (s *TaskStore) AppendEntry(ctx context.Context, taskID string, e transcript.Entry) (int, error) {
	var idx int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(idx) + 1, 0) FROM entries WHERE task_id = ?`, taskID,
		).Scan(&idx); err != nil {
			return fmt.Errorf("next entry index: %w", err)
		}

		e.Index = idx
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}

		now := s.now().UnixNano()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (task_id, idx, tool_use_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			taskID, idx, e.ToolUseID, string(payload), now,
		); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return touch(ctx, tx, taskID, now)
	})
	return idx, err
}

// AttachResult records a tool result on the most recent entry for
// toolUseID. Returns taskstate.ErrUnknownToolUse when there is none.
func (s *TaskStore) AttachResult(ctx context.Context, taskID, toolUseID string, r transcript.Result) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var (
			idx     int
			payload string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT idx, payload FROM entries
			WHERE task_id = ? AND tool_use_id = ?
			ORDER BY idx DESC LIMIT 1`, taskID, toolUseID,
		).Scan(&idx, &payload)
		if IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", taskstate.ErrUnknownToolUse, toolUseID)
		}
		if err != nil {
			return fmt.Errorf("find tool call: %w", err)
		}

		var e transcript.Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return fmt.Errorf("decode entry %d: %w", idx, err)
		}
		updated, err := json.Marshal(e.WithResult(r))
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET payload = ? WHERE task_id = ? AND idx = ?`, string(updated), taskID, idx,
		); err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		return touch(ctx, tx, taskID, s.now().UnixNano())
	})
}

// SetStatus updates the task's status and error message.
func (s *TaskStore) SetStatus(ctx context.Context, taskID string, status taskstate.Status, errMsg string) error {
	return s.update(ctx, taskID, `status = ?, error = ?`, status, errMsg)
}

// SetTarget records the tmux pane that queued prompts are sent to.
func (s *TaskStore) SetTarget(ctx context.Context, taskID, target string) error {
	return s.update(ctx, taskID, `tmux_target = ?`, target)
}

func (s *TaskStore) update(ctx context.Context, taskID, set string, args ...any) error {
	args = append(args, s.now().UnixNano(), taskID)
	res, err := s.db.Conn().ExecContext(ctx, `UPDATE tasks SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", taskstate.ErrTaskNotFound, taskID)
	}
	return nil
}

// Prune deletes tasks in one of the given statuses that were last updated
// before cutoff, together with their entries, queued prompts and transcript
// offsets. It returns the deleted IDs.
func (s *TaskStore) Prune(ctx context.Context, cutoff time.Time, statuses ...taskstate.Status) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, 0, len(statuses)+1)
	args = append(args, cutoff.UnixNano())
	for _, st := range statuses {
		args = append(args, st)
	}

	var ids []string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM tasks WHERE updated_at < ? AND status IN (`+placeholders+`) ORDER BY id`, args...)
		if err != nil {
			return fmt.Errorf("select stale tasks: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan task id: %w", err)
			}
			ids = append(ids, id)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			for _, stmt := range []string{
				`DELETE FROM queued_prompts WHERE task_id = ?`,
				`DELETE FROM transcript_offsets WHERE task_id = ?`,
				`DELETE FROM tasks WHERE id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
					return fmt.Errorf("prune task %s: %w", id, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func touch(ctx context.Context, tx *sql.Tx, taskID string, now int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at = ? WHERE id = ?`, now, taskID); err != nil {
		return fmt.Errorf("touch task: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (Task, error) {
	var (
		t                    Task
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &status, &t.Error, &t.SourcePath, &t.TmuxTarget, &createdAt, &updatedAt); err != nil {
		return Task{}, err
	}
	t.Status = taskstate.Status(status)
	t.CreatedAt = time.Unix(0, createdAt)
	t.UpdatedAt = time.Unix(0, updatedAt)
	return t, nil
}
