package httpsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// streamBuffer is how many deltas a client may lag behind before it is
// disconnected.
const streamBuffer = 64

var errSlowConsumer = errors.New("stream client fell behind")

// TaskSubscriber reads and follows task state. Implemented by
// deck.TaskService.
type TaskSubscriber interface {
	Await(ctx context.Context, taskID string) (taskstate.TaskState, error)
	Subscribe(taskID string, fn taskstate.Listener) func()
}

// StreamMessage is one websocket frame. The first frame of a stream has kind
// "snapshot" and carries the task's messages; every later frame carries a
// single delta.
type StreamMessage struct {
	TaskID   string             `json:"task_id"`
	Kind     string             `json:"kind"`
	Status   taskstate.Status   `json:"status"`
	Delta    taskstate.Delta    `json:"delta,omitempty"`
	Messages []transcript.Entry `json:"messages,omitempty"`
}

const kindSnapshot = "snapshot"

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

type streamHandler struct {
	tasks TaskSubscriber
	log   zerolog.Logger
}

func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// Clients only listen; CloseRead handles their close frames and cancels
	// ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	err = streamTask(ctx, h.tasks, taskID, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	case errors.Is(err, errSlowConsumer):
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
	default:
		logging.ForTask(h.log, taskID).Debug().Err(err).Msg("task stream ended")
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

// streamTask writes a snapshot of the task followed by every delta applied
// to it until ctx is cancelled. Deltas applied while the snapshot loads may
// appear both in the snapshot and as frames.
func streamTask(ctx context.Context, tasks TaskSubscriber, taskID string, w wsWriter) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	frames := make(chan StreamMessage, streamBuffer)
	unsubscribe := tasks.Subscribe(taskID, func(s taskstate.TaskState, d taskstate.Delta) {
		select {
		case frames <- StreamMessage{TaskID: taskID, Kind: string(d.Kind()), Status: s.Status, Delta: d}:
		default:
			cancel(errSlowConsumer)
		}
	})
	defer unsubscribe()

	state, err := tasks.Await(ctx, taskID)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, w, StreamMessage{
		TaskID:   taskID,
		Kind:     kindSnapshot,
		Status:   state.Status,
		Messages: state.Messages,
	}); err != nil {
		return writeErr(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case f := <-frames:
			if err := writeFrame(ctx, w, f); err != nil {
				return writeErr(ctx, err)
			}
		}
	}
}

// writeErr prefers the reason ctx was cancelled, since an aborted write only
// reports context.Canceled.
func writeErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return err
}

func writeFrame(ctx context.Context, w wsWriter, m StreamMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return w.Write(ctx, websocket.MessageText, data)
}
