package taskstate

import (
	"errors"
	"fmt"

	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// DeltaKind names the kind of a live update.
type DeltaKind string

const (
	KindNewEntry            DeltaKind = "new_entry"
	KindToolResult          DeltaKind = "tool_result"
	KindStatusChanged       DeltaKind = "status_changed"
	KindPermissionRequested DeltaKind = "permission_requested"
	KindPermissionResolved  DeltaKind = "permission_resolved"
	KindQuestionAsked       DeltaKind = "question_asked"
	KindQuestionAnswered    DeltaKind = "question_answered"
	KindErrorOccurred       DeltaKind = "error_occurred"
)

// Delta is an incremental update to a task's state. The set of deltas is
// closed; each kind knows how to apply itself.
type Delta interface {
	Kind() DeltaKind
	apply(s *TaskState) error
}

// NewEntry appends an entry to the conversation. The entry's Index is set to
// its position.
type NewEntry struct {
	Entry transcript.Entry
}

// ToolResult attaches a late result to the tool call with the matching ID.
type ToolResult struct {
	ToolUseID string
	Result    transcript.Result
}

// StatusChanged moves the agent to a new lifecycle status. Leaving the error
// status clears the recorded error.
type StatusChanged struct {
	Status Status
}

// PermissionRequested records an outstanding tool permission request.
type PermissionRequested struct {
	Request PermissionRequest
}

// PermissionResolved clears the pending permission request. An empty
// RequestID clears whatever is pending.
type PermissionResolved struct {
	RequestID string
	Allowed   bool
}

// QuestionAsked records an outstanding agent question.
type QuestionAsked struct {
	Request QuestionRequest
}

// QuestionAnswered clears the pending question. An empty RequestID clears
// whatever is pending.
type QuestionAnswered struct {
	RequestID string
	Answers   map[string]string
}

// ErrorOccurred records an agent failure and moves the task to StatusError.
type ErrorOccurred struct {
	Message string
}

func (NewEntry) Kind() DeltaKind            { return KindNewEntry }
func (ToolResult) Kind() DeltaKind          { return KindToolResult }
func (StatusChanged) Kind() DeltaKind       { return KindStatusChanged }
func (PermissionRequested) Kind() DeltaKind { return KindPermissionRequested }
func (PermissionResolved) Kind() DeltaKind  { return KindPermissionResolved }
func (QuestionAsked) Kind() DeltaKind       { return KindQuestionAsked }
func (QuestionAnswered) Kind() DeltaKind    { return KindQuestionAnswered }
func (ErrorOccurred) Kind() DeltaKind       { return KindErrorOccurred }

func (d NewEntry) apply(s *TaskState) error {
	e := d.Entry
	e.Index = len(s.Messages)
	s.Messages = append(s.Messages, e)
	return nil
}

func (d ToolResult) apply(s *TaskState) error {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].ToolUseID == d.ToolUseID && s.Messages[i].IsTool() {
			s.Messages[i] = s.Messages[i].WithResult(d.Result)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownToolUse, d.ToolUseID)
}

func (d StatusChanged) apply(s *TaskState) error {
	if !d.Status.Valid() {
		return fmt.Errorf("invalid status %q", d.Status)
	}
	if d.Status != StatusError {
		s.Error = ""
	}
	s.Status = d.Status
	return nil
}

func (d PermissionRequested) apply(s *TaskState) error {
	req := d.Request
	s.PendingPermission = &req
	return nil
}

func (d PermissionResolved) apply(s *TaskState) error {
	if s.PendingPermission == nil {
		return nil
	}
	if d.RequestID == "" || s.PendingPermission.ID == d.RequestID {
		s.PendingPermission = nil
	}
	return nil
}

func (d QuestionAsked) apply(s *TaskState) error {
	req := d.Request
	s.PendingQuestion = &req
	return nil
}

func (d QuestionAnswered) apply(s *TaskState) error {
	if s.PendingQuestion == nil {
		return nil
	}
	if d.RequestID == "" || s.PendingQuestion.ID == d.RequestID {
		s.PendingQuestion = nil
	}
	return nil
}

func (d ErrorOccurred) apply(s *TaskState) error {
	s.Error = d.Message
	s.Status = StatusError
	return nil
}

// Replay applies deltas in order to a copy of s and returns the result.
// Deltas that fail to apply are skipped; their errors are joined.
func Replay(s TaskState, deltas ...Delta) (TaskState, error) {
	out := s.clone()
	var errs []error
	for _, d := range deltas {
		if err := d.apply(&out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Kind(), err))
		}
	}
	return out, errors.Join(errs...)
}
