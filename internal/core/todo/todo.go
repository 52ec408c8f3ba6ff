// Package todo defines the agent todo-list model and the positional diff used
// to highlight status transitions between two snapshots of a list.
package todo

// Status represents the lifecycle state of a todo item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Item is a single entry of an agent's todo list. Items carry no stable id;
// an item is identified by its position in the list.
type Item struct {
	Content    string `json:"content"`
	Status     Status `json:"status"`
	ActiveForm string `json:"activeForm,omitempty"`
}

// Progress returns the number of completed items and the list length.
func Progress(items []Item) (completed, total int) {
	for _, it := range items {
		if it.Status == StatusCompleted {
			completed++
		}
	}
	return completed, len(items)
}
