package styles

// Todo markers.
var (
	IconTodoPending    = "○"
	IconTodoInProgress = "◐"
	IconTodoCompleted  = "●"
)

// Task status markers.
var (
	IconWaiting   = "…"
	IconRunning   = "▶"
	IconCompleted = "✓"
	IconError     = "✗"
	IconAttention = "!"
)
