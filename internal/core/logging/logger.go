package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component derives a logger from the global one, tagged with cmp=name.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}

// ForTask tags l with a task ID. The result is a pointer so log calls can be
// chained onto it.
func ForTask(l zerolog.Logger, taskID string) *zerolog.Logger {
	tagged := l.With().Str(string(taskIDKey), taskID).Logger()
	return &tagged
}
