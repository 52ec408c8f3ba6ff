package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHook_Run(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		present []string
		absent  []string
	}{
		{
			name:    "task and prompt",
			ctx:     WithPromptID(WithTaskID(context.Background(), "t1"), "p1"),
			present: []string{"task_id", "prompt_id"},
		},
		{
			name:    "task only",
			ctx:     WithTaskID(context.Background(), "t1"),
			present: []string{"task_id"},
			absent:  []string{"prompt_id"},
		},
		{
			name:   "background",
			ctx:    context.Background(),
			absent: []string{"task_id", "prompt_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Hook(ContextHook{})
			logger.Info().Ctx(tt.ctx).Msg("test")

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

			for _, k := range tt.present {
				assert.Contains(t, entry, k)
			}
			for _, k := range tt.absent {
				assert.NotContains(t, entry, k)
			}
		})
	}
}
