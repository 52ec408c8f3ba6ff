// Package executil runs external commands behind a mockable interface.
package executil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const maxOutputLen = 500

// limitedWriter caps writes to a bytes.Buffer at a maximum byte count.
// Bytes beyond the limit are silently discarded.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		w.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

// Executor runs external commands.
type Executor interface {
	// Run executes cmd and returns its stdout. On failure the error carries
	// the start of stderr.
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

func (RealExecutor) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd, args...)
	c.Stdout = &stdout
	c.Stderr = &limitedWriter{buf: &stderr, max: maxOutputLen}

	if err := c.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("exec %s: %s: %w", cmd, msg, err)
		}
		return stdout.Bytes(), fmt.Errorf("exec %s: %w", cmd, err)
	}
	return stdout.Bytes(), nil
}
