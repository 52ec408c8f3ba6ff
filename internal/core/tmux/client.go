// Package tmux types prompts into agent panes running under tmux.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/colonyops/taskdeck/pkg/executil"
)

// ErrNoTarget is returned when a prompt is sent without a pane target.
var ErrNoTarget = errors.New("tmux: no target pane")

const pasteBuffer = "taskdeck-prompt"

// Client drives a tmux server through its CLI.
type Client struct {
	exec      executil.Executor
	bin       string
	submitKey string
	logger    zerolog.Logger
}

// New creates a Client. bin defaults to "tmux" and submitKey to "Enter".
func New(exec executil.Executor, bin, submitKey string, logger zerolog.Logger) *Client {
	if bin == "" {
		bin = "tmux"
	}
	if submitKey == "" {
		submitKey = "Enter"
	}
	return &Client{exec: exec, bin: bin, submitKey: submitKey, logger: logger}
}

// HasTarget reports whether target resolves to an existing session, window
// or pane.
func (c *Client) HasTarget(ctx context.Context, target string) bool {
	if target == "" {
		return false
	}
	_, err := c.exec.Run(ctx, c.bin, "display-message", "-p", "-t", target, "#{pane_id}")
	return err == nil
}

// SendPrompt types text into target and submits it. Single-line text is sent
// as literal keys; multi-line text goes through a paste buffer so embedded
// newlines don't submit early.
func (c *Client) SendPrompt(ctx context.Context, target, text string) error {
	if target == "" {
		return ErrNoTarget
	}

	text = strings.TrimRight(text, "\n")
	c.logger.Debug().Str("target", target).Int("len", len(text)).Msg("sending prompt to tmux")

	if strings.Contains(text, "\n") {
		if _, err := c.exec.Run(ctx, c.bin, "set-buffer", "-b", pasteBuffer, "--", text); err != nil {
			return fmt.Errorf("tmux set-buffer: %w", err)
		}
		if _, err := c.exec.Run(ctx, c.bin, "paste-buffer", "-p", "-d", "-b", pasteBuffer, "-t", target); err != nil {
			return fmt.Errorf("tmux paste-buffer: %w", err)
		}
	} else {
		if _, err := c.exec.Run(ctx, c.bin, "send-keys", "-t", target, "-l", "--", text); err != nil {
			return fmt.Errorf("tmux send-keys: %w", err)
		}
	}

	if _, err := c.exec.Run(ctx, c.bin, "send-keys", "-t", target, c.submitKey); err != nil {
		return fmt.Errorf("tmux submit: %w", err)
	}
	return nil
}
