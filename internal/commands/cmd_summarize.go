package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/internal/core/todo"
	"github.com/colonyops/taskdeck/internal/plugins/claude"
	"github.com/colonyops/taskdeck/pkg/iojson"
)

type SummarizeCmd struct {
	flags *Flags

	// flags
	limit      int
	modelLimit int
	jsonOutput bool
}

// NewSummarizeCmd creates a new summarize command
func NewSummarizeCmd(flags *Flags) *SummarizeCmd {
	return &SummarizeCmd{flags: flags}
}

// Register adds the summarize command to the application
func (cmd *SummarizeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "summarize",
		Usage:     "Summarize a Claude transcript file",
		UsageText: "taskdeck summarize <file.jsonl> [--json]",
		Description: `Replays a transcript without touching the database and prints its
final status, token usage and tool activity.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "show only the last N entries (0 for all)",
				Value:       10,
				Destination: &cmd.limit,
			},
			&cli.IntFlag{
				Name:        "model-limit",
				Usage:       "context window size used for the context percentage",
				Value:       claude.DefaultModelLimit,
				Destination: &cmd.modelLimit,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

// summaryView is the JSON output format for taskdeck summarize --json.
type summaryView struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	Error            string         `json:"error,omitempty"`
	Entries          int            `json:"entries"`
	Skipped          int            `json:"skipped_lines"`
	Turns            int            `json:"turns"`
	DurationSeconds  float64        `json:"duration_seconds"`
	InputTokens      int            `json:"input_tokens"`
	OutputTokens     int            `json:"output_tokens"`
	CacheReadTokens  int            `json:"cache_read_tokens"`
	CacheWriteTokens int            `json:"cache_write_tokens"`
	ContextTokens    int            `json:"context_tokens"`
	ContextPercent   float64        `json:"context_percent"`
	ToolCalls        map[string]int `json:"tool_calls,omitempty"`
	Todos            []todo.Item    `json:"todos,omitempty"`
}

func (cmd *SummarizeCmd) run(_ context.Context, c *cli.Command) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("transcript file is required")
	}

	tr, err := claude.ReadTranscriptFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		return iojson.Write(out, cmd.view(tr))
	}

	_, _ = fmt.Fprint(out, renderState(tr.State, cmd.limit))
	writeAnalytics(out, tr.Analytics, cmd.modelLimit)
	if tr.Skipped > 0 {
		_, _ = fmt.Fprintln(out, styles.WarningStyle.Render(fmt.Sprintf("%s %d undecodable line(s) skipped", styles.IconAttention, tr.Skipped)))
	}
	return nil
}

func (cmd *SummarizeCmd) view(tr claude.Transcript) summaryView {
	a := tr.Analytics
	v := summaryView{
		ID:               tr.State.TaskID,
		Status:           string(tr.State.Status),
		Error:            tr.State.Error,
		Entries:          len(tr.State.Messages),
		Skipped:          tr.Skipped,
		Turns:            a.TotalTurns,
		DurationSeconds:  a.Duration.Seconds(),
		InputTokens:      a.InputTokens,
		OutputTokens:     a.OutputTokens,
		CacheReadTokens:  a.CacheReadTokens,
		CacheWriteTokens: a.CacheWriteTokens,
		ContextTokens:    a.CurrentContextTokens,
		ContextPercent:   a.ContextPercent(cmd.modelLimit),
		Todos:            tr.State.Todos(),
	}
	if len(a.ToolCalls) > 0 {
		v.ToolCalls = make(map[string]int, len(a.ToolCalls))
		for _, tc := range a.ToolCalls {
			v.ToolCalls[tc.Name] = tc.Count
		}
	}
	return v
}

func writeAnalytics(w io.Writer, a claude.Analytics, modelLimit int) {
	_, _ = fmt.Fprintln(w, styles.DividerStyle.Render("────────────────────────────────────────"))
	row := func(label, value string) {
		_, _ = fmt.Fprintf(w, "%s %s\n", styles.MutedStyle.Render(fmt.Sprintf("%-10s", label)), styles.TextStyle.Render(value))
	}
	row("turns", fmt.Sprintf("%d", a.TotalTurns))
	row("duration", a.Duration.Round(time.Second).String())
	row("tokens", fmt.Sprintf("in %d  out %d  cache r/w %d/%d", a.InputTokens, a.OutputTokens, a.CacheReadTokens, a.CacheWriteTokens))
	row("context", fmt.Sprintf("%d (%.1f%%)", a.CurrentContextTokens, a.ContextPercent(modelLimit)))
	for _, tc := range a.ToolCalls {
		row("tool", fmt.Sprintf("%-12s %d", tc.Name, tc.Count))
	}
}
