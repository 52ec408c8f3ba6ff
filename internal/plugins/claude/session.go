package claude

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/colonyops/taskdeck/internal/core/taskstate"
)

// Session files are named after the session UUID, for example
// "a1b2c3d4-1234-5678-90ab-cdef12345678.jsonl". Sub-agent transcripts
// ("agent-*.jsonl") are not sessions of their own.
const sessionExt = ".jsonl"

// SessionID returns the session UUID encoded in a transcript path, or ""
// when the file is not a session transcript.
func SessionID(path string) string {
	base := filepath.Base(path)
	id, ok := strings.CutSuffix(base, sessionExt)
	// uuid.Parse also takes the urn and braced forms; only the canonical
	// 36-character form names a session.
	if !ok || len(id) != 36 {
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// ProjectDir returns the directory Claude Code uses for transcripts of the
// project rooted at workdir: "/Users/name/Code" becomes "-Users-name-Code".
func ProjectDir(projectsDir, workdir string) string {
	if resolved, err := filepath.EvalSymlinks(workdir); err == nil {
		workdir = resolved
	}
	name := strings.NewReplacer("/", "-", " ", "-", ".", "-").Replace(workdir)
	return filepath.Join(projectsDir, name)
}

// Transcript is a session transcript folded into task state.
type Transcript struct {
	State     taskstate.TaskState
	Analytics Analytics
	// Skipped counts lines that could not be decoded.
	Skipped int
}

// ReadTranscript replays a whole transcript. Undecodable lines are counted
// and skipped; only read errors are returned.
func ReadTranscript(r io.Reader, taskID string) (Transcript, error) {
	n := NewNormalizer()
	state := taskstate.Default(taskID)
	state.Loaded = true

	out := Transcript{}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			deltas, perr := n.Parse(line)
			if perr != nil {
				out.Skipped++
			} else {
				// Results for calls outside this transcript are dropped.
				state, _ = taskstate.Replay(state, deltas...)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read transcript: %w", err)
		}
	}

	out.State = state
	out.Analytics = n.Analytics()
	return out, nil
}

// ReadTranscriptFile replays the transcript at path. The task ID is the
// session ID from the file name, or the bare file name when it has none.
func ReadTranscriptFile(path string) (Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return Transcript{}, err
	}
	defer func() { _ = f.Close() }()

	id := SessionID(path)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ReadTranscript(f, id)
}
