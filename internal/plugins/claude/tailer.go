package claude

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// TaskWriter persists ingested activity. Implemented by stores.TaskStore.
type TaskWriter interface {
	Ensure(ctx context.Context, taskID, sourcePath string) (bool, error)
	AppendEntry(ctx context.Context, taskID string, e transcript.Entry) (int, error)
	AttachResult(ctx context.Context, taskID, toolUseID string, r transcript.Result) error
	SetStatus(ctx context.Context, taskID string, status taskstate.Status, errMsg string) error
}

// OffsetTracker remembers how far each transcript has been read.
// Implemented by stores.OffsetStore.
type OffsetTracker interface {
	Get(ctx context.Context, path string) (int64, error)
	Set(ctx context.Context, path, taskID string, offset int64) error
}

// TailerOptions configures a Tailer.
type TailerOptions struct {
	Root     string        // directory holding project transcript folders
	Glob     string        // doublestar pattern, relative to Root
	Debounce time.Duration // quiet period before a burst of writes is read
	Workers  int           // transcripts ingested concurrently
	Logger   zerolog.Logger

	// Retryable reports whether a failed ingest is worth retrying straight
	// away, such as a write that hit a locked database. Nil never retries.
	Retryable func(error) bool
}

const (
	ingestRetries = 3
	ingestBackoff = 200 * time.Millisecond
)

// Tailer follows Claude Code session transcripts under a directory. New
// complete lines are normalized, persisted and published on the bus as task
// deltas, in file order.
type Tailer struct {
	opts    TailerOptions
	tasks   TaskWriter
	offsets OffsetTracker
	bus     *eventbus.EventBus
	log     zerolog.Logger

	mu          sync.Mutex
	normalizers map[string]*Normalizer
}

// NewTailer creates a tailer. Call Scan for a one-shot import or Run to keep
// following the directory.
func NewTailer(opts TailerOptions, tasks TaskWriter, offsets OffsetTracker, bus *eventbus.EventBus) *Tailer {
	if opts.Glob == "" {
		opts.Glob = "**/*.jsonl"
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Tailer{
		opts:        opts,
		tasks:       tasks,
		offsets:     offsets,
		bus:         bus,
		log:         opts.Logger.With().Str("cmp", "claude-tailer").Logger(),
		normalizers: make(map[string]*Normalizer),
	}
}

// Matches reports whether path is a session transcript the tailer follows.
func (t *Tailer) Matches(path string) bool {
	if SessionID(path) == "" {
		return false
	}
	rel, err := filepath.Rel(t.opts.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	ok, err := doublestar.Match(t.opts.Glob, filepath.ToSlash(rel))
	return err == nil && ok
}

// Scan ingests every matching transcript under Root once.
func (t *Tailer) Scan(ctx context.Context) error {
	var paths []string
	err := filepath.WalkDir(t.opts.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			t.log.Debug().Err(err).Str("path", p).Msg("skipping path during walk")
			return nil
		}
		if d.IsDir() {
			if p != t.opts.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if t.Matches(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", t.opts.Root, err)
	}
	return t.ingestAll(ctx, paths)
}

// Run scans Root, then follows changes until ctx is cancelled.
func (t *Tailer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := t.addRecursive(watcher, t.opts.Root, nil); err != nil {
		return fmt.Errorf("watch %s: %w", t.opts.Root, err)
	}
	if err := t.Scan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Error().Err(err).Msg("watcher error")
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			changed := map[string]bool{}
			t.classify(watcher, event, changed)

			debounce := time.NewTimer(t.opts.Debounce)
		debounceLoop:
			for {
				select {
				case <-ctx.Done():
					debounce.Stop()
					return nil
				case e, ok := <-watcher.Events:
					if !ok {
						debounce.Stop()
						return nil
					}
					t.classify(watcher, e, changed)
					if !debounce.Stop() {
						<-debounce.C
					}
					debounce.Reset(t.opts.Debounce)
				case <-debounce.C:
					break debounceLoop
				}
			}

			paths := make([]string, 0, len(changed))
			for p, live := range changed {
				if live {
					paths = append(paths, p)
				}
			}
			slices.Sort(paths)
			if err := t.ingestAll(ctx, paths); err != nil {
				t.log.Error().Err(err).Msg("ingest failed")
			}
		}
	}
}

// classify records a file event; removed files are marked false so a later
// write in the same burst revives them.
func (t *Tailer) classify(watcher *fsnotify.Watcher, event fsnotify.Event, changed map[string]bool) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Files can land before the watch does.
			_ = t.addRecursive(watcher, event.Name, func(p string) {
				if t.Matches(p) {
					changed[p] = true
				}
			})
			return
		}
	}
	if !t.Matches(event.Name) {
		return
	}

	t.log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("transcript event")

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		changed[event.Name] = false
		t.mu.Lock()
		delete(t.normalizers, event.Name)
		t.mu.Unlock()
		return
	}
	changed[event.Name] = true
}

// addRecursive watches root and its non-hidden subdirectories, passing every
// file found to onFile when it is non-nil.
func (t *Tailer) addRecursive(watcher *fsnotify.Watcher, root string, onFile func(string)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			t.log.Debug().Err(err).Str("path", p).Msg("skipping path during walk")
			return nil
		}
		if !d.IsDir() {
			if onFile != nil {
				onFile(p)
			}
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func (t *Tailer) ingestAll(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)

	var mu sync.Mutex
	var errs []error
	for _, p := range paths {
		g.Go(func() error {
			if err := t.ingestWithRetry(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ingestWithRetry retries a transcript whose ingest failed on a retryable
// error. IngestFile records progress up to the failing line, so a retry does
// not store the earlier lines twice.
func (t *Tailer) ingestWithRetry(ctx context.Context, path string) error {
	_, err := t.IngestFile(ctx, path)
	for attempt := 1; err != nil && attempt <= ingestRetries; attempt++ {
		if t.opts.Retryable == nil || !t.opts.Retryable(err) {
			return err
		}
		t.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("database busy, retrying transcript")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(ingestBackoff * time.Duration(attempt)):
		}
		_, err = t.IngestFile(ctx, path)
	}
	return err
}

func (t *Tailer) normalizer(path string, fresh bool) *Normalizer {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.normalizers[path]
	if !ok || fresh {
		n = NewNormalizer()
		t.normalizers[path] = n
	}
	return n
}

// IngestFile reads the complete lines appended to path since the last call
// and returns how many were read. A trailing partial line is left for the
// next call. Lines that fail to decode are logged and skipped. When storing a
// line fails, the offset is still advanced past the lines before it.
func (t *Tailer) IngestFile(ctx context.Context, path string) (int, error) {
	taskID := SessionID(path)
	if taskID == "" {
		return 0, nil
	}
	log := logging.ForTask(t.log, taskID)
	ctx = logging.WithTaskID(ctx, taskID)

	offset, err := t.offsets.Get(ctx, path)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() < offset {
		// Truncated or replaced: skip to the new end rather than re-importing
		// entries that are already stored.
		log.Warn().Int64("offset", offset).Int64("size", info.Size()).Msg("transcript shrank, skipping to end")
		return 0, t.offsets.Set(ctx, path, taskID, info.Size())
	}
	if info.Size() == offset {
		return 0, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	created, err := t.tasks.Ensure(ctx, taskID, path)
	if err != nil {
		return 0, err
	}
	if created {
		log.Info().Str("path", path).Msg("tracking new task")
	}

	norm := t.normalizer(path, offset == 0)
	br := bufio.NewReader(f)
	lines := 0
	for {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return lines, err
		}
		start := offset
		offset += int64(len(line))
		lines++

		deltas, perr := norm.Parse(line)
		if perr != nil {
			log.Warn().Err(perr).Int64("offset", offset).Msg("skipping transcript line")
			continue
		}
		for _, d := range deltas {
			if err := t.apply(ctx, taskID, d); err != nil {
				if start > 0 {
					if serr := t.offsets.Set(ctx, path, taskID, start); serr != nil {
						log.Debug().Err(serr).Msg("saving partial offset")
					}
				}
				return lines, err
			}
		}
	}

	if err := t.offsets.Set(ctx, path, taskID, offset); err != nil {
		return lines, err
	}
	log.Debug().Int("lines", lines).Int64("offset", offset).Msg("ingested transcript")
	return lines, nil
}

// apply persists a delta and then publishes it, so any load that starts
// after the publish observes the write.
func (t *Tailer) apply(ctx context.Context, taskID string, d taskstate.Delta) error {
	switch d := d.(type) {
	case taskstate.NewEntry:
		idx, err := t.tasks.AppendEntry(ctx, taskID, d.Entry)
		if err != nil {
			return err
		}
		d.Entry.Index = idx
		t.publish(taskID, d)
		return nil
	case taskstate.ToolResult:
		err := t.tasks.AttachResult(ctx, taskID, d.ToolUseID, d.Result)
		if errors.Is(err, taskstate.ErrUnknownToolUse) {
			logging.ForTask(t.log, taskID).Debug().Str("tool_use_id", d.ToolUseID).Msg("result for unknown tool call")
			return nil
		}
		if err != nil {
			return err
		}
	case taskstate.StatusChanged:
		if err := t.tasks.SetStatus(ctx, taskID, d.Status, ""); err != nil {
			return err
		}
	case taskstate.ErrorOccurred:
		if err := t.tasks.SetStatus(ctx, taskID, taskstate.StatusError, d.Message); err != nil {
			return err
		}
	}
	t.publish(taskID, d)
	return nil
}

func (t *Tailer) publish(taskID string, d taskstate.Delta) {
	if t.bus == nil {
		return
	}
	t.bus.PublishTaskDelta(eventbus.TaskDeltaPayload{TaskID: taskID, Delta: d})
}
