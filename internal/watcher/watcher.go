package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"netconform/internal/evidence"
)

// SubmitFunc consumes one encoded event
type SubmitFunc func(ctx context.Context, data []byte, source *evidence.Source) error

// Tailer follows a JSON Lines evidence file and submits every complete line
// appended to it
type Tailer struct {
	path     string
	source   *evidence.Source
	submit   SubmitFunc
	debounce time.Duration
	offset   int64
	partial  []byte
}

// NewTailer creates a tailer for path. Events without a source are
// attributed to the file under label.
func NewTailer(path, label string, submit SubmitFunc) *Tailer {
	return &Tailer{
		path:     path,
		source:   evidence.NewSource(path, label),
		submit:   submit,
		debounce: 500 * time.Millisecond,
	}
}

// WithDebounce sets the debounce duration
func (t *Tailer) WithDebounce(d time.Duration) *Tailer {
	if d > 0 {
		t.debounce = d
	}
	return t
}

// Offset returns the number of bytes consumed so far
func (t *Tailer) Offset() int64 {
	return t.offset
}

// ReadNew submits the complete lines written since the last call. A file
// that shrank was truncated or replaced and is read again from the start.
func (t *Tailer) ReadNew(ctx context.Context) (int, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open evidence file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat evidence file: %w", err)
	}
	if info.Size() < t.offset {
		slog.Info("Watcher: file truncated, reading from start", "path", t.path)
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return 0, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek evidence file: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-t.offset))
	if err != nil {
		return 0, fmt.Errorf("failed to read evidence file: %w", err)
	}
	t.offset += int64(len(data))

	data = append(t.partial, data...)
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		t.partial = data
		return 0, nil
	}
	t.partial = append([]byte(nil), data[last+1:]...)

	n := 0
	for _, line := range bytes.Split(data[:last], []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := t.submit(ctx, line, t.source); err != nil {
			slog.Warn("Watcher: event rejected", "path", t.path, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// Watch reads the file once, then submits appended lines until the context
// is cancelled
func (t *Tailer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so replaced files are picked up
	dir := filepath.Dir(t.path)
	filename := filepath.Base(t.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	slog.Info("Watcher: watching evidence file", "path", t.path, "debounce", t.debounce)

	t.read(ctx)

	timer := time.NewTimer(t.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(t.debounce)
			}

		case <-timer.C:
			t.read(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher: error", "path", t.path, "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Tailer) read(ctx context.Context) {
	n, err := t.ReadNew(ctx)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Watcher: read failed", "path", t.path, "error", err)
		}
		return
	}
	if n > 0 {
		slog.Debug("Watcher: submitted events", "path", t.path, "events", n)
	}
}
