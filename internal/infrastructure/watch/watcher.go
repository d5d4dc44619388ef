package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one debounced filesystem change.
type Event struct {
	Path string
	Op   string // "create", "write", "remove", "rename"
}

// Watcher watches files or directory trees and reports debounced
// change events, filtered so generated and excluded paths never
// trigger a review.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	filter   *SourceFilter
	onChange func(Event)
}

// NewWatcher creates a watcher. A nil filter passes everything.
func NewWatcher(debounce time.Duration, filter *SourceFilter, onChange func(Event)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		filter:   filter,
		onChange: onChange,
	}, nil
}

// AddFile watches a single file, typically a config file for live
// reload. fsnotify watches the parent directory so editors that
// replace-on-save are still seen.
func (w *Watcher) AddFile(path string) error {
	if err := w.fsw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}

// AddTree watches a directory and all its subdirectories.
func (w *Watcher) AddTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if w.filter != nil && !w.filter.Matches(path) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run blocks until the context ends, delivering debounced events. Only
// the last event of a burst is reported.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var last Event
	debouncer := NewDebouncer(w.debounce, func() {
		if w.onChange != nil {
			w.onChange(last)
		}
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			op := opName(event.Op)
			if op == "" {
				continue
			}
			if w.filter != nil && !w.filter.Matches(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.AddTree(event.Name)
					continue
				}
			}
			last = Event{Path: event.Name, Op: op}
			debouncer.Trigger()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}
