package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() { fired.Add(1) })
	defer d.Stop()

	for range 5 {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("callback fired %d times, want 1", got)
	}
}

func TestDebouncer_StopCancels(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { fired.Add(1) })
	d.Trigger()
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("stopped debouncer still fired")
	}
}

func TestSourceFilter(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{"no rules passes", nil, nil, "/repo/main.go", true},
		{"exclude basename", nil, []string{"*.lock"}, "/repo/yarn.lock", false},
		{"exclude tree glob", nil, []string{"**/node_modules/**"}, "/repo/node_modules/pkg/index.js", false},
		{"include extension", []string{"*.go"}, nil, "/repo/main.go", true},
		{"include misses", []string{"*.go"}, nil, "/repo/readme.md", false},
		{"exclude wins over include", []string{"*.go"}, []string{"**/vendor/**"}, "/repo/vendor/lib/a.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewSourceFilter(tt.include, tt.exclude)
			if got := f.Matches(tt.path); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWatcher_ReportsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exclusions.yaml")
	if err := os.WriteFile(path, []byte("files: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 1)
	w, err := NewWatcher(20*time.Millisecond, nil, func(ev Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddFile(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("files: [a.txt]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if filepath.Base(ev.Path) != "exclusions.yaml" {
			t.Errorf("unexpected event path: %s", ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestWatcher_FilterSuppressesEvents(t *testing.T) {
	dir := t.TempDir()

	events := make(chan Event, 1)
	filter := NewSourceFilter(nil, []string{"*.tmp"})
	w, err := NewWatcher(20*time.Millisecond, filter, func(ev Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddTree(dir); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		t.Errorf("filtered path produced event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
