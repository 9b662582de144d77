package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestActionFor(t *testing.T) {
	tests := []struct {
		name string
		op   fsnotify.Op
		want Action
	}{
		{"remove", fsnotify.Remove, ActionUnload},
		{"rename", fsnotify.Rename, ActionUnload},
		{"create", fsnotify.Create, ActionLoad},
		{"write", fsnotify.Write, ActionReload},
		{"chmod", fsnotify.Chmod, ActionReload},
		{"remove wins over write", fsnotify.Remove | fsnotify.Write, ActionUnload},
		{"rename wins over create", fsnotify.Rename | fsnotify.Create, ActionUnload},
		{"create wins over write", fsnotify.Create | fsnotify.Write, ActionLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := actionFor(tt.op); got != tt.want {
				t.Errorf("actionFor(%v) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		pending, next, want Action
	}{
		{ActionLoad, ActionReload, ActionLoad},
		{ActionReload, ActionReload, ActionReload},
		{ActionReload, ActionUnload, ActionUnload},
		{ActionLoad, ActionUnload, ActionUnload},
		{ActionUnload, ActionLoad, ActionLoad},
		{ActionUnload, ActionReload, ActionUnload},
	}

	for _, tt := range tests {
		t.Run(tt.pending.String()+"+"+tt.next.String(), func(t *testing.T) {
			if got := merge(tt.pending, tt.next); got != tt.want {
				t.Errorf("merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActionString(t *testing.T) {
	for action, want := range map[Action]string{
		ActionLoad:   "load",
		ActionReload: "reload",
		ActionUnload: "unload",
		Action(42):   "unknown",
	} {
		if got := action.String(); got != want {
			t.Errorf("Action(%d).String() = %q, want %q", action, got, want)
		}
	}
}

func TestMatches(t *testing.T) {
	w := &Watcher{extensions: []string{".gpkg"}}

	tests := map[string]bool{
		"/data/city.gpkg":     true,
		"/data/CITY.GPKG":     true,
		"/data/city.gpkg-wal": false,
		"/data/city.sqlite":   false,
		"/data/gpkg":          false,
	}
	for path, want := range tests {
		if got := w.matches(path); got != want {
			t.Errorf("matches(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcherDeliversSettledChange(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan Change, 8)

	w, err := New(Config{Dirs: []string{dir}, Debounce: 100 * time.Millisecond},
		func(_ context.Context, c Change) error {
			changes <- c
			return nil
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	path := filepath.Join(dir, "zones.gpkg")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if filepath.Base(c.Path) != "zones.gpkg" || c.Action != ActionLoad {
			t.Errorf("change = %+v, want load of zones.gpkg", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	select {
	case c := <-changes:
		t.Errorf("unexpected extra change %+v", c)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStartFailsWithoutWatchableDirs(t *testing.T) {
	w, err := New(Config{Dirs: []string{filepath.Join(t.TempDir(), "missing")}}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() should fail when no directory can be watched")
	}
}
