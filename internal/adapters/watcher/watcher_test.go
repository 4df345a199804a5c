package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestFsnotifyOpToOperation(t *testing.T) {
	tests := []struct {
		name     string
		op       fsnotify.Op
		expected Operation
	}{
		{
			name:     "Remove returns OpDelete",
			op:       fsnotify.Remove,
			expected: OpDelete,
		},
		{
			name:     "Rename returns OpDelete",
			op:       fsnotify.Rename,
			expected: OpDelete,
		},
		{
			name:     "Create returns OpCreate",
			op:       fsnotify.Create,
			expected: OpCreate,
		},
		{
			name:     "Write returns OpModify",
			op:       fsnotify.Write,
			expected: OpModify,
		},
		{
			name:     "Chmod returns OpModify",
			op:       fsnotify.Chmod,
			expected: OpModify,
		},
		{
			name:     "Remove takes precedence over Write",
			op:       fsnotify.Remove | fsnotify.Write,
			expected: OpDelete,
		},
		{
			name:     "Rename takes precedence over Create",
			op:       fsnotify.Rename | fsnotify.Create,
			expected: OpDelete,
		},
		{
			name:     "Create takes precedence over Write",
			op:       fsnotify.Create | fsnotify.Write,
			expected: OpCreate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fsnotifyOpToOperation(tt.op)
			if result != tt.expected {
				t.Errorf("fsnotifyOpToOperation(%v) = %v, want %v", tt.op, result, tt.expected)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op       Operation
		expected string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.op.String(); got != tt.expected {
				t.Errorf("Operation.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatcher(debounce time.Duration, accept func(string) bool, handler Handler) *Watcher {
	return &Watcher{
		handler:  handler,
		accept:   accept,
		logger:   discardLogger(),
		debounce: debounce,
		ctx:      context.Background(),
		pending:  make(map[string]*pendingEvent),
	}
}

func hasSuffix(exts ...string) func(string) bool {
	return func(path string) bool {
		lower := strings.ToLower(path)
		for _, ext := range exts {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
		return false
	}
}

func TestHandleFsEvent_AcceptFilter(t *testing.T) {
	w := newTestWatcher(time.Hour, hasSuffix(".geojson", ".gpkg"), nil)

	w.handleFsEvent(fsnotify.Event{Name: "/data/roads.geojson", Op: fsnotify.Create})
	w.handleFsEvent(fsnotify.Event{Name: "/data/parcels.GPKG", Op: fsnotify.Write})
	w.handleFsEvent(fsnotify.Event{Name: "/data/notes.txt", Op: fsnotify.Create})
	w.handleFsEvent(fsnotify.Event{Name: "/data/.roads.geojson.123.part", Op: fsnotify.Write})

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pending {
		p.timer.Stop()
	}
	if len(w.pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(w.pending))
	}
	if _, ok := w.pending["/data/notes.txt"]; ok {
		t.Error("rejected path was queued")
	}
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(Config{}, func(context.Context, Event) error { return nil }, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if !w.accept("anything.bin") {
		t.Error("default accept rejected a path")
	}
	if w.debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", w.debounce)
	}
}

func TestMergeOperations(t *testing.T) {
	tests := []struct {
		name          string
		pending, next Operation
		want          Operation
	}{
		{"create then modify", OpCreate, OpModify, OpCreate},
		{"modify then modify", OpModify, OpModify, OpModify},
		{"modify then create", OpModify, OpCreate, OpCreate},
		{"modify then delete", OpModify, OpDelete, OpDelete},
		{"create then delete", OpCreate, OpDelete, OpDelete},
		{"delete then create", OpDelete, OpCreate, OpCreate},
		{"delete then modify", OpDelete, OpModify, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeOperations(tt.pending, tt.next); got != tt.want {
				t.Errorf("mergeOperations(%v, %v) = %v, want %v", tt.pending, tt.next, got, tt.want)
			}
		})
	}
}

func TestEnqueue_DeliversOnceAfterQuietPeriod(t *testing.T) {
	events := make(chan Event, 4)
	w := newTestWatcher(30*time.Millisecond, nil, func(_ context.Context, e Event) error {
		events <- e
		return nil
	})

	w.enqueue("/data/a.tif", OpCreate)
	w.enqueue("/data/a.tif", OpModify)
	w.enqueue("/data/a.tif", OpModify)

	select {
	case e := <-events:
		if e.Path != "/data/a.tif" || e.Operation != OpCreate {
			t.Errorf("event = %+v, want create of /data/a.tif", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	select {
	case e := <-events:
		t.Errorf("unexpected second event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnqueue_CanceledContextDropsEvents(t *testing.T) {
	called := make(chan struct{}, 1)
	w := newTestWatcher(time.Millisecond, nil, func(context.Context, Event) error {
		called <- struct{}{}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.ctx = ctx

	w.enqueue("/data/a.kml", OpModify)

	select {
	case <-called:
		t.Error("handler called after the context ended")
	case <-time.After(50 * time.Millisecond):
	}
}

func startWatcher(t *testing.T, dir string, accept func(string) bool) <-chan Event {
	t.Helper()
	events := make(chan Event, 16)

	w, err := New(Config{
		Paths:    []string{dir},
		Debounce: 20 * time.Millisecond,
		Accept:   accept,
	}, func(_ context.Context, e Event) error {
		events <- e
		return nil
	}, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return events
}

func TestWatcher_ReportsNewFile(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, dir, hasSuffix(".geojson"))

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "roads.geojson")
	if err := os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Path != path {
			t.Errorf("path = %q, want %q", e.Path, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for new layer file")
	}
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, dir, hasSuffix(".kml"))

	sub := filepath.Join(dir, "regions")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "wells.kml")

	// The directory is added asynchronously; rewrite until it is seen.
	deadline := time.After(5 * time.Second)
	for {
		if err := os.WriteFile(path, []byte("<kml/>"), 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case e := <-events:
			if e.Path != path {
				t.Errorf("path = %q, want %q", e.Path, path)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event for file in new subdirectory")
		}
	}
}
