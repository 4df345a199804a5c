package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jobrunner/geolayers/internal/domain"
)

var layerFilter = NewFilter(".geojson", ".json", ".zip", "kml", ".tif")

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"tracts.geojson", true},
		{"TRACTS.GeoJSON", true},
		{"nested/roads.zip", true},
		{"wells.kml", true},
		{"scene.tif", true},
		{"notes.txt", false},
		{"README", false},
		{"../escaped.geojson", false},
		{"nested/../../escaped.geojson", false},
		{"nested/./roads.zip", true},
		{"/etc/roads.geojson", false},
		{`..\escaped.geojson`, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := layerFilter.Match(tt.key); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	if !NewFilter().Match("anything.bin") {
		t.Error("empty filter should match every key")
	}
	if NewFilter().Match("../anything.bin") {
		t.Error("empty filter should still reject keys leaving the root")
	}
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "layers")
	if err := os.MkdirAll(base, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "secret.geojson"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewLocalStorage(base, layerFilter)

	if _, err := s.Stat(context.Background(), "../secret.geojson"); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Stat() error = %v, want ErrObjectNotFound", err)
	}
	dest := filepath.Join(t.TempDir(), "copy.geojson")
	if err := s.Download(context.Background(), "../secret.geojson", dest); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Download() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("Download() must not copy files outside the base directory")
	}
}

func TestLocalStorageList(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"tracts.geojson":    "test",
		"roads.zip":         "test",
		"imagery/scene.tif": "test",
		"ignored.txt":       "test",
		"also_ignored.gpkg": "test",
	})

	objects, err := NewLocalStorage(dir, layerFilter).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
		if obj.Size != 4 {
			t.Errorf("object %q size = %d, want 4", obj.Key, obj.Size)
		}
		if obj.LastModified == 0 {
			t.Errorf("object %q LastModified should not be 0", obj.Key)
		}
	}
	sort.Strings(keys)

	want := []string{"imagery/scene.tif", "roads.zip", "tracts.geojson"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestLocalStorageListNonExistent(t *testing.T) {
	_, err := NewLocalStorage("/nonexistent/path", layerFilter).List(context.Background())
	if err == nil {
		t.Error("List() should error for non-existent path")
	}
}

func TestLocalStorageStat(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tracts.geojson": `{"type":"Point"}`})
	s := NewLocalStorage(dir, layerFilter)
	ctx := context.Background()

	obj, err := s.Stat(ctx, "tracts.geojson")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if obj.Key != "tracts.geojson" || obj.Size != 16 || obj.LastModified == 0 {
		t.Errorf("Stat() = %+v", obj)
	}

	if _, err := s.Stat(ctx, "missing.geojson"); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Stat(missing) error = %v, want ErrObjectNotFound", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.geojson"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stat(ctx, "folder.geojson"); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Stat(directory) error = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStorageDownload(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeFiles(t, src, map[string]string{"roads.zip": "zipdata"})
	s := NewLocalStorage(src, layerFilter)

	target := filepath.Join(dest, "nested", "roads.zip")
	if err := s.Download(context.Background(), "roads.zip", target); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read dest file: %v", err)
	}
	if string(content) != "zipdata" {
		t.Errorf("content = %q, want %q", content, "zipdata")
	}

	if err := s.Download(context.Background(), "roads.zip", filepath.Join(src, "roads.zip")); err != nil {
		t.Errorf("Download() onto itself should be a no-op, got %v", err)
	}

	err = s.Download(context.Background(), "missing.zip", filepath.Join(dest, "x.zip"))
	if !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Download(missing) error = %v, want ErrObjectNotFound", err)
	}

	entries, err := os.ReadDir(filepath.Join(dest, "nested"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dest contains %d entries, want only roads.zip", len(entries))
	}
}

func TestLocalStorageKey(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir, layerFilter)

	key, err := s.Key(filepath.Join(dir, "imagery", "scene.tif"))
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key != "imagery/scene.tif" {
		t.Errorf("Key() = %q, want %q", key, "imagery/scene.tif")
	}
	if got := s.FullPath(key); got != filepath.Join(dir, "imagery", "scene.tif") {
		t.Errorf("FullPath() = %q", got)
	}

	for _, outside := range []string{dir, filepath.Join(dir, ".."), filepath.Join(filepath.Dir(dir), "other.tif")} {
		if _, err := s.Key(outside); err == nil {
			t.Errorf("Key(%q) should fail", outside)
		}
	}
}

type recordingMetrics struct {
	ops map[string][]bool
}

func (m *recordingMetrics) IncIngestions(string, bool) {}
func (m *recordingMetrics) ObserveIngestDuration(string, time.Duration) {}
func (m *recordingMetrics) SetLayerCount(string, int) {}
func (m *recordingMetrics) IncViewportCommands(string) {}
func (m *recordingMetrics) SetViewportConnected(bool) {}
func (m *recordingMetrics) ObserveStorageDuration(string, time.Duration) {}
func (m *recordingMetrics) IncStorageOperations(op string, success bool) {
	if m.ops == nil {
		m.ops = make(map[string][]bool)
	}
	m.ops[op] = append(m.ops[op], success)
}

func TestInstrumentedStorage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tracts.geojson": "{}"})
	metrics := &recordingMetrics{}
	s := NewInstrumented(NewLocalStorage(dir, layerFilter), metrics)
	ctx := context.Background()

	if _, err := s.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if _, err := s.Stat(ctx, "missing.geojson"); !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("Stat(missing) error = %v, want ErrObjectNotFound", err)
	}

	err := s.Download(ctx, "missing.geojson", filepath.Join(t.TempDir(), "x.geojson"))
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Operation != "download" || storageErr.Key != "missing.geojson" {
		t.Errorf("unexpected StorageError: %+v", storageErr)
	}

	if got := metrics.ops["list"]; len(got) != 1 || !got[0] {
		t.Errorf("list metrics = %v, want [true]", got)
	}
	if got := metrics.ops["stat"]; len(got) != 1 || !got[0] {
		t.Errorf("stat metrics = %v, want [true]", got)
	}
	if got := metrics.ops["download"]; len(got) != 1 || got[0] {
		t.Errorf("download metrics = %v, want [false]", got)
	}
}
