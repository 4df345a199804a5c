package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/geolayers/internal/adapters/watcher"
	"github.com/jobrunner/geolayers/internal/config"
)

const squareGeoJSON = `{"type":"FeatureCollection","features":[{"type":"Feature",
"properties":{"name":"square"},
"geometry":{"type":"Polygon","coordinates":[[[8,4],[8.1,4],[8.1,4.1],[8,4.1],[8,4]]]}}]}`

func testConfig(dir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MaxUploadBytes: 1 << 20,
		},
		Storage: config.StorageConfig{
			Type:      "local",
			LocalPath: dir,
		},
		Layers: config.LayersConfig{
			SeedPipeline:    true,
			FitPadding:      50,
			FitMaxZoom:      16,
			RasterOpacity:   0.8,
			MaxRasterPixels: 1 << 20,
		},
		Viewport: config.ViewportConfig{CenterLat: 4.55, CenterLng: 8.2, Zoom: 12},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func writeLayer(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(squareGeoJSON), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestNew_SeedsPipelineWithoutSource(t *testing.T) {
	cfg := testConfig("")
	cfg.Storage.Type = ""

	a := newTestApp(t, cfg)

	vectors, rasters := a.Store.Counts()
	if vectors != 1 || rasters != 0 {
		t.Errorf("Counts() = %d, %d, want 1, 0", vectors, rasters)
	}
	if a.SyncService != nil || a.Importer != nil || a.Watcher != nil {
		t.Error("source components created without storage")
	}
}

func TestNew_UnknownStorage(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage.Type = "ftp"

	if _, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("New() succeeded with unknown storage type")
	}
}

func TestApp_LocalSourceLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeLayer(t, filepath.Join(dir, "roads.geojson"))
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("notes"), 0o600); err != nil {
		t.Fatal(err)
	}

	a := newTestApp(t, testConfig(dir))
	ctx := context.Background()

	result, err := a.SyncService.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if result.LayersAdded != 1 {
		t.Errorf("LayersAdded = %d, want 1", result.LayersAdded)
	}
	if vectors, _ := a.Store.Counts(); vectors != 2 {
		t.Fatalf("vectors = %d, want 2", vectors)
	}

	parcels := filepath.Join(dir, "parcels.geojson")
	writeLayer(t, parcels)
	if err := a.handleFileEvent(ctx, watcher.Event{Path: parcels, Operation: watcher.OpCreate}); err != nil {
		t.Fatalf("handleFileEvent(create) error = %v", err)
	}
	if vectors, _ := a.Store.Counts(); vectors != 3 {
		t.Fatalf("vectors after create = %d, want 3", vectors)
	}

	if err := os.Remove(parcels); err != nil {
		t.Fatal(err)
	}
	if err := a.handleFileEvent(ctx, watcher.Event{Path: parcels, Operation: watcher.OpDelete}); err != nil {
		t.Fatalf("handleFileEvent(delete) error = %v", err)
	}
	if vectors, _ := a.Store.Counts(); vectors != 2 {
		t.Errorf("vectors after delete = %d, want 2", vectors)
	}

	// Local files are read in place and survive removal of their layer.
	if _, err := os.Stat(filepath.Join(dir, "roads.geojson")); err != nil {
		t.Errorf("source file missing: %v", err)
	}
}
