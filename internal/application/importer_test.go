package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

const testPointGeoJSON = `{"type":"Feature","geometry":{"type":"Point","coordinates":[8.2,4.55]},"properties":{"name":"a"}}`

func newTestImporter(t *testing.T, storage *mockStorage, opts ImportOptions) (*SourceImporter, *LayerStore) {
	t.Helper()
	if opts.CacheDir == "" {
		opts.CacheDir = t.TempDir()
	}
	store := newTestStore(0)
	ingest := newTestIngest(store, nil, nil)
	return NewSourceImporter(storage, ingest, store, testLogger(), opts), store
}

func TestSourceImporter_SyncAddsNewLayers(t *testing.T) {
	storage := &mockStorage{
		objects: []output.StorageObject{
			{Key: "b/roads.geojson", ETag: "1"},
			{Key: "a/wells.json", ETag: "1"},
			{Key: "notes.txt", ETag: "1"},
		},
		contents: map[string]string{
			"b/roads.geojson": testPointGeoJSON,
			"a/wells.json":    testPointGeoJSON,
		},
	}
	importer, store := newTestImporter(t, storage, ImportOptions{})

	stats, err := importer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Added != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 2 added", stats)
	}
	if importer.ImportedCount() != 2 {
		t.Errorf("ImportedCount() = %d, want 2", importer.ImportedCount())
	}
	if importer.IsImported("notes.txt") {
		t.Error("unsupported object should be skipped")
	}

	layers := store.VectorLayers()
	if len(layers) != 2 {
		t.Fatalf("len(VectorLayers()) = %d, want 2", len(layers))
	}
	// Keys are imported in sorted order.
	if layers[0].Name != "wells" || layers[1].Name != "roads" {
		t.Errorf("names = %q, %q", layers[0].Name, layers[1].Name)
	}
}

func TestSourceImporter_SyncSkipsUnchangedAndReplacesChanged(t *testing.T) {
	storage := &mockStorage{
		objects:  []output.StorageObject{{Key: "roads.geojson", ETag: "1"}},
		contents: map[string]string{"roads.geojson": testPointGeoJSON},
	}
	importer, store := newTestImporter(t, storage, ImportOptions{})
	ctx := context.Background()

	if _, err := importer.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	first := store.VectorLayers()[0].ID

	stats, _ := importer.Sync(ctx)
	if stats.Added != 0 || stats.Updated != 0 {
		t.Errorf("unchanged sync stats = %+v", stats)
	}
	if storage.downloads != 1 {
		t.Errorf("downloads = %d, want 1", storage.downloads)
	}

	storage.objects[0].ETag = "2"
	stats, _ = importer.Sync(ctx)
	if stats.Updated != 1 {
		t.Errorf("changed sync stats = %+v, want 1 updated", stats)
	}

	layers := store.VectorLayers()
	if len(layers) != 1 {
		t.Fatalf("len(VectorLayers()) = %d, want 1", len(layers))
	}
	if layers[0].ID == first {
		t.Error("changed object should replace the previous layer")
	}
}

func TestSourceImporter_SyncRemovesDeletedObjects(t *testing.T) {
	cacheDir := t.TempDir()
	storage := &mockStorage{
		objects:  []output.StorageObject{{Key: "roads.geojson", ETag: "1"}},
		contents: map[string]string{"roads.geojson": testPointGeoJSON},
	}
	importer, store := newTestImporter(t, storage, ImportOptions{CacheDir: cacheDir})
	ctx := context.Background()

	if _, err := importer.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	cached := filepath.Join(cacheDir, "roads.geojson")
	if _, err := os.Stat(cached); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	storage.objects = nil
	stats, err := importer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Removed != 1 {
		t.Errorf("Removed = %d, want 1", stats.Removed)
	}
	if n, _ := store.Counts(); n != 0 {
		t.Errorf("vector layers = %d, want 0", n)
	}
	if _, err := os.Stat(cached); !os.IsNotExist(err) {
		t.Errorf("cache file should be deleted, stat err = %v", err)
	}
}

func TestSourceImporter_KeepFiles(t *testing.T) {
	cacheDir := t.TempDir()
	storage := &mockStorage{
		objects:  []output.StorageObject{{Key: "roads.geojson"}},
		contents: map[string]string{"roads.geojson": testPointGeoJSON},
	}
	importer, _ := newTestImporter(t, storage, ImportOptions{CacheDir: cacheDir, KeepFiles: true})

	if err := importer.Import(context.Background(), storage.objects[0]); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !importer.Remove("roads.geojson") {
		t.Fatal("Remove() = false, want true")
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "roads.geojson")); err != nil {
		t.Errorf("file should be kept: %v", err)
	}
	if importer.Remove("roads.geojson") {
		t.Error("second Remove() should report false")
	}
}

func TestSourceImporter_SyncCountsFailures(t *testing.T) {
	storage := &mockStorage{
		objects: []output.StorageObject{
			{Key: "bad.geojson"},
			{Key: "good.geojson"},
		},
		contents: map[string]string{
			"bad.geojson":  "{not json",
			"good.geojson": testPointGeoJSON,
		},
	}
	importer, store := newTestImporter(t, storage, ImportOptions{})

	stats, err := importer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Added != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 added 1 failed", stats)
	}
	if n, _ := store.Counts(); n != 1 {
		t.Errorf("vector layers = %d, want 1", n)
	}
}

func TestSourceImporter_SyncRejectsKeysLeavingCache(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "cache")
	storage := &mockStorage{
		objects: []output.StorageObject{
			{Key: "../escaped.geojson"},
			{Key: "nested/../../up.geojson"},
			{Key: "kept.geojson"},
		},
		contents: map[string]string{
			"../escaped.geojson":      testPointGeoJSON,
			"nested/../../up.geojson": testPointGeoJSON,
			"kept.geojson":            testPointGeoJSON,
		},
	}
	importer, _ := newTestImporter(t, storage, ImportOptions{CacheDir: cache})

	stats, err := importer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Added != 1 || stats.Failed != 2 {
		t.Errorf("stats = %+v, want 1 added 2 failed", stats)
	}
	for _, name := range []string{"escaped.geojson", "up.geojson"} {
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Errorf("%s was written outside the cache directory", name)
		}
	}
	if storage.downloads != 1 {
		t.Errorf("downloads = %d, want 1", storage.downloads)
	}

	err = importer.Import(context.Background(), output.StorageObject{Key: "../escaped.geojson"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "key" {
		t.Errorf("Import() error = %v, want ValidationError on key", err)
	}
}

func TestSourceImporter_SyncListError(t *testing.T) {
	storage := &mockStorage{listErr: errors.New("unreachable")}
	importer, _ := newTestImporter(t, storage, ImportOptions{})

	if _, err := importer.Sync(context.Background()); err == nil {
		t.Error("expected list error")
	}
}

func TestSourceImporter_ImportRejections(t *testing.T) {
	storage := &mockStorage{contents: map[string]string{"big.geojson": testPointGeoJSON}}
	importer, _ := newTestImporter(t, storage, ImportOptions{MaxBytes: 10})
	ctx := context.Background()

	err := importer.Import(ctx, output.StorageObject{Key: "doc.pdf"})
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("Import(pdf) error = %v, want ErrUnsupportedFormat", err)
	}

	err = importer.Import(ctx, output.StorageObject{Key: "big.geojson", Size: 11})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Import(big) error = %v, want ValidationError", err)
	}
	if storage.downloads != 0 {
		t.Errorf("downloads = %d, rejected objects must not be fetched", storage.downloads)
	}
}

func TestSourceImporter_Refresh(t *testing.T) {
	storage := &mockStorage{
		objects:  []output.StorageObject{{Key: "roads.geojson", ETag: "1"}},
		contents: map[string]string{"roads.geojson": testPointGeoJSON},
	}
	importer, store := newTestImporter(t, storage, ImportOptions{})
	ctx := context.Background()

	if err := importer.Refresh(ctx, "roads.geojson"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !importer.IsImported("roads.geojson") {
		t.Error("existing object should be imported on refresh")
	}

	// Same revision: neither refresh nor a following sync fetches again.
	if err := importer.Refresh(ctx, "roads.geojson"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, err := importer.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if storage.downloads != 1 {
		t.Errorf("downloads = %d, want 1", storage.downloads)
	}

	storage.objects[0].ETag = "2"
	if err := importer.Refresh(ctx, "roads.geojson"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if storage.downloads != 2 {
		t.Errorf("downloads = %d, want 2 after a new revision", storage.downloads)
	}
	if n, _ := store.Counts(); n != 1 {
		t.Errorf("vector layers = %d, want 1", n)
	}

	storage.statErr = errors.New("connection reset")
	if err := importer.Refresh(ctx, "roads.geojson"); err == nil {
		t.Error("Refresh() should report storage failures")
	}
	if !importer.IsImported("roads.geojson") {
		t.Error("storage failure must not remove the layer")
	}

	storage.statErr = nil
	storage.objects = nil
	if err := importer.Refresh(ctx, "roads.geojson"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if importer.IsImported("roads.geojson") {
		t.Error("missing object should be removed on refresh")
	}
	if n, _ := store.Counts(); n != 0 {
		t.Errorf("vector layers = %d, want 0", n)
	}
}
