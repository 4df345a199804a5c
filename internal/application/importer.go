package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/input"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// SourceImporter imports layer files from object storage and keeps the
// store in step with the source.
type SourceImporter struct {
	mu       sync.RWMutex
	imported map[string]importedObject // object key -> layer

	storage  output.ObjectStorage
	ingestor input.Ingestor
	store    input.LayerStore
	logger   *slog.Logger
	opts     ImportOptions
}

// ImportOptions configures a SourceImporter.
type ImportOptions struct {
	CacheDir  string // Objects are downloaded below this directory
	MaxBytes  int64  // Larger objects are rejected when positive
	KeepFiles bool   // Keep cached files on removal, set when CacheDir is the source itself
}

type importedObject struct {
	kind         domain.LayerKind
	layerID      string
	etag         string
	lastModified int64
	localPath    string
}

// NewSourceImporter creates an importer.
func NewSourceImporter(
	storage output.ObjectStorage,
	ingestor input.Ingestor,
	store input.LayerStore,
	logger *slog.Logger,
	opts ImportOptions,
) *SourceImporter {
	return &SourceImporter{
		imported: make(map[string]importedObject),
		storage:  storage,
		ingestor: ingestor,
		store:    store,
		logger:   logger,
		opts:     opts,
	}
}

// Import downloads and ingests a single object, replacing a previous import
// of the same key.
func (r *SourceImporter) Import(ctx context.Context, obj output.StorageObject) error {
	if !r.ingestor.Accepts(obj.Key) {
		return &domain.UnsupportedFormatError{Extension: filepath.Ext(obj.Key)}
	}
	if !filepath.IsLocal(filepath.FromSlash(obj.Key)) {
		return &domain.ValidationError{
			Field:      "key",
			Value:      obj.Key,
			Constraint: "relative path without ..",
			Message:    "object key leaves the cache directory",
		}
	}
	if r.opts.MaxBytes > 0 && obj.Size > r.opts.MaxBytes {
		return &domain.ValidationError{
			Field:      "size",
			Value:      obj.Size,
			Constraint: fmt.Sprintf("<= %d", r.opts.MaxBytes),
			Message:    "layer file too large",
		}
	}

	localPath := filepath.Join(r.opts.CacheDir, filepath.FromSlash(obj.Key))
	if err := r.storage.Download(ctx, obj.Key, localPath); err != nil {
		return err
	}

	data, err := os.ReadFile(localPath) //#nosec G304 -- path below the cache directory
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}

	result, err := r.ingestor.Ingest(ctx, input.IngestRequest{Filename: obj.Key, Data: data})
	if err != nil {
		return err
	}

	r.mu.Lock()
	previous, replaced := r.imported[obj.Key]
	r.imported[obj.Key] = importedObject{
		kind:         result.Kind,
		layerID:      result.LayerID(),
		etag:         obj.ETag,
		lastModified: obj.LastModified,
		localPath:    localPath,
	}
	r.mu.Unlock()

	if replaced {
		r.removeLayer(previous)
	}

	r.logger.Info("layer imported", "key", obj.Key, "id", result.LayerID(), "kind", result.Kind)
	return nil
}

// Remove drops the layer imported from key. Reports whether the key was
// known.
func (r *SourceImporter) Remove(key string) bool {
	r.mu.Lock()
	entry, ok := r.imported[key]
	delete(r.imported, key)
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.removeLayer(entry)
	if !r.opts.KeepFiles && entry.localPath != "" {
		if err := os.Remove(entry.localPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to delete local cache file", "path", entry.localPath, "error", err)
		}
	}

	r.logger.Info("imported layer removed", "key", key, "id", entry.layerID)
	return true
}

func (r *SourceImporter) removeLayer(entry importedObject) {
	switch entry.kind {
	case domain.LayerKindVector:
		r.store.RemoveVectorLayer(entry.layerID)
	case domain.LayerKindRaster:
		r.store.RemoveRasterLayer(entry.layerID)
	}
}

// IsImported returns true if the object key has been imported.
func (r *SourceImporter) IsImported(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.imported[key]
	return ok
}

// ImportedCount returns the number of imported objects.
func (r *SourceImporter) ImportedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.imported)
}

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added   int
	Updated int
	Removed int
	Failed  int
}

// Sync imports new or changed objects and removes layers whose object
// disappeared from the source.
func (r *SourceImporter) Sync(ctx context.Context) (SyncStats, error) {
	r.logger.Info("syncing layers from storage")

	objects, err := r.storage.List(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]output.StorageObject, len(objects))
	for _, obj := range objects {
		if r.ingestor.Accepts(obj.Key) {
			remote[obj.Key] = obj
		}
	}

	keys := make([]string, 0, len(remote))
	for key := range remote {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	stats := SyncStats{}
	for _, key := range keys {
		obj := remote[key]
		existing, known := r.lookup(key)
		if known && !changed(existing, obj) {
			r.logger.Debug("layer already imported, skipping", "key", key)
			continue
		}

		if err := r.Import(ctx, obj); err != nil {
			r.logger.Error("failed to import layer", "key", key, "error", err)
			stats.Failed++
			continue
		}
		if known {
			stats.Updated++
		} else {
			stats.Added++
		}
	}

	for _, key := range r.findKeysToRemove(remote) {
		if r.Remove(key) {
			stats.Removed++
		}
	}

	r.logger.Info("sync completed",
		"added", stats.Added,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"failed", stats.Failed,
		"total", r.ImportedCount(),
	)
	return stats, nil
}

func (r *SourceImporter) lookup(key string) (importedObject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.imported[key]
	return entry, ok
}

func changed(entry importedObject, obj output.StorageObject) bool {
	if obj.ETag != "" || entry.etag != "" {
		return obj.ETag != entry.etag
	}
	return obj.LastModified != entry.lastModified
}

// findKeysToRemove returns imported keys missing from remote.
func (r *SourceImporter) findKeysToRemove(remote map[string]output.StorageObject) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var toRemove []string
	for key := range r.imported {
		if _, exists := remote[key]; !exists {
			toRemove = append(toRemove, key)
		}
	}
	sort.Strings(toRemove)
	return toRemove
}

// Refresh re-imports key when it still exists in the source and removes its
// layer otherwise. An unchanged revision is left alone.
func (r *SourceImporter) Refresh(ctx context.Context, key string) error {
	obj, err := r.storage.Stat(ctx, key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		r.Remove(key)
		return nil
	}
	if err != nil {
		return err
	}

	if entry, known := r.lookup(key); known && !changed(entry, obj) {
		return nil
	}
	return r.Import(ctx, obj)
}
