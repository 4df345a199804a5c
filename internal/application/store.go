// Package application contains the application services.
package application

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// Layer id prefixes.
const (
	VectorIDPrefix = "geojson"
	RasterIDPrefix = "geotiff"
)

// StoreOptions configures the layer store.
type StoreOptions struct {
	FitPadding    int           // Padding in pixels for both axes
	FitMaxZoom    int           // Upper zoom bound for fits
	SettleTimeout time.Duration // Fallback delay for auto-fit, 0 waits for acknowledgment only
}

// DefaultSettleTimeout is the fallback after which a pending fit fires
// without a mounted acknowledgment from the renderer.
const DefaultSettleTimeout = 5 * time.Second

// DefaultStoreOptions returns the standard fit behaviour.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		FitPadding:    domain.DefaultFitPadding,
		FitMaxZoom:    domain.DefaultFitMaxZoom,
		SettleTimeout: DefaultSettleTimeout,
	}
}

// LayerStore owns the vector and raster layer collections. All mutations
// are serialized by a single mutex.
type LayerStore struct {
	mu      sync.RWMutex
	vectors []domain.VectorLayer
	rasters []domain.RasterLayer
	pending map[string]*pendingFit

	opts    StoreOptions
	bus     *EventBus
	metrics output.MetricsCollector
	logger  *slog.Logger

	now   func() time.Time
	newID func(prefix string, at time.Time) string
}

type pendingFit struct {
	viewport output.Viewport
	bounds   domain.Bounds
	timer    *time.Timer
}

// NewLayerStore creates an empty layer store.
func NewLayerStore(opts StoreOptions, metrics output.MetricsCollector, logger *slog.Logger) *LayerStore {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &LayerStore{
		pending: make(map[string]*pendingFit),
		opts:    opts,
		bus:     NewEventBus(),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		newID:   newLayerID,
	}
}

// newLayerID returns "<prefix>-<unix ms>-<9 char suffix>".
func newLayerID(prefix string, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, at.UnixMilli(), suffix)
}

// VectorLayers returns copies of the vector layers in insertion order.
func (s *LayerStore) VectorLayers() []domain.VectorLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layers := make([]domain.VectorLayer, len(s.vectors))
	copy(layers, s.vectors)
	return layers
}

// RasterLayers returns copies of the raster layers in insertion order.
func (s *LayerStore) RasterLayers() []domain.RasterLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layers := make([]domain.RasterLayer, len(s.rasters))
	for i, l := range s.rasters {
		layers[i] = cloneRaster(l)
	}
	return layers
}

// VectorLayer returns a vector layer by ID.
func (s *LayerStore) VectorLayer(id string) (domain.VectorLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.vectorIndex(id); i >= 0 {
		return s.vectors[i], true
	}
	return domain.VectorLayer{}, false
}

// RasterLayer returns a raster layer by ID.
func (s *LayerStore) RasterLayer(id string) (domain.RasterLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.rasterIndex(id); i >= 0 {
		return cloneRaster(s.rasters[i]), true
	}
	return domain.RasterLayer{}, false
}

// AddVectorLayer stamps and appends a vector layer. When viewport is non-nil
// and the data has valid bounds, a fit is scheduled for when the renderer
// acknowledges the layer, or when the settle timeout elapses.
func (s *LayerStore) AddVectorLayer(in domain.VectorLayerInput, viewport output.Viewport) domain.VectorLayer {
	now := s.now()

	s.mu.Lock()
	id := in.ID
	if id == "" || s.vectorIndex(id) >= 0 {
		id = s.newID(VectorIDPrefix, now)
	}
	layer := domain.VectorLayer{
		ID:         id,
		Name:       in.Name,
		Data:       in.Data,
		Visible:    !in.Hidden,
		Color:      in.Color,
		UploadedAt: now,
	}
	s.vectors = append(s.vectors, layer)

	if viewport != nil {
		if bounds := layer.Bounds(); bounds.IsValid() {
			pf := &pendingFit{viewport: viewport, bounds: bounds}
			if s.opts.SettleTimeout > 0 {
				pf.timer = time.AfterFunc(s.opts.SettleTimeout, func() {
					if s.completeFit(id) {
						s.logger.Debug("auto-fit fired after settle timeout", "layer", id)
					}
				})
			}
			s.pending[id] = pf
		}
	}
	count := len(s.vectors)
	s.mu.Unlock()

	s.metrics.SetLayerCount(string(domain.LayerKindVector), count)
	s.publish(domain.LayerAdded, domain.LayerKindVector, id)
	s.logger.Info("vector layer added", "id", id, "name", layer.Name, "features", layer.Data.FeatureCount())

	return layer
}

// AcknowledgeMounted runs the pending auto-fit of a layer, if any. Reports
// whether a fit was issued.
func (s *LayerStore) AcknowledgeMounted(id string) bool {
	return s.completeFit(id)
}

// completeFit issues the pending fit for id at most once.
func (s *LayerStore) completeFit(id string) bool {
	s.mu.Lock()
	pf, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if pf.timer != nil {
		pf.timer.Stop()
	}

	opts := domain.AutoFitOptions(s.opts.FitPadding, s.opts.FitMaxZoom)
	if err := pf.viewport.FitBounds(pf.bounds, opts); err != nil {
		s.logger.Warn("auto-fit failed", "layer", id, "error", err)
		return false
	}
	return true
}

// cancelFitLocked drops a pending fit. Caller holds s.mu.
func (s *LayerStore) cancelFitLocked(id string) {
	if pf, ok := s.pending[id]; ok {
		if pf.timer != nil {
			pf.timer.Stop()
		}
		delete(s.pending, id)
	}
}

// HasPendingFit reports whether an auto-fit is waiting for id.
func (s *LayerStore) HasPendingFit(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

// RemoveVectorLayer removes a vector layer. Removing an absent id is a no-op.
func (s *LayerStore) RemoveVectorLayer(id string) bool {
	s.mu.Lock()
	i := s.vectorIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.vectors = append(s.vectors[:i:i], s.vectors[i+1:]...)
	s.cancelFitLocked(id)
	count := len(s.vectors)
	s.mu.Unlock()

	s.metrics.SetLayerCount(string(domain.LayerKindVector), count)
	s.publish(domain.LayerRemoved, domain.LayerKindVector, id)
	s.logger.Info("vector layer removed", "id", id)
	return true
}

// ToggleVectorVisibility flips the visibility of a vector layer.
func (s *LayerStore) ToggleVectorVisibility(id string) bool {
	s.mu.Lock()
	i := s.vectorIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.vectors[i].Visible = !s.vectors[i].Visible
	s.mu.Unlock()

	s.publish(domain.LayerUpdated, domain.LayerKindVector, id)
	return true
}

// ZoomToVectorLayer fits viewport to the bounds of a layer. It issues
// nothing when the layer is missing, its bounds are invalid or viewport is
// nil.
func (s *LayerStore) ZoomToVectorLayer(id string, viewport output.Viewport) bool {
	layer, ok := s.VectorLayer(id)
	if !ok || viewport == nil {
		return false
	}

	bounds := layer.Bounds()
	if !bounds.IsValid() {
		return false
	}

	opts := domain.ZoomToOptions(s.opts.FitPadding, s.opts.FitMaxZoom)
	if err := viewport.FitBounds(bounds, opts); err != nil {
		s.logger.Warn("zoom to layer failed", "layer", id, "error", err)
		return false
	}
	return true
}

// AddRasterLayer stamps and appends a raster layer.
func (s *LayerStore) AddRasterLayer(in domain.RasterLayerInput) domain.RasterLayer {
	now := s.now()

	var meta *domain.RasterMetadata
	if in.Metadata != nil {
		m := *in.Metadata
		meta = &m
	}

	s.mu.Lock()
	layer := domain.RasterLayer{
		ID:         s.newID(RasterIDPrefix, now),
		Name:       in.Name,
		Bounds:     in.Bounds,
		ImageURL:   in.ImageURL,
		Visible:    !in.Hidden,
		Opacity:    domain.ClampOpacity(in.Opacity),
		Metadata:   meta,
		UploadedAt: now,
	}
	s.rasters = append(s.rasters, layer)
	count := len(s.rasters)
	s.mu.Unlock()

	s.metrics.SetLayerCount(string(domain.LayerKindRaster), count)
	s.publish(domain.LayerAdded, domain.LayerKindRaster, layer.ID)
	s.logger.Info("raster layer added", "id", layer.ID, "name", layer.Name)

	return cloneRaster(layer)
}

// RemoveRasterLayer removes a raster layer. Removing an absent id is a no-op.
func (s *LayerStore) RemoveRasterLayer(id string) bool {
	s.mu.Lock()
	i := s.rasterIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.rasters = append(s.rasters[:i:i], s.rasters[i+1:]...)
	count := len(s.rasters)
	s.mu.Unlock()

	s.metrics.SetLayerCount(string(domain.LayerKindRaster), count)
	s.publish(domain.LayerRemoved, domain.LayerKindRaster, id)
	s.logger.Info("raster layer removed", "id", id)
	return true
}

// ToggleRasterVisibility flips the visibility of a raster layer.
func (s *LayerStore) ToggleRasterVisibility(id string) bool {
	s.mu.Lock()
	i := s.rasterIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.rasters[i].Visible = !s.rasters[i].Visible
	s.mu.Unlock()

	s.publish(domain.LayerUpdated, domain.LayerKindRaster, id)
	return true
}

// SetRasterOpacity sets the opacity of a raster layer, clamped to [0, 1].
func (s *LayerStore) SetRasterOpacity(id string, value float64) bool {
	s.mu.Lock()
	i := s.rasterIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.rasters[i].Opacity = domain.ClampOpacity(value)
	s.mu.Unlock()

	s.publish(domain.LayerUpdated, domain.LayerKindRaster, id)
	return true
}

// Counts returns the number of vector and raster layers.
func (s *LayerStore) Counts() (vectors, rasters int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), len(s.rasters)
}

// Subscribe returns a channel receiving layer events.
func (s *LayerStore) Subscribe() <-chan domain.LayerEvent {
	return s.bus.Subscribe()
}

// Unsubscribe closes a channel returned by Subscribe.
func (s *LayerStore) Unsubscribe(ch <-chan domain.LayerEvent) {
	s.bus.Unsubscribe(ch)
}

// Close cancels every pending auto-fit.
func (s *LayerStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pending {
		s.cancelFitLocked(id)
	}
}

func (s *LayerStore) publish(typ domain.LayerEventType, kind domain.LayerKind, id string) {
	s.bus.Publish(domain.LayerEvent{Type: typ, Kind: kind, LayerID: id, At: s.now()})
}

func (s *LayerStore) vectorIndex(id string) int {
	for i := range s.vectors {
		if s.vectors[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *LayerStore) rasterIndex(id string) int {
	for i := range s.rasters {
		if s.rasters[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneRaster(l domain.RasterLayer) domain.RasterLayer {
	if l.Metadata != nil {
		m := *l.Metadata
		l.Metadata = &m
	}
	return l
}
