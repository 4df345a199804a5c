package application

import (
	"log/slog"
	"math"
	"sync"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/input"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// ViewportCoordinator holds the single live viewport handle and forwards
// view commands to it.
type ViewportCoordinator struct {
	mu       sync.RWMutex
	current  output.Viewport
	fallback domain.ViewState
	metrics  output.MetricsCollector
	logger   *slog.Logger
}

// NewViewportCoordinator creates a coordinator without a mounted viewport.
// fallback is reported by State while no client is mounted.
func NewViewportCoordinator(fallback domain.ViewState, metrics output.MetricsCollector, logger *slog.Logger) *ViewportCoordinator {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &ViewportCoordinator{
		fallback: fallback,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetViewport installs v as the current handle, replacing any older one.
func (c *ViewportCoordinator) SetViewport(v output.Viewport) {
	if v == nil {
		return
	}
	c.mu.Lock()
	c.current = v
	c.mu.Unlock()

	c.metrics.SetViewportConnected(true)
	c.logger.Info("viewport mounted")
}

// ClearViewport clears the handle if v is still current. An older handle
// unmounting never clears a newer one. Reports whether the handle was
// cleared.
func (c *ViewportCoordinator) ClearViewport(v output.Viewport) bool {
	c.mu.Lock()
	if c.current == nil || c.current != v {
		c.mu.Unlock()
		return false
	}
	c.current = nil
	c.mu.Unlock()

	c.metrics.SetViewportConnected(false)
	c.logger.Info("viewport unmounted")
	return true
}

// Viewport returns the current handle or nil.
func (c *ViewportCoordinator) Viewport() output.Viewport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// FitBounds fits the view to bounds. Invalid bounds are a silent no-op.
func (c *ViewportCoordinator) FitBounds(bounds domain.Bounds, opts domain.FitOptions) error {
	if !bounds.IsValid() {
		return nil
	}
	v := c.Viewport()
	if v == nil {
		return domain.ErrNoViewport
	}
	c.metrics.IncViewportCommands("fit_bounds")
	return v.FitBounds(bounds, opts)
}

// SetView centers the view at the given zoom.
func (c *ViewportCoordinator) SetView(center domain.LatLng, zoom float64) error {
	v := c.Viewport()
	if v == nil {
		return domain.ErrNoViewport
	}
	c.metrics.IncViewportCommands("set_view")
	return v.SetView(center, zoom)
}

// SetZoom changes the zoom level.
func (c *ViewportCoordinator) SetZoom(zoom float64) error {
	v := c.Viewport()
	if v == nil {
		return domain.ErrNoViewport
	}
	c.metrics.IncViewportCommands("set_zoom")
	return v.SetZoom(zoom)
}

// GetZoom returns the zoom of the mounted viewport.
func (c *ViewportCoordinator) GetZoom() (float64, error) {
	v := c.Viewport()
	if v == nil {
		return 0, domain.ErrNoViewport
	}
	return v.GetZoom(), nil
}

// GetCenter returns the center of the mounted viewport.
func (c *ViewportCoordinator) GetCenter() (domain.LatLng, error) {
	v := c.Viewport()
	if v == nil {
		return domain.LatLng{}, domain.ErrNoViewport
	}
	return v.GetCenter(), nil
}

// State returns the current view. Without a mounted viewport it returns the
// configured default view together with ErrNoViewport.
func (c *ViewportCoordinator) State() (domain.ViewState, error) {
	v := c.Viewport()
	if v == nil {
		return c.fallback, domain.ErrNoViewport
	}
	return domain.ViewState{Center: v.GetCenter(), Zoom: v.GetZoom()}, nil
}

// Connected reports whether a viewport is mounted.
func (c *ViewportCoordinator) Connected() bool {
	return c.Viewport() != nil
}

// ZoomBy changes the zoom level by delta, bounded to [0, MaxZoomLevel].
func (c *ViewportCoordinator) ZoomBy(delta float64) error {
	zoom, err := c.GetZoom()
	if err != nil {
		return err
	}
	return c.SetZoom(math.Max(0, math.Min(domain.MaxZoomLevel, zoom+delta)))
}

// ResetView fits the view to the pipeline layer. When that layer is missing
// or has no valid bounds the view returns to the default center and zoom.
func (c *ViewportCoordinator) ResetView(store input.LayerStore) error {
	if c.Viewport() == nil {
		return domain.ErrNoViewport
	}

	if layer, ok := store.VectorLayer(domain.PipelineLayerID); ok && layer.HasData() {
		if bounds := layer.Bounds(); bounds.IsValid() {
			opts := domain.FitOptions{
				Padding: [2]int{domain.DefaultFitPadding, domain.DefaultFitPadding},
				MaxZoom: domain.ResetFitMaxZoom,
				Animate: true,
			}
			err := c.FitBounds(bounds, opts)
			if err == nil {
				return nil
			}
			c.logger.Warn("reset to pipeline view failed, using default view", "error", err)
		}
	}
	return c.SetView(c.fallback.Center, c.fallback.Zoom)
}
