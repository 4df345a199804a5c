package application

import (
	"context"

	"github.com/jobrunner/geolayers/internal/ports/input"
)

// LayerCounter reports store sizes.
type LayerCounter interface {
	Counts() (vectors, rasters int)
}

// HealthService provides health check functionality.
type HealthService struct {
	layers    LayerCounter
	viewports *ViewportCoordinator
	storage   string
}

// NewHealthService creates a new health service. storage names the
// configured layer source, empty when none is configured.
func NewHealthService(layers LayerCounter, viewports *ViewportCoordinator, storage string) *HealthService {
	return &HealthService{
		layers:    layers,
		viewports: viewports,
		storage:   storage,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true once the store can serve layers.
func (s *HealthService) IsReady(_ context.Context) bool {
	return s.layers != nil
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	vectors, rasters := 0, 0
	if s.layers != nil {
		vectors, rasters = s.layers.Counts()
	}

	connected := s.viewports != nil && s.viewports.Connected()

	components := map[string]string{
		"store":    "ok",
		"viewport": "disconnected",
	}
	if connected {
		components["viewport"] = "connected"
	}
	if s.storage != "" {
		components["storage"] = s.storage
	}

	return input.HealthDetails{
		Healthy:           s.IsHealthy(ctx),
		Ready:             s.IsReady(ctx),
		VectorLayers:      vectors,
		RasterLayers:      rasters,
		ViewportConnected: connected,
		Components:        components,
	}
}
