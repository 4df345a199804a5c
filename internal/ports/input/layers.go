// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// LayerStore defines the primary port for layer lifecycle management.
type LayerStore interface {
	// VectorLayers returns copies of the vector layers in insertion order.
	VectorLayers() []domain.VectorLayer

	// RasterLayers returns copies of the raster layers in insertion order.
	RasterLayers() []domain.RasterLayer

	// VectorLayer returns a vector layer by ID.
	VectorLayer(id string) (domain.VectorLayer, bool)

	// RasterLayer returns a raster layer by ID.
	RasterLayer(id string) (domain.RasterLayer, bool)

	// AddVectorLayer appends a vector layer and schedules an auto-fit when a
	// viewport is given.
	AddVectorLayer(in domain.VectorLayerInput, viewport output.Viewport) domain.VectorLayer

	// RemoveVectorLayer removes a vector layer. Reports whether it existed.
	RemoveVectorLayer(id string) bool

	// ToggleVectorVisibility flips visibility. Reports whether it existed.
	ToggleVectorVisibility(id string) bool

	// ZoomToVectorLayer fits the viewport to the layer. Reports whether a
	// fit was issued.
	ZoomToVectorLayer(id string, viewport output.Viewport) bool

	// AcknowledgeMounted signals that the renderer has drawn the layer.
	AcknowledgeMounted(id string) bool

	// AddRasterLayer appends a raster layer.
	AddRasterLayer(in domain.RasterLayerInput) domain.RasterLayer

	// RemoveRasterLayer removes a raster layer. Reports whether it existed.
	RemoveRasterLayer(id string) bool

	// ToggleRasterVisibility flips visibility. Reports whether it existed.
	ToggleRasterVisibility(id string) bool

	// SetRasterOpacity sets a clamped opacity. Reports whether it existed.
	SetRasterOpacity(id string, value float64) bool

	// Subscribe returns a channel receiving layer events.
	Subscribe() <-chan domain.LayerEvent

	// Unsubscribe closes a channel returned by Subscribe.
	Unsubscribe(ch <-chan domain.LayerEvent)
}

// IngestRequest is an uploaded file.
type IngestRequest struct {
	Filename string // Original filename, used for dispatch and naming
	Data     []byte // File contents
	Name     string // Optional display name
	Color    string // Optional vector color
}

// IngestResult reports the layer created by an ingestion.
type IngestResult struct {
	Kind   domain.LayerKind    `json:"kind"`
	Vector *domain.VectorLayer `json:"vector,omitempty"`
	Raster *domain.RasterLayer `json:"raster,omitempty"`
}

// LayerID returns the id of the created layer.
func (r IngestResult) LayerID() string {
	switch {
	case r.Vector != nil:
		return r.Vector.ID
	case r.Raster != nil:
		return r.Raster.ID
	default:
		return ""
	}
}

// Ingestor defines the primary port for file ingestion.
type Ingestor interface {
	// Ingest decodes a file and registers the resulting layer.
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)

	// Accepts reports whether the filename has a supported extension.
	Accepts(filename string) bool
}

// ViewportService defines the primary port for viewport commands.
type ViewportService interface {
	// Viewport returns the current handle or nil.
	Viewport() output.Viewport

	// FitBounds fits the view to bounds. Invalid bounds are a no-op.
	FitBounds(bounds domain.Bounds, opts domain.FitOptions) error

	// SetView centers the view.
	SetView(center domain.LatLng, zoom float64) error

	// SetZoom changes the zoom level.
	SetZoom(zoom float64) error

	// State returns the last reported view.
	State() (domain.ViewState, error)
}

// SceneBuilder defines the primary port for the renderer contract.
type SceneBuilder interface {
	// BuildScene returns the drawables for the current store contents.
	BuildScene() domain.Scene
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy           bool              // Overall health status
	Ready             bool              // Ready to accept requests
	VectorLayers      int               // Number of vector layers
	RasterLayers      int               // Number of raster layers
	ViewportConnected bool              // Whether a map client is mounted
	Components        map[string]string // Component statuses
}
