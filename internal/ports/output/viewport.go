package output

import "github.com/jobrunner/geolayers/internal/domain"

// Viewport is a live handle to a mounted map view.
type Viewport interface {
	// FitBounds fits the view to bounds.
	FitBounds(bounds domain.Bounds, opts domain.FitOptions) error

	// SetView centers the view at the given zoom.
	SetView(center domain.LatLng, zoom float64) error

	// GetZoom returns the current zoom level.
	GetZoom() float64

	// SetZoom changes the zoom level.
	SetZoom(zoom float64) error

	// GetCenter returns the current center.
	GetCenter() domain.LatLng
}
