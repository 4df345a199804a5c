package domain

// Fit defaults used by auto-fit and zoom-to.
const (
	DefaultFitPadding = 50
	DefaultFitMaxZoom = 16

	// ResetFitMaxZoom caps the zoom when resetting to the pipeline layer.
	ResetFitMaxZoom = 14

	// MaxZoomLevel is the deepest zoom offered to clients.
	MaxZoomLevel = 18
)

// FitOptions controls a bounds fit.
type FitOptions struct {
	Padding [2]int `json:"padding"`
	MaxZoom int    `json:"maxZoom"`
	Animate bool   `json:"animate"`
}

// AutoFitOptions are applied after a vector layer is added.
func AutoFitOptions(padding, maxZoom int) FitOptions {
	return FitOptions{Padding: [2]int{padding, padding}, MaxZoom: maxZoom, Animate: true}
}

// ZoomToOptions are applied when zooming to an existing layer.
func ZoomToOptions(padding, maxZoom int) FitOptions {
	return FitOptions{Padding: [2]int{padding, padding}, MaxZoom: maxZoom, Animate: false}
}

// ViewState is the last reported view of a map client.
type ViewState struct {
	Center LatLng  `json:"center"`
	Zoom   float64 `json:"zoom"`
}
