package domain

// Renderer style constants.
const (
	PathWeight        = 2
	PathOpacity       = 0.8
	PathFillOpacity   = 0.3
	MarkerRadius      = 6
	MarkerWeight      = 2
	MarkerOpacity     = 0.8
	MarkerFillOpacity = 0.5
	RasterZIndex      = 500
)

// PathStyle styles lines and polygon outlines.
type PathStyle struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// MarkerStyle styles point features drawn as circle markers.
type MarkerStyle struct {
	Radius      int     `json:"radius"`
	FillColor   string  `json:"fillColor"`
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// PopupEntry is one "key: value" line of a feature popup.
type PopupEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Popup lists the properties of the feature at Index, its position in the
// layer's feature collection.
type Popup struct {
	Index   int          `json:"index"`
	Entries []PopupEntry `json:"entries"`
}

// VectorDrawable is a visible vector layer ready to draw.
type VectorDrawable struct {
	LayerID string      `json:"layerId"`
	Name    string      `json:"name"`
	Style   PathStyle   `json:"style"`
	Marker  MarkerStyle `json:"marker"`
	Data    FeatureData `json:"data"`
	Popups  []Popup     `json:"popups"`
}

// RasterOverlay is a visible raster layer ready to draw.
type RasterOverlay struct {
	LayerID  string  `json:"layerId"`
	Name     string  `json:"name"`
	Bounds   Bounds  `json:"bounds"`
	ImageURL string  `json:"imageUrl"`
	Opacity  float64 `json:"opacity"`
	ZIndex   int     `json:"zIndex"`
}

// Scene is everything a renderer draws, vectors below rasters.
type Scene struct {
	Vectors []VectorDrawable `json:"vectors"`
	Rasters []RasterOverlay  `json:"rasters"`
}
