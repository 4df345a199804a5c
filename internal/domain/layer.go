package domain

import (
	"math"
	"time"
)

// Reserved pipeline layer and renderer defaults.
const (
	PipelineLayerID   = "pipeline-default"
	PipelineLayerName = "Pipeline Network"
	PipelineColor     = "#FF6B35"

	DefaultLayerColor    = "#3b82f6"
	DefaultRasterOpacity = 0.8

	// RasterNameSuffix is appended to raster names derived from filenames.
	RasterNameSuffix = " (GeoTIFF)"
)

// LayerKind distinguishes the two layer collections.
type LayerKind string

// Layer kinds.
const (
	LayerKindVector LayerKind = "vector"
	LayerKindRaster LayerKind = "raster"
)

// VectorLayer is a named collection of vector features.
type VectorLayer struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Data       FeatureData `json:"data"`
	Visible    bool        `json:"visible"`
	Color      string      `json:"color,omitempty"`
	UploadedAt time.Time   `json:"uploadedAt"`
}

// HasData reports whether the layer carries a payload.
func (l VectorLayer) HasData() bool {
	return !l.Data.IsZero()
}

// Bounds returns the envelope of the layer data.
func (l VectorLayer) Bounds() Bounds {
	return l.Data.Bounds()
}

// RasterMetadata describes the source raster.
type RasterMetadata struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bands      int    `json:"bands"`
	Projection string `json:"projection"`
}

// RasterLayer is a georeferenced image overlay.
type RasterLayer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Bounds     Bounds          `json:"bounds"`
	ImageURL   string          `json:"imageUrl"`
	Visible    bool            `json:"visible"`
	Opacity    float64         `json:"opacity"`
	Metadata   *RasterMetadata `json:"metadata,omitempty"`
	UploadedAt time.Time       `json:"uploadedAt"`
}

// HasImage reports whether the layer carries an image payload.
func (l RasterLayer) HasImage() bool {
	return l.ImageURL != ""
}

// VectorLayerInput is a vector layer before the store assigns id and time.
type VectorLayerInput struct {
	ID     string // Optional; used for reserved layers only
	Name   string
	Data   FeatureData
	Hidden bool // Layers are visible unless Hidden is set
	Color  string
}

// RasterLayerInput is a raster layer before the store assigns id and time.
type RasterLayerInput struct {
	Name     string
	Bounds   Bounds
	ImageURL string
	Hidden   bool
	Opacity  float64 // Clamped to [0, 1] by the store
	Metadata *RasterMetadata
}

// RasterImage is the output of raster ingestion.
type RasterImage struct {
	Bounds   Bounds
	ImageURL string
	Metadata RasterMetadata
}

// ClampOpacity restricts v to [0, 1]. NaN maps to 0.
func ClampOpacity(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
