// Package vector provides decoders turning uploaded vector files into
// feature data.
package vector

import (
	"context"

	"github.com/jobrunner/geolayers/internal/domain"
)

// GeoJSONDecoder decodes GeoJSON documents.
type GeoJSONDecoder struct{}

// NewGeoJSONDecoder creates a GeoJSON decoder.
func NewGeoJSONDecoder() *GeoJSONDecoder {
	return &GeoJSONDecoder{}
}

// Decode parses data as a Feature, FeatureCollection or bare Geometry.
func (d *GeoJSONDecoder) Decode(ctx context.Context, data []byte, _ string) (domain.FeatureData, error) {
	if err := ctx.Err(); err != nil {
		return domain.FeatureData{}, err
	}
	return domain.ParseFeatureData(data)
}

// Extensions returns the handled file extensions.
func (d *GeoJSONDecoder) Extensions() []string {
	return []string{".geojson", ".json"}
}
