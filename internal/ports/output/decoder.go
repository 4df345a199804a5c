package output

import (
	"context"

	"github.com/jobrunner/geolayers/internal/domain"
)

// VectorDecoder defines the secondary port for vector file formats.
type VectorDecoder interface {
	// Decode parses file contents into feature data.
	Decode(ctx context.Context, data []byte, filename string) (domain.FeatureData, error)

	// Extensions returns the lower-cased extensions handled, with dot.
	Extensions() []string
}

// RasterDecoder defines the secondary port for raster file formats.
type RasterDecoder interface {
	// Decode parses file contents into a georeferenced image.
	Decode(ctx context.Context, data []byte) (domain.RasterImage, error)

	// Extensions returns the lower-cased extensions handled, with dot.
	Extensions() []string
}

// CoordinateTransformer defines the secondary port for coordinate transformations.
type CoordinateTransformer interface {
	// Transform transforms a coordinate from one SRID to another.
	Transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error)

	// IsSupported checks if a transformation is supported.
	IsSupported(sourceSRID, targetSRID int) bool
}
