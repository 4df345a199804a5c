// Package geotiff decodes georeferenced TIFF images into PNG overlays.
package geotiff

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

const (
	format = "geotiff"

	// DefaultMaxPixels bounds the decoded pixel buffer.
	DefaultMaxPixels = 64 << 20

	dataURLPrefix = "data:image/png;base64,"
)

// Decoder turns GeoTIFF bytes into a bounded PNG overlay.
type Decoder struct {
	maxPixels   int
	transformer output.CoordinateTransformer
	logger      *slog.Logger
}

// NewDecoder creates a decoder. Rasters with more than maxPixels pixels are
// rejected; a non-positive value selects DefaultMaxPixels. transformer may
// be nil.
func NewDecoder(maxPixels int, transformer output.CoordinateTransformer, logger *slog.Logger) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Decoder{maxPixels: maxPixels, transformer: transformer, logger: logger}
}

// Extensions returns the handled file extensions.
func (d *Decoder) Extensions() []string {
	return []string{".tif", ".tiff", ".geotiff"}
}

// Decode reads the raw samples of the first image, its bounding box and
// projection and renders it as a PNG data URL.
func (d *Decoder) Decode(ctx context.Context, data []byte) (domain.RasterImage, error) {
	dir, err := readDirectory(data)
	if err != nil {
		if errors.Is(err, errBigTIFF) {
			return domain.RasterImage{}, &domain.UnsupportedFormatError{Extension: ".tif", Reason: err.Error()}
		}
		return domain.RasterImage{}, &domain.DecodeError{Format: format, Err: err}
	}

	bands := dir.SamplesPerPixel
	if bands != 1 && bands != 3 && bands != 4 {
		return domain.RasterImage{}, &domain.UnsupportedFormatError{
			Extension: ".tif",
			Reason:    fmt.Sprintf("%d bands, expected 1, 3 or 4", bands),
		}
	}

	west, south, east, north, ok := dir.bbox()
	if !ok {
		return domain.RasterImage{}, &domain.FormatError{
			Format: format,
			Reason: "missing ModelPixelScale and ModelTiepoint or ModelTransformation",
		}
	}

	if pixels := int64(dir.Width) * int64(dir.Height); pixels > int64(d.maxPixels) {
		return domain.RasterImage{}, &domain.RenderError{
			Stage: "allocate",
			Err:   fmt.Errorf("%dx%d raster exceeds the %d pixel budget", dir.Width, dir.Height, d.maxPixels),
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.RasterImage{}, err
	}

	c := newCanvas(dir.Width, dir.Height, bands)
	if err := readSamples(ctx, data, dir, c); err != nil {
		switch {
		case ctx.Err() != nil:
			return domain.RasterImage{}, ctx.Err()
		case errors.Is(err, errLayout):
			return domain.RasterImage{}, &domain.UnsupportedFormatError{Extension: ".tif", Reason: err.Error()}
		}
		return domain.RasterImage{}, &domain.DecodeError{Format: format, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return domain.RasterImage{}, err
	}

	url, err := encodeDataURL(c.img)
	if err != nil {
		return domain.RasterImage{}, err
	}

	projected, geographic := dir.epsg()
	bounds := d.toWGS84(ctx, west, south, east, north, projected, geographic)

	return domain.RasterImage{
		Bounds:   bounds,
		ImageURL: url,
		Metadata: domain.RasterMetadata{
			Width:      dir.Width,
			Height:     dir.Height,
			Bands:      bands,
			Projection: domain.ProjectionLabel(projected),
		},
	}, nil
}

// toWGS84 reprojects the corners of a projected bbox when a transformer
// supports the CRS and otherwise returns the bbox unchanged.
func (d *Decoder) toWGS84(ctx context.Context, west, south, east, north float64, projected, geographic int) domain.Bounds {
	asIs := domain.BoundsFromBBox(west, south, east, north)

	source := projected
	if source == 0 && geographic != 0 && geographic != domain.SRIDWGS84 {
		source = geographic
	}
	if source == 0 || source == domain.SRIDWGS84 || d.transformer == nil ||
		!d.transformer.IsSupported(source, domain.SRIDWGS84) {
		return asIs
	}

	corners := []domain.Coordinate{
		domain.NewCoordinate(west, south, source),
		domain.NewCoordinate(west, north, source),
		domain.NewCoordinate(east, south, source),
		domain.NewCoordinate(east, north, source),
	}
	out := domain.EmptyBounds()
	for _, c := range corners {
		t, err := d.transformer.Transform(ctx, c, domain.SRIDWGS84)
		if err != nil {
			d.logger.Warn("raster bbox reprojection failed, using native coordinates",
				"epsg", source, "error", err)
			return asIs
		}
		out = out.Extend(t.LatLng())
	}
	return out
}

// encodeDataURL encodes img as PNG wrapped in a base64 data URL.
func encodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", &domain.RenderError{Stage: "encode", Err: err}
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
