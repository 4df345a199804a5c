package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/input"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// ViewportProvider exposes the current viewport handle.
type ViewportProvider interface {
	Viewport() output.Viewport
}

// IngestService routes uploaded files to a decoder and registers the
// resulting layer.
type IngestService struct {
	store         input.LayerStore
	viewports     ViewportProvider
	vectors       map[string]output.VectorDecoder
	rasters       map[string]output.RasterDecoder
	rasterOpacity float64
	metrics       output.MetricsCollector
	logger        *slog.Logger

	randomColor func() string
}

// NewIngestService creates an ingestion service. Decoders are registered
// by their extensions; later decoders win on conflicts.
func NewIngestService(
	store input.LayerStore,
	viewports ViewportProvider,
	vectors []output.VectorDecoder,
	rasters []output.RasterDecoder,
	rasterOpacity float64,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *IngestService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	s := &IngestService{
		store:         store,
		viewports:     viewports,
		vectors:       make(map[string]output.VectorDecoder),
		rasters:       make(map[string]output.RasterDecoder),
		rasterOpacity: rasterOpacity,
		metrics:       metrics,
		logger:        logger,
		randomColor:   randomLayerColor,
	}
	for _, d := range vectors {
		for _, ext := range d.Extensions() {
			s.vectors[strings.ToLower(ext)] = d
		}
	}
	for _, d := range rasters {
		for _, ext := range d.Extensions() {
			s.rasters[strings.ToLower(ext)] = d
		}
	}
	return s
}

// randomLayerColor returns a random "#RRGGBB80" color.
func randomLayerColor() string {
	return fmt.Sprintf("#%06x80", rand.IntN(0xFFFFFF))
}

// Extensions returns every accepted extension, sorted.
func (s *IngestService) Extensions() []string {
	exts := make([]string, 0, len(s.vectors)+len(s.rasters))
	for ext := range s.vectors {
		exts = append(exts, ext)
	}
	for ext := range s.rasters {
		if _, dup := s.vectors[ext]; !dup {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Accepts reports whether filename has a supported extension.
func (s *IngestService) Accepts(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.vectors[ext]; ok {
		return true
	}
	_, ok := s.rasters[ext]
	return ok
}

// Ingest decodes the file and adds the layer to the store. The store is not
// touched when decoding fails.
func (s *IngestService) Ingest(ctx context.Context, req input.IngestRequest) (input.IngestResult, error) {
	ext := strings.ToLower(filepath.Ext(req.Filename))
	format := strings.TrimPrefix(ext, ".")
	if format == "" {
		format = "unknown"
	}
	start := time.Now()

	result, err := s.ingest(ctx, ext, req)
	s.metrics.ObserveIngestDuration(format, time.Since(start))
	s.metrics.IncIngestions(format, err == nil)
	if err != nil {
		s.logger.Warn("ingestion failed", "file", req.Filename, "error", err)
		return input.IngestResult{}, err
	}
	return result, nil
}

func (s *IngestService) ingest(ctx context.Context, ext string, req input.IngestRequest) (input.IngestResult, error) {
	if vd, ok := s.vectors[ext]; ok {
		data, err := vd.Decode(ctx, req.Data, req.Filename)
		if err != nil {
			return input.IngestResult{}, err
		}
		if err := ctx.Err(); err != nil {
			return input.IngestResult{}, err
		}

		color := req.Color
		if color == "" {
			color = s.randomColor()
		}
		layer := s.store.AddVectorLayer(domain.VectorLayerInput{
			Name:  s.layerName(req, ""),
			Data:  data,
			Color: color,
		}, s.currentViewport())
		return input.IngestResult{Kind: domain.LayerKindVector, Vector: &layer}, nil
	}

	if rd, ok := s.rasters[ext]; ok {
		img, err := rd.Decode(ctx, req.Data)
		if err != nil {
			return input.IngestResult{}, err
		}
		if err := ctx.Err(); err != nil {
			return input.IngestResult{}, err
		}

		meta := img.Metadata
		layer := s.store.AddRasterLayer(domain.RasterLayerInput{
			Name:     s.layerName(req, domain.RasterNameSuffix),
			Bounds:   img.Bounds,
			ImageURL: img.ImageURL,
			Opacity:  s.rasterOpacity,
			Metadata: &meta,
		})
		return input.IngestResult{Kind: domain.LayerKindRaster, Raster: &layer}, nil
	}

	return input.IngestResult{}, &domain.UnsupportedFormatError{Extension: ext}
}

func (s *IngestService) currentViewport() output.Viewport {
	if s.viewports == nil {
		return nil
	}
	return s.viewports.Viewport()
}

// layerName returns the requested name, or the base filename without its
// extension followed by suffix.
func (s *IngestService) layerName(req input.IngestRequest, suffix string) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	return StripExtension(req.Filename) + suffix
}

// StripExtension returns the base name of path without its last extension.
func StripExtension(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
