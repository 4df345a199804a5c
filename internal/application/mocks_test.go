package application

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fitCall records one FitBounds invocation.
type fitCall struct {
	bounds domain.Bounds
	opts   domain.FitOptions
}

// mockViewport implements output.Viewport for testing.
type mockViewport struct {
	mu     sync.Mutex
	fits   []fitCall
	center domain.LatLng
	zoom   float64
	fitErr error
	fitCh  chan fitCall
}

func (m *mockViewport) FitBounds(bounds domain.Bounds, opts domain.FitOptions) error {
	m.mu.Lock()
	m.fits = append(m.fits, fitCall{bounds: bounds, opts: opts})
	ch := m.fitCh
	m.mu.Unlock()
	if ch != nil {
		ch <- fitCall{bounds: bounds, opts: opts}
	}
	return m.fitErr
}

func (m *mockViewport) SetView(center domain.LatLng, zoom float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = center
	m.zoom = zoom
	return nil
}

func (m *mockViewport) GetZoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *mockViewport) SetZoom(zoom float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoom = zoom
	return nil
}

func (m *mockViewport) GetCenter() domain.LatLng {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *mockViewport) fitCalls() []fitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fitCall, len(m.fits))
	copy(out, m.fits)
	return out
}

// mockVectorDecoder implements output.VectorDecoder for testing.
type mockVectorDecoder struct {
	exts []string
	data domain.FeatureData
	err  error
}

func (m *mockVectorDecoder) Decode(_ context.Context, _ []byte, _ string) (domain.FeatureData, error) {
	return m.data, m.err
}

func (m *mockVectorDecoder) Extensions() []string { return m.exts }

// geojsonDecoder parses GeoJSON with the domain parser.
type geojsonDecoder struct{}

func (geojsonDecoder) Decode(_ context.Context, data []byte, _ string) (domain.FeatureData, error) {
	return domain.ParseFeatureData(data)
}

func (geojsonDecoder) Extensions() []string { return []string{".geojson", ".json"} }

// mockRasterDecoder implements output.RasterDecoder for testing.
type mockRasterDecoder struct {
	img domain.RasterImage
	err error
}

func (m *mockRasterDecoder) Decode(_ context.Context, _ []byte) (domain.RasterImage, error) {
	return m.img, m.err
}

func (m *mockRasterDecoder) Extensions() []string { return []string{".tif", ".tiff", ".geotiff"} }

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	mu          sync.Mutex
	objects     []output.StorageObject
	contents    map[string]string
	listErr     error
	statErr     error
	downloadErr error
	downloads   int
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]output.StorageObject(nil), m.objects...), nil
}

func (m *mockStorage) Download(_ context.Context, key string, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
	if m.downloadErr != nil {
		return m.downloadErr
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(m.contents[key]), 0o600)
}

func (m *mockStorage) Stat(_ context.Context, key string) (output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statErr != nil {
		return output.StorageObject{}, m.statErr
	}
	for _, obj := range m.objects {
		if obj.Key == key {
			return obj, nil
		}
	}
	return output.StorageObject{}, domain.ErrObjectNotFound
}

func pointFeatures(points ...orb.Point) domain.FeatureData {
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(p)
		f.Properties["index"] = i
		fc.Append(f)
	}
	return domain.CollectionData(fc)
}
