package application

import (
	"context"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geolayers/internal/domain"
)

func TestHealthServiceIsHealthy(t *testing.T) {
	service := NewHealthService(newTestStore(0), nil, "")

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceIsReady(t *testing.T) {
	tests := []struct {
		name   string
		layers LayerCounter
		want   bool
	}{
		{name: "with store", layers: newTestStore(0), want: true},
		{name: "without store", layers: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewHealthService(tt.layers, nil, "")
			if got := service.IsReady(context.Background()); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthServiceGetHealthDetails(t *testing.T) {
	store := newTestStore(0)
	store.AddVectorLayer(domain.VectorLayerInput{Name: "a", Data: pointFeatures(orb.Point{1, 1})}, nil)
	store.AddVectorLayer(domain.VectorLayerInput{Name: "b"}, nil)
	store.AddRasterLayer(domain.RasterLayerInput{Name: "r"})

	viewports := NewViewportCoordinator(defaultView, nil, testLogger())
	service := NewHealthService(store, viewports, "s3")

	details := service.GetHealthDetails(context.Background())
	if !details.Healthy || !details.Ready {
		t.Errorf("Healthy=%v Ready=%v, want both true", details.Healthy, details.Ready)
	}
	if details.VectorLayers != 2 || details.RasterLayers != 1 {
		t.Errorf("counts = %d/%d, want 2/1", details.VectorLayers, details.RasterLayers)
	}
	if details.ViewportConnected {
		t.Error("ViewportConnected should be false before mount")
	}
	if details.Components["viewport"] != "disconnected" || details.Components["storage"] != "s3" {
		t.Errorf("components = %v", details.Components)
	}

	viewports.SetViewport(&mockViewport{})
	details = service.GetHealthDetails(context.Background())
	if !details.ViewportConnected || details.Components["viewport"] != "connected" {
		t.Errorf("after mount: connected=%v components=%v", details.ViewportConnected, details.Components)
	}
}

func TestHealthServiceWithoutStorage(t *testing.T) {
	details := NewHealthService(newTestStore(0), nil, "").GetHealthDetails(context.Background())
	if _, ok := details.Components["storage"]; ok {
		t.Errorf("storage component reported without a source: %v", details.Components)
	}
}
