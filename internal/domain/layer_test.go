package domain

import (
	"math"
	"testing"
)

func TestClampOpacity(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{-0.2, 0},
		{1.7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}

	for _, tt := range tests {
		if got := ClampOpacity(tt.in); got != tt.want {
			t.Errorf("ClampOpacity(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLayerPayloadChecks(t *testing.T) {
	if (VectorLayer{}).HasData() {
		t.Error("empty vector layer should have no data")
	}
	if (RasterLayer{}).HasImage() {
		t.Error("empty raster layer should have no image")
	}
	if !(RasterLayer{ImageURL: "data:image/png;base64,AA=="}).HasImage() {
		t.Error("raster layer with image url should report HasImage")
	}
}

func TestFitOptions(t *testing.T) {
	auto := AutoFitOptions(DefaultFitPadding, DefaultFitMaxZoom)
	if auto.Padding != [2]int{50, 50} || auto.MaxZoom != 16 || !auto.Animate {
		t.Errorf("AutoFitOptions() = %+v", auto)
	}

	zoom := ZoomToOptions(DefaultFitPadding, DefaultFitMaxZoom)
	if zoom.Padding != [2]int{50, 50} || zoom.MaxZoom != 16 || zoom.Animate {
		t.Errorf("ZoomToOptions() = %+v", zoom)
	}
}
