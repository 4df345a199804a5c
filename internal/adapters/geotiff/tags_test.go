package geotiff

import (
	"errors"
	"testing"
)

func TestReadDirectory(t *testing.T) {
	tt := georeferenced(3, make([]uint16, 12)...)
	tt.geoKeys = []uint16{1, 1, 0, 2, 2048, 0, 1, 4326, 3072, 0, 1, 32631}

	dir, err := readDirectory(tt.build())
	if err != nil {
		t.Fatalf("readDirectory() error = %v", err)
	}
	if dir.Width != 2 || dir.Height != 2 || dir.SamplesPerPixel != 3 {
		t.Errorf("directory = %+v", dir)
	}
	if len(dir.BitsPerSample) != 3 || dir.BitsPerSample[0] != 8 {
		t.Errorf("BitsPerSample = %v", dir.BitsPerSample)
	}

	projected, geographic := dir.epsg()
	if projected != 32631 || geographic != 4326 {
		t.Errorf("epsg() = %d, %d; want 32631, 4326", projected, geographic)
	}
}

func TestReadDirectory_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, errNotTIFF},
		{"bad byte order", []byte("XX*\x00\x08\x00\x00\x00"), errNotTIFF},
		{"bad magic", []byte("II\x07\x00\x08\x00\x00\x00"), errNotTIFF},
		{"bigtiff", []byte("II+\x00\x08\x00\x00\x00"), errBigTIFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readDirectory(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := readDirectory([]byte("II*\x00\xff\x00\x00\x00")); err == nil {
		t.Error("expected error for IFD offset beyond the file")
	}
}

func TestDirectoryBBox_TiepointOffset(t *testing.T) {
	dir := &directory{
		Width: 10, Height: 5,
		PixelScale: []float64{2, 3, 0},
		// Raster (1, 1) sits at model (102, 197).
		Tiepoint: []float64{1, 1, 0, 102, 197, 0},
	}
	west, south, east, north, ok := dir.bbox()
	if !ok {
		t.Fatal("bbox() not ok")
	}
	if west != 100 || north != 200 || east != 120 || south != 185 {
		t.Errorf("bbox = %v %v %v %v", west, south, east, north)
	}

	dir.PixelScale = nil
	if _, _, _, _, ok := dir.bbox(); ok {
		t.Error("bbox() without pixel scale should not be ok")
	}
}

func TestDirectoryBBox_ModelTransformation(t *testing.T) {
	dir := &directory{
		Width: 10, Height: 5,
		// 2 units per column, 3 per row going south, origin (100, 200).
		Transformation: []float64{
			2, 0, 0, 100,
			0, -3, 0, 200,
			0, 0, 0, 0,
			0, 0, 0, 1,
		},
	}
	west, south, east, north, ok := dir.bbox()
	if !ok {
		t.Fatal("bbox() not ok")
	}
	if west != 100 || north != 200 || east != 120 || south != 185 {
		t.Errorf("bbox = %v %v %v %v", west, south, east, north)
	}

	dir.Transformation = make([]float64, 16)
	if _, _, _, _, ok := dir.bbox(); ok {
		t.Error("bbox() with a singular transformation should not be ok")
	}
}
