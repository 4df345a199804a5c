package domain

import (
	"errors"
	"testing"
)

func TestNewCoordinate(t *testing.T) {
	c := NewCoordinate(500000, 500000, SRIDUTM32N)

	if c.X != 500000 {
		t.Errorf("expected X=500000, got %f", c.X)
	}
	if c.Y != 500000 {
		t.Errorf("expected Y=500000, got %f", c.Y)
	}
	if c.SRID != SRIDUTM32N {
		t.Errorf("expected SRID=%d, got %d", SRIDUTM32N, c.SRID)
	}
}

func TestCoordinateValidate(t *testing.T) {
	tests := []struct {
		name    string
		coord   Coordinate
		wantErr bool
	}{
		{"valid WGS84 coordinate", NewCoordinate(8.2, 4.55, SRIDWGS84), false},
		{"valid WGS84 at origin", NewCoordinate(0, 0, SRIDWGS84), false},
		{"longitude too large", NewCoordinate(181, 0, SRIDWGS84), true},
		{"longitude too small", NewCoordinate(-181, 0, SRIDWGS84), true},
		{"latitude too large", NewCoordinate(0, 91, SRIDWGS84), true},
		{"latitude too small", NewCoordinate(0, -91, SRIDWGS84), true},
		{"projected coordinates are not range checked", NewCoordinate(500000, 9000000, SRIDUTM32N), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coord.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCoordinateWKT(t *testing.T) {
	c := NewCoordinate(8.2, 4.55, SRIDWGS84)
	want := "POINT(8.200000 4.550000)"
	if got := c.WKT(); got != want {
		t.Errorf("WKT() = %q, want %q", got, want)
	}
}

func TestCoordinateLatLng(t *testing.T) {
	ll := NewCoordinate(8.2, 4.55, SRIDWGS84).LatLng()
	if ll.Lat != 4.55 || ll.Lng != 8.2 {
		t.Errorf("LatLng() = %+v, want {4.55 8.2}", ll)
	}
}

func TestProjectionLabel(t *testing.T) {
	tests := []struct {
		srid int
		want string
	}{
		{32632, "EPSG:32632"},
		{0, UnknownProjection},
		{-1, UnknownProjection},
	}

	for _, tt := range tests {
		if got := ProjectionLabel(tt.srid); got != tt.want {
			t.Errorf("ProjectionLabel(%d) = %q, want %q", tt.srid, got, tt.want)
		}
	}
}
