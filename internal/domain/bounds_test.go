package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestNewBoundsNormalizesCorners(t *testing.T) {
	b := NewBounds(5, 9, 4, 8)

	if !b.IsValid() {
		t.Fatal("expected valid bounds")
	}
	if b.South() != 4 || b.North() != 5 || b.West() != 8 || b.East() != 9 {
		t.Errorf("bounds not normalized: %s", b)
	}
}

func TestNewBoundsRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		b    Bounds
	}{
		{"nan", NewBounds(math.NaN(), 0, 1, 1)},
		{"inf", NewBounds(0, 0, math.Inf(1), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.b.IsValid() {
				t.Error("expected invalid bounds")
			}
		})
	}
}

func TestEmptyBoundsIsInvalid(t *testing.T) {
	if EmptyBounds().IsValid() {
		t.Error("EmptyBounds() should be invalid")
	}
	var zero Bounds
	if zero.IsValid() {
		t.Error("zero Bounds should be invalid")
	}
}

func TestBoundsExtendAndUnion(t *testing.T) {
	b := EmptyBounds().Extend(LatLng{Lat: 4.5, Lng: 8.1})
	if !b.IsValid() {
		t.Fatal("single point should yield valid bounds")
	}
	if b.SouthWest() != b.NorthEast() {
		t.Error("single point bounds should be degenerate")
	}

	b = b.Extend(LatLng{Lat: 4.7, Lng: 8.0})
	if b.South() != 4.5 || b.North() != 4.7 || b.West() != 8.0 || b.East() != 8.1 {
		t.Errorf("unexpected bounds after extend: %s", b)
	}

	u := b.Union(EmptyBounds())
	if u != b {
		t.Error("union with invalid bounds should not change bounds")
	}

	u = EmptyBounds().Union(b)
	if u != b {
		t.Errorf("union of empty with b = %s, want %s", u, b)
	}
}

func TestBoundsCenter(t *testing.T) {
	c := NewBounds(4, 8, 5, 9).Center()
	if c.Lat != 4.5 || c.Lng != 8.5 {
		t.Errorf("Center() = %+v, want {4.5 8.5}", c)
	}
}

func TestBoundsJSON(t *testing.T) {
	data, err := json.Marshal(NewBounds(4.5, 8.1, 4.7, 8.3))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "[[4.5,8.1],[4.7,8.3]]" {
		t.Errorf("Marshal() = %s", data)
	}

	var decoded Bounds
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded != NewBounds(4.5, 8.1, 4.7, 8.3) {
		t.Errorf("Unmarshal() = %s", decoded)
	}

	data, _ = json.Marshal(EmptyBounds())
	if string(data) != "null" {
		t.Errorf("invalid bounds should marshal to null, got %s", data)
	}
}

func TestGeometryBounds(t *testing.T) {
	tests := []struct {
		name      string
		geom      orb.Geometry
		wantValid bool
		want      [2][2]float64
	}{
		{
			name:      "point",
			geom:      orb.Point{8.2, 4.55},
			wantValid: true,
			want:      [2][2]float64{{4.55, 8.2}, {4.55, 8.2}},
		},
		{
			name:      "line string",
			geom:      orb.LineString{{8.0, 4.5}, {8.4, 4.9}, {8.1, 4.4}},
			wantValid: true,
			want:      [2][2]float64{{4.4, 8.0}, {4.9, 8.4}},
		},
		{
			name: "polygon with hole",
			geom: orb.Polygon{
				{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
				{{2, 2}, {2, 3}, {3, 3}, {2, 2}},
			},
			wantValid: true,
			want:      [2][2]float64{{0, 0}, {10, 10}},
		},
		{
			name: "multi polygon",
			geom: orb.MultiPolygon{
				{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
				{{{-5, -3}, {-4, -3}, {-4, -2}, {-5, -3}}},
			},
			wantValid: true,
			want:      [2][2]float64{{-3, -5}, {1, 1}},
		},
		{
			name: "nested collection",
			geom: orb.Collection{
				orb.Point{1, 2},
				orb.Collection{orb.MultiPoint{{3, 4}, {-1, 0}}},
				orb.MultiLineString{{{0, -2}, {0, 0}}},
			},
			wantValid: true,
			want:      [2][2]float64{{-2, -1}, {4, 3}},
		},
		{
			name:      "empty collection",
			geom:      orb.Collection{},
			wantValid: false,
		},
		{
			name:      "empty line",
			geom:      orb.LineString{},
			wantValid: false,
		},
		{
			name:      "nil geometry",
			geom:      nil,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := GeometryBounds(tt.geom)
			if b.IsValid() != tt.wantValid {
				t.Fatalf("IsValid() = %v, want %v", b.IsValid(), tt.wantValid)
			}
			if tt.wantValid && b.Pairs() != tt.want {
				t.Errorf("Pairs() = %v, want %v", b.Pairs(), tt.want)
			}
		})
	}
}
