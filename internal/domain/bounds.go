package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// LatLng is a geographic position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is an axis-aligned lat/lon rectangle. The zero value is the invalid
// sentinel: it encloses nothing and dependent operations skip it.
type Bounds struct {
	south, west, north, east float64
	valid                    bool
}

// EmptyBounds returns the invalid sentinel.
func EmptyBounds() Bounds {
	return Bounds{}
}

// NewBounds builds bounds from two corners, normalizing their order.
// NaN or infinite inputs yield the invalid sentinel.
func NewBounds(south, west, north, east float64) Bounds {
	for _, v := range []float64{south, west, north, east} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Bounds{}
		}
	}
	return Bounds{
		south: math.Min(south, north),
		north: math.Max(south, north),
		west:  math.Min(west, east),
		east:  math.Max(west, east),
		valid: true,
	}
}

// BoundsFromBBox converts a [west, south, east, north] box into bounds.
func BoundsFromBBox(west, south, east, north float64) Bounds {
	return NewBounds(south, west, north, east)
}

// IsValid reports whether the bounds enclose at least one position.
func (b Bounds) IsValid() bool { return b.valid }

// South returns the minimum latitude.
func (b Bounds) South() float64 { return b.south }

// West returns the minimum longitude.
func (b Bounds) West() float64 { return b.west }

// North returns the maximum latitude.
func (b Bounds) North() float64 { return b.north }

// East returns the maximum longitude.
func (b Bounds) East() float64 { return b.east }

// SouthWest returns the lower-left corner.
func (b Bounds) SouthWest() LatLng { return LatLng{Lat: b.south, Lng: b.west} }

// NorthEast returns the upper-right corner.
func (b Bounds) NorthEast() LatLng { return LatLng{Lat: b.north, Lng: b.east} }

// Center returns the midpoint of the bounds.
func (b Bounds) Center() LatLng {
	return LatLng{Lat: (b.south + b.north) / 2, Lng: (b.west + b.east) / 2}
}

// Extend grows the bounds to include p.
func (b Bounds) Extend(p LatLng) Bounds {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return b
	}
	if !b.valid {
		return Bounds{south: p.Lat, north: p.Lat, west: p.Lng, east: p.Lng, valid: true}
	}
	b.south = math.Min(b.south, p.Lat)
	b.north = math.Max(b.north, p.Lat)
	b.west = math.Min(b.west, p.Lng)
	b.east = math.Max(b.east, p.Lng)
	return b
}

// Union returns the smallest bounds enclosing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	if !o.valid {
		return b
	}
	return b.Extend(o.SouthWest()).Extend(o.NorthEast())
}

// Pairs returns the bounds as [[south, west], [north, east]].
func (b Bounds) Pairs() [2][2]float64 {
	return [2][2]float64{{b.south, b.west}, {b.north, b.east}}
}

// String implements fmt.Stringer.
func (b Bounds) String() string {
	if !b.valid {
		return "Bounds(invalid)"
	}
	return fmt.Sprintf("Bounds([%g, %g], [%g, %g])", b.south, b.west, b.north, b.east)
}

// MarshalJSON encodes valid bounds as [[south, west], [north, east]] and the
// invalid sentinel as null.
func (b Bounds) MarshalJSON() ([]byte, error) {
	if !b.valid {
		return []byte("null"), nil
	}
	return json.Marshal(b.Pairs())
}

// UnmarshalJSON decodes [[south, west], [north, east]] or null.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = Bounds{}
		return nil
	}
	var pairs [2][2]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	*b = NewBounds(pairs[0][0], pairs[0][1], pairs[1][0], pairs[1][1])
	return nil
}

// GeometryBounds accumulates the bounds of every position in g. GeoJSON
// positions are [lon, lat].
func GeometryBounds(g orb.Geometry) Bounds {
	return extendGeometry(EmptyBounds(), g)
}

func extendGeometry(b Bounds, g orb.Geometry) Bounds {
	switch geom := g.(type) {
	case nil:
		return b
	case orb.Point:
		return b.Extend(LatLng{Lat: geom[1], Lng: geom[0]})
	case orb.MultiPoint:
		return extendPoints(b, geom)
	case orb.LineString:
		return extendPoints(b, geom)
	case orb.Ring:
		return extendPoints(b, geom)
	case orb.MultiLineString:
		for _, ls := range geom {
			b = extendPoints(b, ls)
		}
		return b
	case orb.Polygon:
		for _, r := range geom {
			b = extendPoints(b, r)
		}
		return b
	case orb.MultiPolygon:
		for _, p := range geom {
			for _, r := range p {
				b = extendPoints(b, r)
			}
		}
		return b
	case orb.Collection:
		for _, child := range geom {
			b = extendGeometry(b, child)
		}
		return b
	case orb.Bound:
		if geom.IsEmpty() {
			return b
		}
		return b.Extend(LatLng{Lat: geom.Min[1], Lng: geom.Min[0]}).
			Extend(LatLng{Lat: geom.Max[1], Lng: geom.Max[0]})
	default:
		return b
	}
}

func extendPoints[P ~[]orb.Point](b Bounds, pts P) Bounds {
	for _, p := range pts {
		b = b.Extend(LatLng{Lat: p[1], Lng: p[0]})
	}
	return b
}
