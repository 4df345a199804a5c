// Package domain contains the core layer model, geometry helpers and errors.
package domain

import (
	"fmt"
)

// Coordinate is a position in an arbitrary spatial reference system.
type Coordinate struct {
	X    float64 // Longitude or Easting
	Y    float64 // Latitude or Northing
	SRID int     // Spatial Reference ID
}

// NewCoordinate creates a coordinate with the specified SRID.
func NewCoordinate(x, y float64, srid int) Coordinate {
	return Coordinate{X: x, Y: y, SRID: srid}
}

// Validate checks if the coordinate is valid for its SRID.
func (c Coordinate) Validate() error {
	if c.SRID == SRIDWGS84 {
		if c.X < -180 || c.X > 180 {
			return &ValidationError{
				Field:      "longitude",
				Value:      c.X,
				Constraint: "[-180, 180]",
				Message:    "longitude must be between -180 and 180",
			}
		}
		if c.Y < -90 || c.Y > 90 {
			return &ValidationError{
				Field:      "latitude",
				Value:      c.Y,
				Constraint: "[-90, 90]",
				Message:    "latitude must be between -90 and 90",
			}
		}
	}
	return nil
}

// WKT returns the Well-Known Text representation.
func (c Coordinate) WKT() string {
	return fmt.Sprintf("POINT(%f %f)", c.X, c.Y)
}

// LatLng returns the coordinate as latitude/longitude. Only meaningful for
// geographic SRIDs.
func (c Coordinate) LatLng() LatLng {
	return LatLng{Lat: c.Y, Lng: c.X}
}

// Common SRID constants.
const (
	SRIDWGS84       = 4326  // WGS 84
	SRIDWebMercator = 3857  // Web Mercator
	SRIDUTM31N      = 32631 // WGS 84 / UTM zone 31N
	SRIDUTM32N      = 32632 // WGS 84 / UTM zone 32N
)

// Projection represents a coordinate reference system.
type Projection struct {
	SRID int    // EPSG Code
	Name string // Human-readable name
}

// CommonProjections contains frequently used projections.
var CommonProjections = map[int]Projection{
	SRIDWGS84:       {SRID: SRIDWGS84, Name: "WGS 84"},
	SRIDWebMercator: {SRID: SRIDWebMercator, Name: "Web Mercator"},
	SRIDUTM31N:      {SRID: SRIDUTM31N, Name: "WGS 84 / UTM zone 31N"},
	SRIDUTM32N:      {SRID: SRIDUTM32N, Name: "WGS 84 / UTM zone 32N"},
}

// UnknownProjection labels rasters without a projected CRS key.
const UnknownProjection = "Unknown"

// ProjectionLabel formats an EPSG code for raster metadata.
func ProjectionLabel(srid int) string {
	if srid <= 0 {
		return UnknownProjection
	}
	return fmt.Sprintf("EPSG:%d", srid)
}
