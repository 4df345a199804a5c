package domain

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DataKind names the top-level shape of a vector payload.
type DataKind string

// Vector payload kinds.
const (
	KindNone              DataKind = ""
	KindFeature           DataKind = "Feature"
	KindFeatureCollection DataKind = "FeatureCollection"
	KindGeometry          DataKind = "Geometry"
)

// geometryTypes are the GeoJSON geometry type names accepted at top level.
var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// FeatureData is the closed set of payloads a vector layer can carry: a
// single feature, a feature collection or a bare geometry. It is treated as
// immutable once stored.
type FeatureData struct {
	collection *geojson.FeatureCollection
	feature    *geojson.Feature
	geometry   *geojson.Geometry
}

// CollectionData wraps a feature collection.
func CollectionData(fc *geojson.FeatureCollection) FeatureData {
	return FeatureData{collection: fc}
}

// SingleFeatureData wraps a single feature.
func SingleFeatureData(f *geojson.Feature) FeatureData {
	return FeatureData{feature: f}
}

// GeometryData wraps a bare geometry.
func GeometryData(g orb.Geometry) FeatureData {
	if g == nil {
		return FeatureData{}
	}
	return FeatureData{geometry: geojson.NewGeometry(g)}
}

// Kind returns the payload kind.
func (d FeatureData) Kind() DataKind {
	switch {
	case d.collection != nil:
		return KindFeatureCollection
	case d.feature != nil:
		return KindFeature
	case d.geometry != nil:
		return KindGeometry
	default:
		return KindNone
	}
}

// IsZero reports whether no payload is present.
func (d FeatureData) IsZero() bool {
	return d.Kind() == KindNone
}

// Features flattens the payload into features. A bare geometry is returned
// as a feature without properties.
func (d FeatureData) Features() []*geojson.Feature {
	switch d.Kind() {
	case KindFeatureCollection:
		return d.collection.Features
	case KindFeature:
		return []*geojson.Feature{d.feature}
	case KindGeometry:
		return []*geojson.Feature{geojson.NewFeature(d.geometry.Geometry())}
	default:
		return nil
	}
}

// FeatureCount returns the number of features in the payload.
func (d FeatureData) FeatureCount() int {
	switch d.Kind() {
	case KindFeatureCollection:
		return len(d.collection.Features)
	case KindFeature, KindGeometry:
		return 1
	default:
		return 0
	}
}

// Bounds computes the bounding box of every geometry in the payload.
func (d FeatureData) Bounds() Bounds {
	b := EmptyBounds()
	switch d.Kind() {
	case KindFeatureCollection:
		for _, f := range d.collection.Features {
			if f != nil {
				b = extendGeometry(b, f.Geometry)
			}
		}
	case KindFeature:
		b = extendGeometry(b, d.feature.Geometry)
	case KindGeometry:
		b = extendGeometry(b, d.geometry.Geometry())
	}
	return b
}

// FeatureCollection returns the payload as a feature collection.
func (d FeatureData) FeatureCollection() *geojson.FeatureCollection {
	if d.collection != nil {
		return d.collection
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range d.Features() {
		fc.Append(f)
	}
	return fc
}

// MarshalJSON encodes the payload in its original shape.
func (d FeatureData) MarshalJSON() ([]byte, error) {
	switch d.Kind() {
	case KindFeatureCollection:
		return json.Marshal(d.collection)
	case KindFeature:
		return json.Marshal(d.feature)
	case KindGeometry:
		return json.Marshal(d.geometry)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a GeoJSON object, see ParseFeatureData.
func (d *FeatureData) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = FeatureData{}
		return nil
	}
	parsed, err := ParseFeatureData(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseFeatureData decodes a GeoJSON document whose top-level type is
// Feature, FeatureCollection or a geometry type. Malformed JSON yields a
// FormatError caused by a DecodeError; a well-formed document of another
// shape yields a plain FormatError.
func ParseFeatureData(data []byte) (FeatureData, error) {
	if !json.Valid(data) {
		var raw interface{}
		cause := json.Unmarshal(data, &raw)
		if cause == nil {
			cause = fmt.Errorf("invalid JSON")
		}
		return FeatureData{}, &FormatError{
			Format: "geojson",
			Reason: "malformed JSON",
			Err:    &DecodeError{Format: "geojson", Err: cause},
		}
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data, &header); err != nil {
		return FeatureData{}, &FormatError{Format: "geojson", Reason: "top-level value must be an object"}
	}

	var typ string
	if raw, ok := header["type"]; ok {
		if err := json.Unmarshal(raw, &typ); err != nil {
			return FeatureData{}, &FormatError{Format: "geojson", Reason: "type must be a string"}
		}
	}

	switch {
	case typ == "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return FeatureData{}, &FormatError{Format: "geojson", Reason: "invalid feature collection", Err: err}
		}
		return CollectionData(fc), nil
	case typ == "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return FeatureData{}, &FormatError{Format: "geojson", Reason: "invalid feature", Err: err}
		}
		return SingleFeatureData(f), nil
	case geometryTypes[typ]:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return FeatureData{}, &FormatError{Format: "geojson", Reason: "invalid geometry", Err: err}
		}
		return FeatureData{geometry: g}, nil
	case typ == "":
		return FeatureData{}, &FormatError{Format: "geojson", Reason: "missing type member"}
	default:
		return FeatureData{}, &FormatError{
			Format: "geojson",
			Reason: fmt.Sprintf("type %q is not Feature, FeatureCollection or a geometry", typ),
		}
	}
}
