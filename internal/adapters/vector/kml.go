package vector

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geolayers/internal/domain"
)

const (
	kmlFormat = "kml"
	kmzFormat = "kmz"
)

var errEmptyDocument = errors.New("empty document")

// KMLDecoder decodes KML documents and zipped KMZ bundles.
type KMLDecoder struct{}

// NewKMLDecoder creates a KML decoder.
func NewKMLDecoder() *KMLDecoder {
	return &KMLDecoder{}
}

// Extensions returns the handled file extensions.
func (d *KMLDecoder) Extensions() []string {
	return []string{".kml", ".kmz"}
}

// Decode converts every Placemark into a feature.
func (d *KMLDecoder) Decode(ctx context.Context, data []byte, filename string) (domain.FeatureData, error) {
	if strings.EqualFold(path.Ext(filename), ".kmz") {
		doc, err := kmzDocument(data)
		if err != nil {
			return domain.FeatureData{}, err
		}
		data = doc
	}
	return decodeKML(ctx, data)
}

// kmzDocument returns doc.kml from the archive, or the first .kml entry.
func kmzDocument(data []byte) ([]byte, error) {
	zr, err := openZip(kmzFormat, data)
	if err != nil {
		return nil, err
	}

	var doc *zip.File
	for _, f := range zr.File {
		if entryExt(f) != ".kml" {
			continue
		}
		if strings.EqualFold(path.Base(f.Name), "doc.kml") {
			doc = f
			break
		}
		if doc == nil {
			doc = f
		}
	}
	if doc == nil {
		return nil, &domain.FormatError{Format: kmzFormat, Reason: "archive contains no .kml document"}
	}

	content, err := readEntry(doc)
	if err != nil {
		return nil, &domain.DecodeError{Format: kmzFormat, Err: err}
	}
	return content, nil
}

type kmlPlacemark struct {
	Name         string      `xml:"name"`
	Description  string      `xml:"description"`
	ExtendedData []kmlData   `xml:"ExtendedData>Data"`
	SchemaData   []kmlSimple `xml:"ExtendedData>SchemaData>SimpleData"`
	Geometry     kmlShapes   `xml:",any"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlSimple struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// kmlShapes collects the geometry elements of a Placemark or
// MultiGeometry.
type kmlShapes []orb.Geometry

type kmlCoords struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlCoords   `xml:"outerBoundaryIs>LinearRing"`
	Inner []kmlCoords `xml:"innerBoundaryIs>LinearRing"`
}

// UnmarshalXML decodes one child element of a Placemark. Elements that are
// not geometries are skipped.
func (g *kmlShapes) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "Point":
		var c kmlCoords
		if err := d.DecodeElement(&c, &start); err != nil {
			return err
		}
		pts, err := parseCoordinates(c.Coordinates)
		if err != nil {
			return err
		}
		if len(pts) > 0 {
			*g = append(*g, pts[0])
		}
	case "LineString":
		var c kmlCoords
		if err := d.DecodeElement(&c, &start); err != nil {
			return err
		}
		pts, err := parseCoordinates(c.Coordinates)
		if err != nil {
			return err
		}
		*g = append(*g, orb.LineString(pts))
	case "LinearRing":
		var c kmlCoords
		if err := d.DecodeElement(&c, &start); err != nil {
			return err
		}
		pts, err := parseCoordinates(c.Coordinates)
		if err != nil {
			return err
		}
		*g = append(*g, orb.Polygon{orb.Ring(pts)})
	case "Polygon":
		var p kmlPolygon
		if err := d.DecodeElement(&p, &start); err != nil {
			return err
		}
		outer, err := parseCoordinates(p.Outer.Coordinates)
		if err != nil {
			return err
		}
		poly := orb.Polygon{orb.Ring(outer)}
		for _, inner := range p.Inner {
			pts, err := parseCoordinates(inner.Coordinates)
			if err != nil {
				return err
			}
			poly = append(poly, orb.Ring(pts))
		}
		*g = append(*g, poly)
	case "MultiGeometry":
		var children struct {
			Geometry kmlShapes `xml:",any"`
		}
		if err := d.DecodeElement(&children, &start); err != nil {
			return err
		}
		if len(children.Geometry) > 0 {
			*g = append(*g, orb.Collection(children.Geometry))
		}
	default:
		return d.Skip()
	}
	return nil
}

// parseCoordinates parses whitespace separated "lon,lat[,alt]" tuples.
func parseCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	pts := make([]orb.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, &domain.FormatError{Format: kmlFormat, Reason: "malformed coordinate " + strconv.Quote(tuple)}
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, &domain.FormatError{Format: kmlFormat, Reason: "malformed longitude", Err: err}
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, &domain.FormatError{Format: kmlFormat, Reason: "malformed latitude", Err: err}
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts, nil
}

// decodeKML streams the document and decodes Placemarks wherever they are
// nested.
func decodeKML(ctx context.Context, data []byte) (domain.FeatureData, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	fc := geojson.NewFeatureCollection()
	sawRoot := false

	for {
		if err := ctx.Err(); err != nil {
			return domain.FeatureData{}, err
		}
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return domain.FeatureData{}, &domain.DecodeError{Format: kmlFormat, Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			sawRoot = true
			if start.Name.Local != "kml" {
				return domain.FeatureData{}, &domain.FormatError{Format: kmlFormat, Reason: "root element is <" + start.Name.Local + ">, expected <kml>"}
			}
			continue
		}
		if start.Name.Local != "Placemark" {
			continue
		}

		var pm kmlPlacemark
		if err := dec.DecodeElement(&pm, &start); err != nil {
			return domain.FeatureData{}, kmlError(err)
		}
		fc.Append(placemarkFeature(pm))
	}

	if !sawRoot {
		return domain.FeatureData{}, &domain.DecodeError{Format: kmlFormat, Err: errEmptyDocument}
	}
	if len(fc.Features) == 0 {
		return domain.FeatureData{}, &domain.FormatError{Format: kmlFormat, Reason: "document contains no placemarks"}
	}
	return domain.CollectionData(fc), nil
}

// kmlError keeps format errors raised while decoding coordinates and wraps
// everything else as a decode error.
func kmlError(err error) error {
	var ferr *domain.FormatError
	if errors.As(err, &ferr) {
		return ferr
	}
	return &domain.DecodeError{Format: kmlFormat, Err: err}
}

func placemarkFeature(pm kmlPlacemark) *geojson.Feature {
	var geom orb.Geometry
	switch len(pm.Geometry) {
	case 0:
	case 1:
		geom = pm.Geometry[0]
	default:
		geom = orb.Collection(pm.Geometry)
	}

	f := geojson.NewFeature(geom)
	if name := strings.TrimSpace(pm.Name); name != "" {
		f.Properties["name"] = name
	}
	if desc := strings.TrimSpace(pm.Description); desc != "" {
		f.Properties["description"] = desc
	}
	for _, d := range pm.ExtendedData {
		if d.Name != "" {
			f.Properties[d.Name] = strings.TrimSpace(d.Value)
		}
	}
	for _, d := range pm.SchemaData {
		if d.Name != "" {
			f.Properties[d.Name] = strings.TrimSpace(d.Value)
		}
	}
	return f
}
