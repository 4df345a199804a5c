package vector

import (
	"archive/zip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geolayers/internal/domain"
)

const shapefileFormat = "shapefile"

// GeometryTransformer reprojects geometries to WGS 84.
type GeometryTransformer interface {
	TransformGeometry(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error)
	IsSupported(sourceSRID, targetSRID int) bool
}

// ShapefileDecoder decodes zipped shapefile bundles.
type ShapefileDecoder struct {
	tempDir     string
	transformer GeometryTransformer
	logger      *slog.Logger
}

// NewShapefileDecoder creates a decoder. Bundles are unpacked below tempDir,
// or the system temp directory when empty. transformer may be nil, in which
// case only bundles in geographic coordinates can be read.
func NewShapefileDecoder(tempDir string, transformer GeometryTransformer, logger *slog.Logger) *ShapefileDecoder {
	return &ShapefileDecoder{tempDir: tempDir, transformer: transformer, logger: logger}
}

// Extensions returns the handled file extensions.
func (d *ShapefileDecoder) Extensions() []string {
	return []string{".zip", ".shp"}
}

// shapefileBundle holds the entries of one shapefile inside an archive.
type shapefileBundle struct {
	shp, dbf *zip.File
	prj      *zip.File // optional
}

// Decode unpacks the bundle, converts every record into a feature and
// reprojects the features to WGS 84 when a .prj names another CRS.
func (d *ShapefileDecoder) Decode(ctx context.Context, data []byte, _ string) (domain.FeatureData, error) {
	zr, err := openZip(shapefileFormat, data)
	if err != nil {
		return domain.FeatureData{}, err
	}

	bundle, err := findShapefile(zr)
	if err != nil {
		return domain.FeatureData{}, err
	}

	srid, err := d.sourceSRID(bundle.prj)
	if err != nil {
		return domain.FeatureData{}, err
	}

	dir, err := os.MkdirTemp(d.tempDir, "shapefile-*")
	if err != nil {
		return domain.FeatureData{}, err
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	// go-shp locates the .dbf next to the .shp by name.
	if err := extractEntry(bundle.shp, dir, "layer.shp"); err != nil {
		return domain.FeatureData{}, &domain.DecodeError{Format: shapefileFormat, Err: err}
	}
	if err := extractEntry(bundle.dbf, dir, "layer.dbf"); err != nil {
		return domain.FeatureData{}, &domain.DecodeError{Format: shapefileFormat, Err: err}
	}

	fc, err := readShapefile(ctx, filepath.Join(dir, "layer.shp"))
	if err != nil {
		return domain.FeatureData{}, err
	}

	if srid != 0 {
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			if f.Geometry, err = d.transformer.TransformGeometry(ctx, f.Geometry, srid, domain.SRIDWGS84); err != nil {
				return domain.FeatureData{}, &domain.DecodeError{Format: shapefileFormat, Err: err}
			}
		}
	}
	return domain.CollectionData(fc), nil
}

// sourceSRID returns the EPSG code to reproject from, or zero when the
// coordinates are already longitude and latitude. A projected CRS that
// cannot be resolved or transformed is rejected.
func (d *ShapefileDecoder) sourceSRID(prj *zip.File) (int, error) {
	if prj == nil {
		return 0, nil
	}
	raw, err := readEntry(prj)
	if err != nil {
		return 0, &domain.DecodeError{Format: shapefileFormat, Err: err}
	}

	srid, geographic := projectionEPSG(string(raw))
	supported := srid > 0 && d.transformer != nil && d.transformer.IsSupported(srid, domain.SRIDWGS84)
	switch {
	case srid == domain.SRIDWGS84:
		return 0, nil
	case supported:
		return srid, nil
	case geographic:
		d.logger.Warn("geographic CRS cannot be transformed, using coordinates as WGS 84", "epsg", srid)
		return 0, nil
	case srid == 0:
		return 0, &domain.UnsupportedFormatError{Extension: ".zip", Reason: "unrecognized projection in .prj"}
	}
	return 0, &domain.UnsupportedFormatError{
		Extension: ".zip",
		Reason:    fmt.Sprintf("EPSG:%d cannot be reprojected to WGS 84", srid),
	}
}

// findShapefile returns the first .shp entry with a .dbf of the same base
// name, and its .prj when present.
func findShapefile(zr *zip.Reader) (shapefileBundle, error) {
	shps := make(map[string]*zip.File)
	dbfs := make(map[string]*zip.File)
	prjs := make(map[string]*zip.File)
	for _, f := range zr.File {
		base := strings.ToLower(strings.TrimSuffix(f.Name, path.Ext(f.Name)))
		switch entryExt(f) {
		case ".shp":
			shps[base] = f
		case ".dbf":
			dbfs[base] = f
		case ".prj":
			prjs[base] = f
		}
	}
	if len(shps) == 0 {
		return shapefileBundle{}, &domain.FormatError{Format: shapefileFormat, Reason: "archive contains no .shp file"}
	}

	bases := make([]string, 0, len(shps))
	for base := range shps {
		bases = append(bases, base)
	}
	sort.Strings(bases)
	for _, base := range bases {
		if dbf, ok := dbfs[base]; ok {
			return shapefileBundle{shp: shps[base], dbf: dbf, prj: prjs[base]}, nil
		}
	}
	return shapefileBundle{}, &domain.FormatError{Format: shapefileFormat, Reason: "archive contains no .dbf matching the .shp file"}
}

func readShapefile(ctx context.Context, shpPath string) (*geojson.FeatureCollection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		if reader != nil {
			_ = reader.Close()
		}
		return nil, &domain.DecodeError{Format: shapefileFormat, Err: err}
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	numeric := make([]bool, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
		numeric[i] = f.Fieldtype == 'N' || f.Fieldtype == 'F'
	}

	fc := geojson.NewFeatureCollection()
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, shape := reader.Shape()
		feature := geojson.NewFeature(shapeGeometry(shape))
		for i, name := range names {
			feature.Properties[name] = attributeValue(reader.Attribute(i), numeric[i])
		}
		fc.Append(feature)
	}
	if err := reader.Err(); err != nil {
		return nil, &domain.DecodeError{Format: shapefileFormat, Err: err}
	}

	return fc, nil
}

// attributeValue trims a DBF value. Numeric fields become float64 when they
// parse; blank values become nil.
func attributeValue(raw string, numeric bool) interface{} {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if val == "" {
		return nil
	}
	if numeric {
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
	}
	return val
}

// shapeGeometry converts a shape to an orb geometry. Null and unsupported
// shapes yield nil.
func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		return orb.MultiPoint(toPoints(s.Points))
	case *shp.PolyLine:
		return lineGeometry(partRings(s.Parts, s.Points))
	case *shp.PolyLineZ:
		return lineGeometry(partRings(s.Parts, s.Points))
	case *shp.Polygon:
		return polygonGeometry(partRings(s.Parts, s.Points))
	case *shp.PolygonZ:
		return polygonGeometry(partRings(s.Parts, s.Points))
	default:
		return nil
	}
}

func toPoints(pts []shp.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// partRings splits a flat point list at the part offsets.
func partRings(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(pts)) {
			continue
		}
		out = append(out, toPoints(pts[start:end]))
	}
	return out
}

func lineGeometry(parts [][]orb.Point) orb.Geometry {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygonGeometry groups rings into polygons. A clockwise ring starts a new
// polygon and counter-clockwise rings are holes of the preceding polygon.
func polygonGeometry(parts [][]orb.Point) orb.Geometry {
	var polys orb.MultiPolygon
	for _, p := range parts {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CCW && len(polys) > 0 {
			last := len(polys) - 1
			polys[last] = append(polys[last], ring)
			continue
		}
		polys = append(polys, orb.Polygon{ring})
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	return polys
}
