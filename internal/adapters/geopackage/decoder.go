package geopackage

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	// Registers the plain "sqlite3" driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geolayers/internal/domain"
)

const format = "geopackage"

// sqliteMagic starts every SQLite 3 database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// GeometryTransformer reprojects geometries to WGS 84.
type GeometryTransformer interface {
	TransformGeometry(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error)
	IsSupported(sourceSRID, targetSRID int) bool
}

// Decoder reads every feature table of an uploaded GeoPackage.
type Decoder struct {
	tempDir     string
	transformer GeometryTransformer
	logger      *slog.Logger
}

// NewDecoder creates a GeoPackage decoder. transformer may be nil, in which
// case geometries are returned in their stored SRS.
func NewDecoder(tempDir string, transformer GeometryTransformer, logger *slog.Logger) *Decoder {
	return &Decoder{tempDir: tempDir, transformer: transformer, logger: logger}
}

// Extensions returns the handled file extensions.
func (d *Decoder) Extensions() []string {
	return []string{".gpkg"}
}

// featureTable describes one row of gpkg_contents joined with
// gpkg_geometry_columns.
type featureTable struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// Decode writes data to a temporary file and reads all feature tables into
// one collection. Every feature carries its table name in the "layer"
// property.
func (d *Decoder) Decode(ctx context.Context, data []byte, _ string) (domain.FeatureData, error) {
	if !bytes.HasPrefix(data, sqliteMagic) {
		return domain.FeatureData{}, &domain.DecodeError{Format: format, Err: fmt.Errorf("not an SQLite database")}
	}

	f, err := os.CreateTemp(d.tempDir, "upload-*.gpkg")
	if err != nil {
		return domain.FeatureData{}, err
	}
	path := f.Name()
	defer os.Remove(path) //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return domain.FeatureData{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return domain.FeatureData{}, err
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return domain.FeatureData{}, &domain.DecodeError{Format: format, Err: err}
	}
	defer func() { _ = db.Close() }()

	tables, err := readFeatureTables(ctx, db)
	if err != nil {
		return domain.FeatureData{}, err
	}
	if len(tables) == 0 {
		return domain.FeatureData{}, &domain.FormatError{Format: format, Reason: "no feature tables"}
	}

	fc := geojson.NewFeatureCollection()
	for _, table := range tables {
		if err := d.readFeatures(ctx, db, table, fc); err != nil {
			return domain.FeatureData{}, err
		}
	}
	return domain.CollectionData(fc), nil
}

// openDB opens the database read-only.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// readFeatureTables reads layer information from gpkg_contents.
func readFeatureTables(ctx context.Context, db *sql.DB) ([]featureTable, error) {
	query := `
		SELECT
			c.table_name,
			g.column_name,
			g.geometry_type_name,
			g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.FormatError{Format: format, Reason: "missing GeoPackage metadata tables", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var tables []featureTable
	for rows.Next() {
		var t featureTable
		if err := rows.Scan(&t.Name, &t.GeometryColumn, &t.GeometryType, &t.SRID); err != nil {
			return nil, &domain.DecodeError{Format: format, Err: fmt.Errorf("scanning layer: %w", err)}
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DecodeError{Format: format, Err: err}
	}
	return tables, nil
}

func (d *Decoder) readFeatures(ctx context.Context, db *sql.DB, table featureTable, fc *geojson.FeatureCollection) error {
	query := "SELECT * FROM " + quoteIdent(table.Name) //#nosec G202 -- quoted identifier from gpkg_contents

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return &domain.FormatError{Format: format, Reason: fmt.Sprintf("reading table %s", table.Name), Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return &domain.DecodeError{Format: format, Err: err}
	}

	reproject := d.transformer != nil && table.SRID > 0 && table.SRID != domain.SRIDWGS84 &&
		d.transformer.IsSupported(table.SRID, domain.SRIDWGS84)
	if table.SRID > 0 && table.SRID != domain.SRIDWGS84 && !reproject {
		d.logger.Warn("feature table is not WGS 84 and cannot be reprojected",
			"table", table.Name, "srs_id", table.SRID)
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return &domain.DecodeError{Format: format, Err: err}
		}

		feature := geojson.NewFeature(nil)
		for i, col := range columns {
			if col == table.GeometryColumn {
				blob, _ := values[i].([]byte)
				g, _, err := decodeGeometry(blob)
				if err != nil {
					return &domain.DecodeError{Format: format, Err: fmt.Errorf("table %s: %w", table.Name, err)}
				}
				if reproject {
					if g, err = d.transformer.TransformGeometry(ctx, g, table.SRID, domain.SRIDWGS84); err != nil {
						return &domain.DecodeError{Format: format, Err: err}
					}
				}
				feature.Geometry = g
				continue
			}
			if col == "fid" {
				feature.ID = values[i]
			}
			if v := propertyValue(values[i]); v != nil {
				feature.Properties[col] = v
			}
		}
		feature.Properties["layer"] = table.Name
		fc.Append(feature)
	}
	if err := rows.Err(); err != nil {
		return &domain.DecodeError{Format: format, Err: err}
	}
	return nil
}

// propertyValue converts a scanned column to a JSON friendly value. Blobs
// other than geometries are dropped.
func propertyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return nil
	default:
		return val
	}
}

// quoteIdent quotes an SQLite identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
