package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/geolayers/internal/domain"
)

// Transformer reprojects coordinates and geometries through an in-memory
// SpatiaLite database.
type Transformer struct {
	db *sql.DB

	mu        sync.Mutex
	supported map[int]bool
}

// NewTransformer opens the in-memory database and populates spatial_ref_sys
// with the EPSG definitions ST_Transform needs.
func NewTransformer(ctx context.Context) (*Transformer, error) {
	db, err := sql.Open(spatialiteDriver, ":memory:")
	if err != nil {
		return nil, err
	}
	// Each pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)

	var version string
	if err := db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("SpatiaLite extension not available: %w", err)
	}
	if _, err := db.ExecContext(ctx, "SELECT InitSpatialMetaDataFull(1)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing spatial metadata: %w", err)
	}

	return &Transformer{db: db, supported: make(map[int]bool)}, nil
}

// Transform transforms a coordinate from one SRID to another.
func (t *Transformer) Transform(ctx context.Context, coord domain.Coordinate, targetSRID int) (domain.Coordinate, error) {
	if coord.SRID == targetSRID {
		return coord, nil
	}

	query := `SELECT X(Transform(GeomFromText(?, ?), ?)), Y(Transform(GeomFromText(?, ?), ?))`

	wkt := coord.WKT()
	var x, y sql.NullFloat64
	err := t.db.QueryRowContext(ctx, query,
		wkt, coord.SRID, targetSRID,
		wkt, coord.SRID, targetSRID,
	).Scan(&x, &y)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("transforming coordinate: %w", err)
	}
	if !x.Valid || !y.Valid {
		return domain.Coordinate{}, fmt.Errorf("transforming coordinate from EPSG:%d to EPSG:%d: no result", coord.SRID, targetSRID)
	}

	return domain.Coordinate{X: x.Float64, Y: y.Float64, SRID: targetSRID}, nil
}

// TransformGeometry reprojects a whole geometry in one round trip.
func (t *Transformer) TransformGeometry(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error) {
	if g == nil || sourceSRID == targetSRID {
		return g, nil
	}

	body, err := wkb.Marshal(g)
	if err != nil {
		return nil, err
	}

	var out []byte
	err = t.db.QueryRowContext(ctx,
		`SELECT AsBinary(Transform(GeomFromWKB(?, ?), ?))`,
		body, sourceSRID, targetSRID,
	).Scan(&out)
	if err != nil {
		return nil, fmt.Errorf("transforming geometry: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("transforming geometry from EPSG:%d to EPSG:%d: no result", sourceSRID, targetSRID)
	}
	return wkb.Unmarshal(out)
}

// IsSupported reports whether both SRIDs are known to spatial_ref_sys.
func (t *Transformer) IsSupported(sourceSRID, targetSRID int) bool {
	if sourceSRID <= 0 || targetSRID <= 0 {
		return false
	}
	return t.known(sourceSRID) && t.known(targetSRID)
}

func (t *Transformer) known(srid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ok, cached := t.supported[srid]; cached {
		return ok
	}
	var count int
	err := t.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM spatial_ref_sys WHERE srid = ?`, srid,
	).Scan(&count)
	ok := err == nil && count > 0
	if err == nil {
		t.supported[srid] = ok
	}
	return ok
}

// Close closes the transformer's database connection.
func (t *Transformer) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}
