// Package shape implements the shape store façade of spec 4.3: persistent
// geometries keyed by URI, queried by the point-in-polygon and
// polygon-intersect predicates the resolution engine needs. Two
// implementations satisfy Store: a PostGIS-backed one for serving traffic,
// and a GeoPackage-backed one (adapted from the teacher's gpkg provider) for
// offline loader dry runs and tests that don't want a live Postgres.
package shape

import (
	"context"
	"time"

	"github.com/atlasdatatech/lost/geom"
)

// Row is a persisted shape record (spec 3 "Shape").
type Row struct {
	ID      string
	URI     string
	Updated time.Time
	Attrs   map[string]interface{}
}

// Store is the shape store façade. Every method acquires and releases its
// own pooled connection; callers never see a connection handle.
type Store interface {
	// Contains returns the ids of every shape containing point (ST_Contains).
	Contains(ctx context.Context, point *geom.Geometry) ([]string, error)

	// Intersects returns the ids of every shape intersecting g (ST_Intersects).
	Intersects(ctx context.Context, g *geom.Geometry) ([]string, error)

	// Equals returns the id of a shape with exactly the given geometry, if
	// one is already stored (ST_Equals), used by the loader to deduplicate.
	Equals(ctx context.Context, g *geom.Geometry) (id string, found bool, err error)

	// Insert stores a shape, idempotent on uri, and returns its id.
	Insert(ctx context.Context, uri string, g *geom.Geometry, updated time.Time, attrs map[string]interface{}) (id string, err error)

	// IDForURI resolves a shape's locally unique id from its globally unique
	// uri, used to pin down the configured authoritative shape at startup
	// (spec 4.5.2 step 2, spec 6 "authoritative").
	IDForURI(ctx context.Context, uri string) (id string, found bool, err error)

	// AsGML renders a shape's geometry as GML-3 suitable for embedding in a
	// serviceBoundary element (ST_AsGML(3, ..., 5, 17)).
	AsGML(ctx context.Context, id string) (string, error)

	// Close releases the underlying connection pool.
	Close()
}
