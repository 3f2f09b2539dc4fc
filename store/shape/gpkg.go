// +build cgo

package shape

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	spgeom "github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/atlasdatatech/lost/geom"
)

// GeoPackageStore is an offline shape store backed by a SQLite/GeoPackage
// file via mattn/go-sqlite3, adapted from the teacher's gpkg provider
// (decodeGeometry/WKB handling). It has no access to PostGIS's ST_* spatial
// operators, so predicates are evaluated in Go against decoded geometries
// after a full table scan; this is acceptable for the loader's dry-run mode
// and for tests exercising the engine without a live Postgres, never for
// production serving traffic.
type GeoPackageStore struct {
	db *sql.DB
}

// NewGeoPackageStore opens (creating if necessary) a GeoPackage-style SQLite
// file at path and ensures the shape table exists.
func NewGeoPackageStore(path string) (*GeoPackageStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open geopackage %q: %v", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS shape (
			id      TEXT PRIMARY KEY,
			uri     TEXT UNIQUE,
			geom    BLOB NOT NULL,
			updated TEXT NOT NULL,
			attrs   TEXT NOT NULL DEFAULT '{}'
		)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &GeoPackageStore{db: db}, nil
}

type gpkgRow struct {
	id string
	g  spgeom.Geometry
}

func (s *GeoPackageStore) scanAll(ctx context.Context) ([]gpkgRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, geom FROM shape`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gpkgRow
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		g, err := wkb.DecodeBytes(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt geometry for shape %q: %v", id, err)
		}
		out = append(out, gpkgRow{id: id, g: g})
	}
	return out, rows.Err()
}

func (s *GeoPackageStore) Contains(ctx context.Context, point *geom.Geometry) ([]string, error) {
	rows, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	pt := spgeom.Point{point.Point[0], point.Point[1]}
	var ids []string
	for _, r := range rows {
		if polygonContainsPoint(r.g, pt) {
			ids = append(ids, r.id)
		}
	}
	return ids, nil
}

// Intersects approximates ST_Intersects with a bounding-box overlap test;
// the loader's dedup path (Equals) and the engine's PostGIS path carry the
// precise implementation, so this degraded precision only affects offline
// dry runs.
func (s *GeoPackageStore) Intersects(ctx context.Context, g *geom.Geometry) ([]string, error) {
	rows, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	target, err := decodeQueryGeometry(g)
	if err != nil {
		return nil, err
	}
	targetBox := boundingBox(target)

	var ids []string
	for _, r := range rows {
		if boundingBox(r.g).overlaps(targetBox) {
			ids = append(ids, r.id)
		}
	}
	return ids, nil
}

type bbox struct {
	minX, minY, maxX, maxY float64
}

func (b bbox) overlaps(o bbox) bool {
	return b.minX <= o.maxX && o.minX <= b.maxX && b.minY <= o.maxY && o.minY <= b.maxY
}

func boundingBox(g spgeom.Geometry) bbox {
	b := bbox{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	extend := func(p spgeom.Point) {
		if p[0] < b.minX {
			b.minX = p[0]
		}
		if p[0] > b.maxX {
			b.maxX = p[0]
		}
		if p[1] < b.minY {
			b.minY = p[1]
		}
		if p[1] > b.maxY {
			b.maxY = p[1]
		}
	}

	switch v := g.(type) {
	case spgeom.Point:
		extend(v)
	case spgeom.Polygon:
		for _, ring := range v {
			for _, p := range ring {
				extend(p)
			}
		}
	case spgeom.MultiPolygon:
		for _, poly := range v {
			for _, ring := range poly {
				for _, p := range ring {
					extend(p)
				}
			}
		}
	}
	return b
}

func (s *GeoPackageStore) Equals(ctx context.Context, g *geom.Geometry) (string, bool, error) {
	rows, err := s.scanAll(ctx)
	if err != nil {
		return "", false, err
	}
	target, err := decodeQueryGeometry(g)
	if err != nil {
		return "", false, err
	}
	targetPt, ok := target.(spgeom.Point)
	if !ok {
		return "", false, nil
	}

	for _, r := range rows {
		if candPt, ok := r.g.(spgeom.Point); ok && candPt[0] == targetPt[0] && candPt[1] == targetPt[1] {
			return r.id, true, nil
		}
	}
	return "", false, nil
}

func (s *GeoPackageStore) Insert(ctx context.Context, uri string, g *geom.Geometry, updated time.Time, attrs map[string]interface{}) (string, error) {
	target, err := decodeQueryGeometry(g)
	if err != nil {
		return "", err
	}
	targetPt, ok := target.(spgeom.Point)
	if !ok {
		return "", fmt.Errorf("geopackage store only accepts point geometries on insert")
	}
	blob := encodePointWKB(targetPt)
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}

	id := uri
	if id == "" {
		id = fmt.Sprintf("shape-%d", time.Now().UnixNano())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shape (id, uri, geom, updated, attrs) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET geom=excluded.geom, updated=excluded.updated, attrs=excluded.attrs`,
		id, uri, blob, updated.Format(time.RFC3339), attrsJSON)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *GeoPackageStore) IDForURI(ctx context.Context, uri string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM shape WHERE uri = ?`, uri).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *GeoPackageStore) AsGML(ctx context.Context, id string) (string, error) {
	var blob []byte
	if err := s.db.QueryRowContext(ctx, `SELECT geom FROM shape WHERE id = ?`, id).Scan(&blob); err != nil {
		return "", err
	}
	g, err := wkb.DecodeBytes(blob)
	if err != nil {
		return "", err
	}
	pt, ok := g.(spgeom.Point)
	if !ok {
		return "", fmt.Errorf("geopackage store only renders GML for point geometries")
	}
	return fmt.Sprintf(`<gml:Point srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>%v %v</gml:pos></gml:Point>`, pt[1], pt[0]), nil
}

func (s *GeoPackageStore) Close() {
	s.db.Close()
}

// encodePointWKB produces a standard little-endian WKB point, the same
// layout wkb.DecodeBytes expects when reading it back.
func encodePointWKB(p spgeom.Point) []byte {
	buf := make([]byte, 21)
	buf[0] = 1 // little-endian byte order marker
	binary.LittleEndian.PutUint32(buf[1:5], 1) // geometry type 1 = Point
	binary.LittleEndian.PutUint64(buf[5:13], math.Float64bits(p[0]))
	binary.LittleEndian.PutUint64(buf[13:21], math.Float64bits(p[1]))
	return buf
}

// decodeQueryGeometry converts our wire-agnostic Geometry into a
// go-spatial/geom value for in-process comparison; Polygon/MultiPolygon GML
// fragments aren't re-parsed here (no GML decoder exists on this path), so
// only Point queries are fully supported offline.
func decodeQueryGeometry(g *geom.Geometry) (spgeom.Geometry, error) {
	if g.Kind != geom.KindPoint {
		return nil, fmt.Errorf("geopackage store does not support %s queries", g.Kind)
	}
	return spgeom.Point{g.Point[0], g.Point[1]}, nil
}

// polygonContainsPoint reports whether g (a Point, Polygon or MultiPolygon)
// contains pt, via ray casting over each ring.
func polygonContainsPoint(g spgeom.Geometry, pt spgeom.Point) bool {
	switch v := g.(type) {
	case spgeom.Point:
		return v[0] == pt[0] && v[1] == pt[1]
	case spgeom.Polygon:
		return ringsContain(v, pt)
	case spgeom.MultiPolygon:
		for _, poly := range v {
			if ringsContain(poly, pt) {
				return true
			}
		}
	}
	return false
}

func ringsContain(rings spgeom.Polygon, pt spgeom.Point) bool {
	if len(rings) == 0 {
		return false
	}
	if !rayCast(rings[0], pt) {
		return false
	}
	for _, hole := range rings[1:] {
		if rayCast(hole, pt) {
			return false
		}
	}
	return true
}

func rayCast(ring []spgeom.Point, pt spgeom.Point) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > pt[1]) != (yj > pt[1]) &&
			pt[0] < (xj-xi)*(pt[1]-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
