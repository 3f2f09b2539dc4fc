package shape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx"

	"github.com/atlasdatatech/lost/dict"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/lost"
)

// config keys, mirroring the teacher postgis provider's ConfigKey* constants.
const (
	ConfigKeyDBURL      = "db_url"
	ConfigKeyMinCon     = "min_con"
	ConfigKeyMaxCon     = "max_con"
	ConfigKeyShapeTable = "shape_table"
)

const defaultShapeTable = "shape"

// PostgisStore is the production shape store, backed by PostGIS via a
// pgx connection pool (spec 4.3 "Connection pool contract").
type PostgisStore struct {
	pool  *pgx.ConnPool
	table string
}

// NewPostgisStore opens and pre-warms a connection pool per the given
// config, failing fast on connect errors (spec 6 exit code 1).
func NewPostgisStore(config dict.Dicter) (*PostgisStore, error) {
	dbURL, err := config.String(ConfigKeyDBURL, nil)
	if err != nil {
		return nil, err
	}

	minCon := lost.DefaultMinCon
	if minCon, err = config.Int(ConfigKeyMinCon, &minCon); err != nil {
		return nil, err
	}
	maxCon := lost.DefaultMaxCon
	if maxCon, err = config.Int(ConfigKeyMaxCon, &maxCon); err != nil {
		return nil, err
	}

	table := defaultShapeTable
	if table, err = config.String(ConfigKeyShapeTable, &table); err != nil {
		return nil, err
	}

	connConfig, err := pgx.ParseURI(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid db_url: %v", err)
	}
	connConfig.LogLevel = pgx.LogLevelWarn

	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     connConfig,
		MaxConnections: maxCon,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %v", dbURL, err)
	}

	// Pre-warm min_con connections so that a misconfigured database is
	// caught at startup rather than on the first request.
	conns := make([]*pgx.Conn, 0, minCon)
	for i := 0; i < minCon; i++ {
		c, err := pool.Acquire()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to pre-warm connection pool: %v", err)
		}
		conns = append(conns, c)
	}
	for _, c := range conns {
		pool.Release(c)
	}

	log.Info("shape store connected to %q, table=%q", table, table)
	return &PostgisStore{pool: pool, table: table}, nil
}

func (s *PostgisStore) Contains(ctx context.Context, point *geom.Geometry) ([]string, error) {
	sql := fmt.Sprintf(`SELECT id FROM %s WHERE ST_Contains(geometries, ST_GeomFromText($1, 4326))`, s.table)
	return s.queryIDs(ctx, sql, point.WKT())
}

func (s *PostgisStore) Intersects(ctx context.Context, g *geom.Geometry) ([]string, error) {
	cond, arg := geometryPredicateArg(g)
	// The geometry is the query's only bind argument, so it is $1 here.
	cond = strings.Replace(cond, "$2", "$1", 1)
	sql := fmt.Sprintf(`SELECT id FROM %s WHERE ST_Intersects(geometries, %s)`, s.table, cond)
	return s.queryIDs(ctx, sql, arg)
}

func (s *PostgisStore) Equals(ctx context.Context, g *geom.Geometry) (string, bool, error) {
	cond, arg := geometryPredicateArg(g)
	cond = strings.Replace(cond, "$2", "$1", 1)
	sql := fmt.Sprintf(`SELECT id FROM %s WHERE ST_Equals(geometries, %s) LIMIT 1`, s.table, cond)

	var id string
	err := s.pool.QueryRowEx(ctx, sql, nil, arg).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *PostgisStore) Insert(ctx context.Context, uri string, g *geom.Geometry, updated time.Time, attrs map[string]interface{}) (string, error) {
	cond, arg := geometryPredicateArg(g)
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (uri, geometries, updated, attrs)
		VALUES ($1, %s, $3, $4)
		ON CONFLICT (uri) DO UPDATE SET geometries = EXCLUDED.geometries, updated = EXCLUDED.updated, attrs = EXCLUDED.attrs
		RETURNING id`, s.table, cond)

	var id string
	if err := s.pool.QueryRowEx(ctx, sql, nil, uri, arg, updated, attrsJSON).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgisStore) IDForURI(ctx context.Context, uri string) (string, bool, error) {
	sql := fmt.Sprintf(`SELECT id FROM %s WHERE uri = $1`, s.table)

	var id string
	err := s.pool.QueryRowEx(ctx, sql, nil, uri).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *PostgisStore) AsGML(ctx context.Context, id string) (string, error) {
	sql := fmt.Sprintf(`SELECT ST_AsGML(3, geometries, 5, 17) FROM %s WHERE id = $1`, s.table)

	var gml string
	if err := s.pool.QueryRowEx(ctx, sql, nil, id).Scan(&gml); err != nil {
		return "", err
	}
	return gml, nil
}

func (s *PostgisStore) Close() {
	s.pool.Close()
}

func (s *PostgisStore) queryIDs(ctx context.Context, sql string, arg interface{}) ([]string, error) {
	rows, err := s.pool.QueryEx(ctx, sql, nil, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// geometryPredicateArg returns the SQL fragment and bind argument used to
// build a geometry value for a WHERE clause: a Point is passed as WKT via
// ST_GeomFromText, a Polygon/MultiPolygon as its original fragment via
// whichever of ST_GeomFromGML/ST_GeomFromGeoJSON matches the fragment's
// source format (spec 4.2, namespace prefix preserved for the GML case).
func geometryPredicateArg(g *geom.Geometry) (string, interface{}) {
	switch {
	case g.Kind == geom.KindPoint:
		return "ST_GeomFromText($2, 4326)", g.WKT()
	case g.Format == geom.FormatGeoJSON:
		return "ST_GeomFromGeoJSON($2)", g.Raw
	default:
		return "ST_GeomFromGML($2)", g.Raw
	}
}
