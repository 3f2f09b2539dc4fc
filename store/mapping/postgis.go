package mapping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx"

	"github.com/atlasdatatech/lost/dict"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/lost"
)

// ConfigKeyDBURL, ConfigKeyMinCon and ConfigKeyMaxCon are shared with
// store/shape's config keys; a deployment typically points both façades at
// the same db_url, but PostgisStore keeps its own pool so each façade can be
// swapped independently (e.g. mapping on Postgres, shapes from a GeoPackage
// dry run).
const (
	ConfigKeyDBURL  = "db_url"
	ConfigKeyMinCon = "min_con"
	ConfigKeyMaxCon = "max_con"
)

// PostgisStore is the production mapping store, joining the mapping table
// with the shape table named by table (spec 6 "geo_table"/"civic_table").
type PostgisStore struct {
	pool  *pgx.ConnPool
	table string
}

// NewPostgisStore opens and pre-warms a connection pool scoped to a single
// mapping table (spec 6: one table per profile, e.g. geo_table or
// civic_table).
func NewPostgisStore(config dict.Dicter, table string) (*PostgisStore, error) {
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

	log.Info("mapping store connected, table=%q", table)
	return &PostgisStore{pool: pool, table: table}, nil
}

func (s *PostgisStore) Lookup(ctx context.Context, service string, predicate lost.Predicate, g *geom.Geometry) ([]Row, error) {
	var predFn string
	switch predicate {
	case lost.PredicateContains:
		predFn = "ST_Contains"
	case lost.PredicateIntersects:
		predFn = "ST_Intersects"
	default:
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}

	geomExpr, arg := geometryArg(g)
	sql := fmt.Sprintf(`
		SELECT m.id, m.shape, m.service, m.updated, m.attrs, m.srv,
		       ST_AsGML(3, s.geometries, 5, 17)
		FROM   %[1]s AS m JOIN shape AS s ON m.shape = s.id
		WHERE  m.service = $1 AND %[2]s(s.geometries, %[3]s)
		ORDER BY ST_Area(s.geometries) ASC`, s.table, predFn, geomExpr)

	rows, err := s.pool.QueryEx(ctx, sql, nil, service, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var attrsJSON []byte
		var srv string
		if err := rows.Scan(&r.ID, &r.ShapeID, &r.Service, &r.Updated, &attrsJSON, &srv, &r.GML); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attrsJSON, &r.Attrs); err != nil {
			return nil, err
		}
		r.IsPeer = srv == PeerMarker
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgisStore) Replace(ctx context.Context, shapeID, service string, attrs map[string]interface{}, isPeer bool) error {
	tx, err := s.pool.BeginEx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	srv := ""
	if isPeer {
		srv = PeerMarker
	}

	if _, err := tx.ExecEx(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE shape = $1 AND service = $2 AND srv = $3`, s.table), nil,
		shapeID, service, PeerMarker); err != nil {
		return err
	}

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return err
	}

	if _, err := tx.ExecEx(ctx, fmt.Sprintf(`
		INSERT INTO %s (shape, service, attrs, srv) VALUES ($1, $2, $3, $4)`, s.table), nil,
		shapeID, service, attrsJSON, srv); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgisStore) Close() {
	s.pool.Close()
}

func geometryArg(g *geom.Geometry) (string, interface{}) {
	switch {
	case g.Kind == geom.KindPoint:
		return "ST_GeomFromText($2, 4326)", g.WKT()
	case g.Format == geom.FormatGeoJSON:
		return "ST_GeomFromGeoJSON($2)", g.Raw
	default:
		return "ST_GeomFromGML($2)", g.Raw
	}
}
