// Package mapping implements the mapping store façade of spec 4.4: the
// association between a shape and a service URN, joined against the shape
// store's geometric predicates in a single round trip.
package mapping

import (
	"context"
	"time"

	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
)

// PeerMarker is the srv column value used to mark a mapping row as naming
// another LoST peer rather than a terminal service provider (spec 4.5.2 step
// 4, "stored implicitly via the srv='lost' marker on the mapping row").
const PeerMarker = "lost"

// Row is one resolved mapping, already joined with its shape's geometry
// (spec 4.4: "returned in one database round trip via a join").
type Row struct {
	ID      string
	ShapeID string
	Service string
	Updated time.Time
	Attrs   map[string]interface{}
	// GML is the shape's ST_AsGML(3, ..., 5, 17) rendering, ready to embed in
	// a serviceBoundary envelope.
	GML string
	// IsPeer reports whether this row names another LoST peer (non-leaf) as
	// opposed to a terminal service provider (leaf).
	IsPeer bool
}

// URIs returns attrs.uri normalized to a slice, accepting either a single
// string or a list per spec 3 "Mapping".
func (r Row) URIs() []string {
	switch v := r.Attrs["uri"].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// DisplayName returns attrs.displayName, if present.
func (r Row) DisplayName() string {
	if s, ok := r.Attrs["displayName"].(string); ok {
		return s
	}
	return ""
}

// Store is the mapping store façade.
type Store interface {
	// Lookup resolves (service, predicate, geometry) to every matching
	// mapping row, ordered by ST_Area ASC (smallest shape first); a shape
	// with several mappings for the service yields several rows. Multiple
	// rows are returned for findIntersect's aggregate case; findService
	// callers take the first.
	Lookup(ctx context.Context, service string, predicate lost.Predicate, g *geom.Geometry) ([]Row, error)

	// Replace deletes any stale peer-type rows for (shapeID, service) and
	// inserts the new mapping; used only by the loader (spec 4.8 step 3).
	Replace(ctx context.Context, shapeID, service string, attrs map[string]interface{}, isPeer bool) error

	Close()
}
