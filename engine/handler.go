package engine

import (
	"context"

	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
)

// ProfileHandler is the per-profile handler interface of spec 9, replacing
// the abstract-class hierarchy the original Python LoSTServer used. Only
// geodetic-2d has a concrete implementation in this core; civic is a
// recognized profile name with no registered handler, so profile dispatch
// falls through to locationProfileUnrecognized (spec 1 Non-goals).
type ProfileHandler interface {
	// CheckAuthority verifies g against the server's configured
	// authoritative shape (spec 4.5.2 step 2). An empty Authoritative on the
	// Context, or one NewContext did not find in the shape store, disables
	// the check entirely.
	CheckAuthority(ctx context.Context, ectx *Context, g *geom.Geometry) error

	// FindService resolves service against g using the "contains" predicate,
	// returning rows ordered by smallest area first (spec 4.5.2 step 3).
	FindService(ctx context.Context, ectx *Context, service string, g *geom.Geometry) ([]mapping.Row, error)

	// FindIntersect resolves service against g using the "intersects"
	// predicate (spec 4.5.3).
	FindIntersect(ctx context.Context, ectx *Context, service string, g *geom.Geometry) ([]mapping.Row, error)
}

// handlers is the profile -> handler registry (spec 9: "profile -> handler
// map"). geodetic-2d is the sole concrete entry.
var handlers = map[string]ProfileHandler{
	lost.ProfileGeodetic2D: Geodetic2D{},
}

// handlerFor looks up the handler for a request's location/@profile.
func handlerFor(profile string) (ProfileHandler, bool) {
	h, ok := handlers[profile]
	return h, ok
}
