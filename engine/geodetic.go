package engine

import (
	"context"

	"github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
)

// Geodetic2D is the only concrete ProfileHandler this core ships: it answers
// findService/findIntersect for point/polygon geometry in the geodetic-2d
// profile (spec 9).
type Geodetic2D struct{}

func (Geodetic2D) CheckAuthority(ctx context.Context, ectx *Context, g *geom.Geometry) error {
	if !ectx.hasAuthority {
		return nil
	}

	ids, err := ectx.Shapes.Intersects(ctx, g)
	if err != nil {
		return errors.InternalError("authority check failed: %v", err)
	}
	for _, id := range ids {
		if id == ectx.authoritativeID {
			return nil
		}
	}
	return errors.NotAuthoritative()
}

func (Geodetic2D) FindService(ctx context.Context, ectx *Context, service string, g *geom.Geometry) ([]mapping.Row, error) {
	store, ok := ectx.Mappings[lost.ProfileGeodetic2D]
	if !ok || store == nil {
		return nil, errors.InternalError("no mapping store configured for profile %q", lost.ProfileGeodetic2D)
	}

	rows, err := store.Lookup(ctx, service, lost.PredicateContains, g)
	if err != nil {
		return nil, errors.InternalError("mapping lookup failed: %v", err)
	}
	if len(rows) == 0 {
		return nil, errors.NotFound(service)
	}
	return rows, nil
}

func (Geodetic2D) FindIntersect(ctx context.Context, ectx *Context, service string, g *geom.Geometry) ([]mapping.Row, error) {
	store, ok := ectx.Mappings[lost.ProfileGeodetic2D]
	if !ok || store == nil {
		return nil, errors.InternalError("no mapping store configured for profile %q", lost.ProfileGeodetic2D)
	}

	rows, err := store.Lookup(ctx, service, lost.PredicateIntersects, g)
	if err != nil {
		return nil, errors.InternalError("mapping lookup failed: %v", err)
	}
	if len(rows) == 0 {
		return nil, errors.NotFound(service)
	}
	return rows, nil
}
