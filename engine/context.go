// Package engine implements spec 4.5: the resolution engine state machine
// that turns a parsed LoST request into a response, including authority
// checks, mapping lookup, leaf/non-leaf branching, proxy/redirect, loop
// detection and path accumulation.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
	"github.com/atlasdatatech/lost/store/shape"
)

// PeerProxier forwards a raw request document to a peer LoST server and
// returns its raw response, used both by the engine (spec 4.5.2 step 6) and
// reused by the standalone client (spec 4.7).
type PeerProxier interface {
	Proxy(ctx context.Context, peerURL string, body []byte, timeout time.Duration) (respBody []byte, contentType string, err error)
}

// Context is the explicit, dependency-injected state every handler call
// receives (spec 9 "Global state": no module-level singletons). It is built
// once at startup and shared read-only across concurrent request handlers.
type Context struct {
	ServerID      string
	RedirectMode  bool
	RequestTimeout time.Duration

	// Authoritative is the configured authoritative shape's uri; empty
	// disables the authority check (spec 4.5.2 step 2).
	Authoritative   string
	authoritativeID string
	hasAuthority    bool

	Shapes   shape.Store
	Mappings map[string]mapping.Store // profile -> mapping store (geo_table, civic_table)

	Proxy PeerProxier

	boundaryKeys sync.Map // opaque key -> gml string, for serviceBoundary="reference"
}

// NewContext resolves the configured authoritative shape's id (if any) and
// returns a ready-to-use Context. Resolution happens once at startup so a
// misconfigured authoritative uri fails fast rather than on first request.
func NewContext(ctx context.Context, serverID string, redirectMode bool, authoritativeURI string, requestTimeout time.Duration, shapes shape.Store, mappings map[string]mapping.Store, proxy PeerProxier) (*Context, error) {
	ectx := &Context{
		ServerID:       serverID,
		RedirectMode:   redirectMode,
		Authoritative:  authoritativeURI,
		RequestTimeout: requestTimeout,
		Shapes:         shapes,
		Mappings:       mappings,
		Proxy:          proxy,
	}

	if authoritativeURI != "" {
		id, found, err := shapes.IDForURI(ctx, authoritativeURI)
		if err != nil {
			return nil, err
		}
		if !found {
			log.Warn("configured authoritative shape %q not found in shape store", authoritativeURI)
		}
		ectx.authoritativeID = id
		ectx.hasAuthority = found
	}

	return ectx, nil
}

// boundaryKey stashes gml under a freshly generated opaque key for later
// retrieval via getServiceBoundary (spec 3 "serviceBoundaryReference").
func (c *Context) boundaryKey(gml string) string {
	key := lost.NewGUID()
	c.boundaryKeys.Store(key, gml)
	return key
}

// boundaryByKey resolves a key stored by boundaryKey.
func (c *Context) boundaryByKey(key string) (string, bool) {
	v, ok := c.boundaryKeys.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// isPeer reports whether a mapping row names a LoST peer rather than a
// terminal service provider, per Open Question #1 (DESIGN.md): the srv='lost'
// marker already recorded on the row at load time.
func isPeer(r mapping.Row) bool {
	return r.IsPeer
}

func firstURI(r mapping.Row) (string, error) {
	uris := r.URIs()
	if len(uris) == 0 {
		return "", errors.InternalError("mapping row %q has no uri", r.ID)
	}
	return uris[0], nil
}
