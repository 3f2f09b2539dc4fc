package engine

import (
	"context"
	"time"

	"github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
	"github.com/atlasdatatech/lost/xmlcodec"
)

// Handle parses rawBody, dispatches it through the resolution engine, and
// always returns a complete LoST response document — protocol errors are
// rendered as an <errors> body (spec 4.5.4), never returned as a Go error.
// Handle has no error return; every outcome is a response body.
func Handle(ctx context.Context, ectx *Context, rawBody []byte) []byte {
	req, err := xmlcodec.ParseRequest(rawBody)
	if err != nil {
		return renderErr(err, ectx.ServerID)
	}

	switch req.Op {
	case xmlcodec.OpFindService:
		return handleFindService(ctx, ectx, req.FindService, rawBody)
	case xmlcodec.OpFindIntersect:
		return handleFindIntersect(ctx, ectx, req.FindIntersect)
	case xmlcodec.OpGetServiceBoundary:
		return handleGetServiceBoundary(ectx, req.GetServiceBoundary)
	case xmlcodec.OpListServices, xmlcodec.OpListServicesByLocation:
		// No service catalog backs this core (spec 1 scope: mapping lookup
		// only); recognized but unimplemented.
		return renderErr(errors.NotImplemented("%s is not implemented", req.Op), ectx.ServerID)
	default:
		return renderErr(errors.BadRequest("unsupported operation %q", req.Op), ectx.ServerID)
	}
}

func renderErr(err error, source string) []byte {
	le := toLostError(err)
	return xmlcodec.BuildErrors(le, source)
}

// toLostError coerces any error into a LostError, defaulting to
// internalError for anything the engine didn't already classify (spec 7).
func toLostError(err error) errors.LostError {
	if le, ok := err.(errors.LostError); ok {
		return le
	}
	return errors.InternalError("%v", err)
}

func handleFindService(ctx context.Context, ectx *Context, freq *xmlcodec.FindServiceRequest, rawBody []byte) []byte {
	handler, ok := handlerFor(freq.Profile)
	if !ok {
		return renderErr(errors.LocationProfileUnrecognized(freq.Profile), ectx.ServerID)
	}

	reqCtx, cancel := withTimeout(ctx, ectx)
	defer cancel()

	if err := handler.CheckAuthority(reqCtx, ectx, freq.Geometry); err != nil {
		return renderErr(err, ectx.ServerID)
	}

	if xmlcodec.HasServerID(freq.Path, ectx.ServerID) {
		return renderErr(errors.Loop(ectx.ServerID), ectx.ServerID)
	}

	rows, err := handler.FindService(reqCtx, ectx, freq.Service, freq.Geometry)
	if err != nil {
		return renderErr(err, ectx.ServerID)
	}
	row := rows[0]

	if isPeer(row) {
		return resolveNonLeaf(reqCtx, ectx, row, freq.Recursive, freq.Path, rawBody)
	}

	m, err := buildMapping(reqCtx, ectx, row, freq.Service, freq.ServiceBoundary, freq.Profile)
	if err != nil {
		return renderErr(err, ectx.ServerID)
	}
	return withOwnPath(xmlcodec.BuildFindServiceResponse(m), ectx.ServerID)
}

// withOwnPath prepends this server's via entry onto a response document
// (spec 3 "Path": appended to every response by each server that handled
// it), falling back to the unmodified response if the rewrite fails.
func withOwnPath(resp []byte, serverID string) []byte {
	rewritten, err := xmlcodec.PrependVia(resp, serverID)
	if err != nil {
		log.Warn("failed to stamp path onto response: %v", err)
		return resp
	}
	return rewritten
}

// resolveNonLeaf implements spec 4.5.2 steps 5/6: redirect when
// non-recursive or in redirect mode, otherwise proxy and rewrite the
// response path.
func resolveNonLeaf(ctx context.Context, ectx *Context, row mapping.Row, recursive bool, path []string, rawBody []byte) []byte {
	peerURL, err := firstURI(row)
	if err != nil {
		return renderErr(err, ectx.ServerID)
	}

	if !recursive || ectx.RedirectMode {
		return xmlcodec.BuildRedirect(peerURL, ectx.ServerID, "")
	}

	if xmlcodec.HasServerID(path, ectx.ServerID) {
		return renderErr(errors.Loop(ectx.ServerID), ectx.ServerID)
	}

	forwarded, err := xmlcodec.AppendVia(rawBody, ectx.ServerID)
	if err != nil {
		return renderErr(errors.InternalError("failed to rewrite request path: %v", err), ectx.ServerID)
	}

	respBody, contentType, err := ectx.Proxy.Proxy(ctx, peerURL, forwarded, ectx.RequestTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return renderErr(errors.ServerTimeout("peer %q did not respond in time", peerURL), ectx.ServerID)
		}
		return renderErr(errors.ServerError("peer %q call failed: %v", peerURL, err), ectx.ServerID)
	}
	if contentType != lost.MIMEType {
		return renderErr(errors.ServerError("peer %q returned unsupported content type %q", peerURL, contentType), ectx.ServerID)
	}

	if kind, msg, ok := xmlcodec.ParseErrors(respBody); ok {
		k, known := errors.ParseKind(kind)
		if !known {
			k = errors.KindServerError
		}
		log.Warn("peer %q returned error %q: %s", peerURL, kind, msg)
		return renderErr(errors.FromKind(k, msg), ectx.ServerID)
	}

	rewritten, err := xmlcodec.PrependVia(respBody, ectx.ServerID)
	if err != nil {
		return renderErr(errors.ServerError("peer %q response could not be parsed: %v", peerURL, err), ectx.ServerID)
	}
	return rewritten
}

func handleFindIntersect(ctx context.Context, ectx *Context, freq *xmlcodec.FindIntersectRequest) []byte {
	handler, ok := handlerFor(freq.Profile)
	if !ok {
		return renderErr(errors.LocationProfileUnrecognized(freq.Profile), ectx.ServerID)
	}

	reqCtx, cancel := withTimeout(ctx, ectx)
	defer cancel()

	if err := handler.CheckAuthority(reqCtx, ectx, freq.Geometry); err != nil {
		return renderErr(err, ectx.ServerID)
	}
	if xmlcodec.HasServerID(freq.Path, ectx.ServerID) {
		return renderErr(errors.Loop(ectx.ServerID), ectx.ServerID)
	}

	rows, err := handler.FindIntersect(reqCtx, ectx, freq.Service, freq.Geometry)
	if err != nil {
		return renderErr(err, ectx.ServerID)
	}

	var mappings []xmlcodec.Mapping
	for _, row := range rows {
		if isPeer(row) {
			// A peer row inside an aggregate intersect is not redirected to
			// or proxied: the peer's own uri is folded into the aggregate as
			// a mapping from this server (see DESIGN.md Open Questions).
			peerURL, err := firstURI(row)
			if err != nil {
				log.Warn("skipping peer row %q in findIntersect aggregate: %v", row.ID, err)
				continue
			}
			m := xmlcodec.Mapping{
				Source:      ectx.ServerID,
				SourceID:    row.ID,
				LastUpdated: row.Updated.UTC().Format(time.RFC3339),
				Expires:     time.Now().UTC().Add(lost.ExpiresAfter * time.Hour).Format(time.RFC3339),
				Service:     freq.Service,
				URIs:        []string{peerURL},
			}
			mappings = append(mappings, m)
			continue
		}

		m, err := buildMapping(reqCtx, ectx, row, freq.Service, freq.ServiceBoundary, freq.Profile)
		if err != nil {
			log.Warn("skipping row %q in findIntersect aggregate: %v", row.ID, err)
			continue
		}
		mappings = append(mappings, m)
	}

	if len(mappings) == 0 {
		return renderErr(errors.NotFound(freq.Service), ectx.ServerID)
	}
	return withOwnPath(xmlcodec.BuildFindIntersectResponse(mappings), ectx.ServerID)
}

func handleGetServiceBoundary(ectx *Context, greq *xmlcodec.GetServiceBoundaryRequest) []byte {
	gml, ok := ectx.boundaryByKey(greq.Key)
	if !ok {
		return renderErr(errors.NotFound("serviceBoundary key %q", greq.Key), ectx.ServerID)
	}
	return xmlcodec.BuildGetServiceBoundaryResponse(gml)
}

// buildMapping renders a leaf mapping row into a xmlcodec.Mapping, inlining
// or referencing the service boundary per the request's mode (spec 4.5.2
// step 7).
func buildMapping(ctx context.Context, ectx *Context, row mapping.Row, service string, mode lost.BoundaryMode, profile string) (xmlcodec.Mapping, error) {
	m := xmlcodec.Mapping{
		Source:      ectx.ServerID,
		SourceID:    row.ID,
		LastUpdated: row.Updated.UTC().Format(time.RFC3339),
		Expires:     time.Now().UTC().Add(lost.ExpiresAfter * time.Hour).Format(time.RFC3339),
		Service:     service,
		URIs:        row.URIs(),
		DisplayName: row.DisplayName(),
	}

	gml := row.GML
	if gml == "" {
		var err error
		gml, err = ectx.Shapes.AsGML(ctx, row.ShapeID)
		if err != nil {
			return xmlcodec.Mapping{}, errors.InternalError("failed to render service boundary: %v", err)
		}
	}

	switch mode {
	case lost.BoundaryReference:
		m.BoundaryKey = ectx.boundaryKey(geom.ServiceBoundaryEnvelope(gml, profile))
	default:
		m.BoundaryGML = geom.ServiceBoundaryEnvelope(gml, profile)
	}

	return m, nil
}

func withTimeout(ctx context.Context, ectx *Context) (context.Context, context.CancelFunc) {
	if ectx.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ectx.RequestTimeout)
}
