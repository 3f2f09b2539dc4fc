// Package errors defines the LoST protocol error taxonomy (RFC 5222 section
// 13) as a set of distinct Go types, grounded on original_source/lost/errors.py.
// Every error kind serializes to the same <errors><kind .../></errors>
// envelope; only the local element name and message differ.
package errors

import "fmt"

// Kind names the wire-level local element name of a LoST error.
type Kind string

const (
	KindBadRequest                  Kind = "badRequest"
	KindForbidden                   Kind = "forbidden"
	KindInternalError               Kind = "internalError"
	KindLocationProfileUnrecognized Kind = "locationProfileUnrecognized"
	KindLocationInvalid             Kind = "locationInvalid"
	KindSRSInvalid                  Kind = "SRSInvalid"
	KindLoop                        Kind = "loop"
	KindNotFound                    Kind = "notFound"
	KindServerError                 Kind = "serverError"
	KindServerTimeout               Kind = "serverTimeout"
	KindNotAuthoritative            Kind = "notAuthoritative"
	KindNotImplemented              Kind = "notImplemented"
	KindServiceNotImplemented       Kind = "serviceNotImplemented"
	KindGeometryNotImplemented      Kind = "geometryNotImplemented"
)

// LostError is the interface every protocol error implements. The transport
// and xmlcodec layers depend only on this, never on the concrete type.
type LostError interface {
	error
	Kind() Kind
	Message() string
}

// baseErr carries the fields common to every error kind.
type baseErr struct {
	kind Kind
	msg  string
}

func (e baseErr) Kind() Kind       { return e.kind }
func (e baseErr) Message() string  { return e.msg }
func (e baseErr) Error() string {
	if e.msg == "" {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func newErr(k Kind, format string, args ...interface{}) LostError {
	return baseErr{kind: k, msg: fmt.Sprintf(format, args...)}
}

// BadRequest: XML malformed, wrong MIME type, wrong root namespace, unknown operation.
func BadRequest(format string, args ...interface{}) LostError {
	return newErr(KindBadRequest, format, args...)
}

// Forbidden: peer refused recursive resolution.
func Forbidden(format string, args ...interface{}) LostError {
	return newErr(KindForbidden, format, args...)
}

// InternalError: unhandled exception in the engine.
func InternalError(format string, args ...interface{}) LostError {
	return newErr(KindInternalError, format, args...)
}

// LocationProfileUnrecognized: no handler for the supplied profile.
func LocationProfileUnrecognized(profile string) LostError {
	return newErr(KindLocationProfileUnrecognized, "unrecognized location profile %q", profile)
}

// LocationInvalid: coordinates outside [-90,90] x [-180,180].
func LocationInvalid(format string, args ...interface{}) LostError {
	return newErr(KindLocationInvalid, format, args...)
}

// SRSInvalid: srsName is not the accepted SRS URN.
func SRSInvalid(got string) LostError {
	return newErr(KindSRSInvalid, "unsupported srsName %q", got)
}

// Loop: server_id already present in <path>.
func Loop(serverID string) LostError {
	return newErr(KindLoop, "server %q already present in path", serverID)
}

// NotFound: no mapping matches.
func NotFound(service string) LostError {
	return newErr(KindNotFound, "no mapping found for service %q", service)
}

// ServerError: upstream peer returned an unparseable or wrong-namespace response.
func ServerError(format string, args ...interface{}) LostError {
	return newErr(KindServerError, format, args...)
}

// ServerTimeout: deadline exceeded on a peer call.
func ServerTimeout(format string, args ...interface{}) LostError {
	return newErr(KindServerTimeout, format, args...)
}

// NotAuthoritative: geometry lies outside the configured authoritative shape.
func NotAuthoritative() LostError {
	return newErr(KindNotAuthoritative, "request location is outside this server's authoritative area")
}

// NotImplemented: generic unimplemented feature.
func NotImplemented(format string, args ...interface{}) LostError {
	return newErr(KindNotImplemented, format, args...)
}

// ServiceNotImplemented: requested service URN has no substitution.
func ServiceNotImplemented(service string) LostError {
	return newErr(KindServiceNotImplemented, "service %q is not implemented", service)
}

// GeometryNotImplemented: GML geometry type is not one of Point/Polygon/MultiPolygon.
func GeometryNotImplemented(tag string) LostError {
	return newErr(KindGeometryNotImplemented, "geometry type %q is not implemented", tag)
}

// FromKind reconstructs a LostError from a wire kind and message, used when
// re-raising an error received from an upstream peer (spec 7, propagation).
func FromKind(k Kind, msg string) LostError {
	return baseErr{kind: k, msg: msg}
}

// knownKinds lists every kind ParseKind will recognize; callers map anything
// else to KindServerError before calling FromKind, mirroring errors.py's
// raise_for_errors fallback to the base LoSTError when no subclass matches.
var knownKinds = map[Kind]bool{
	KindBadRequest: true, KindForbidden: true, KindInternalError: true,
	KindLocationProfileUnrecognized: true, KindLocationInvalid: true,
	KindSRSInvalid: true, KindLoop: true, KindNotFound: true,
	KindServerError: true, KindServerTimeout: true, KindNotAuthoritative: true,
	KindNotImplemented: true, KindServiceNotImplemented: true,
	KindGeometryNotImplemented: true,
}

// ParseKind validates a wire-level error local name, returning ok=false for
// anything the taxonomy doesn't recognize.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, knownKinds[k]
}
