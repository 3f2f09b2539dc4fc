// Package lost defines the wire-level constants shared by every component of
// the LoST server federation: namespaces, the MIME type, the accepted SRS,
// and the server-wide defaults called out in the specification.
package lost

const (
	// MIMEType is the only content type this protocol speaks.
	MIMEType = "application/lost+xml"

	// Namespace is the default (unprefixed) namespace of every LoST element.
	Namespace = "urn:ietf:params:xml:ns:lost1"

	// GMLNamespace is always bound to the "gml" prefix on output because
	// ST_AsGML output is re-parsed under that assumption.
	GMLNamespace = "http://www.opengis.net/gml"

	// XMLNamespace is the standard xml: prefix namespace, used for xml:lang.
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"

	// SRSURN is the only spatial reference system this server accepts.
	SRSURN = "urn:ogc:def:crs:EPSG::4326"
)

const (
	// DefaultIP is the bind address used when not configured.
	DefaultIP = "127.0.0.1"
	// DefaultPort is the bind port used when not configured.
	DefaultPort = 5000
	// DefaultServerID is the identifier used as source and in <path> entries.
	DefaultServerID = "lost-server"
	// DefaultMinCon is the default minimum pool size.
	DefaultMinCon = 1
	// DefaultMaxCon is the default maximum pool size.
	DefaultMaxCon = 16
	// DefaultGeoTable is the default geographic mapping table name.
	DefaultGeoTable = "geo"
	// ExpiresAfter is the validity window placed on a leaf mapping response.
	ExpiresAfter = 24 // hours
)

// Profile names recognized by the location/@profile attribute.
const (
	ProfileGeodetic2D = "geodetic-2d"
	ProfileCivic      = "civic"
)

// Predicate names the geometric test used by a lookup.
type Predicate string

const (
	// PredicateContains backs findService: point-in-polygon.
	PredicateContains Predicate = "contains"
	// PredicateIntersects backs findIntersect: polygon/polygon overlap.
	PredicateIntersects Predicate = "intersects"
)

// BoundaryMode controls whether a response embeds the service boundary GML
// inline (value) or only a reference key (reference).
type BoundaryMode string

const (
	BoundaryValue     BoundaryMode = "value"
	BoundaryReference BoundaryMode = "reference"
)
