// Package geom translates between the three geometry representations this
// server speaks: GML (the wire format of LoST requests and the embedded
// serviceBoundary), GeoJSON (loader input and client convenience input), and
// the store-native form consumed by the shape/mapping façades. It also
// enforces the single accepted SRS (spec 4.2, 6).
package geom

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	spgeom "github.com/go-spatial/geom"

	"github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/lost"
)

// Kind names the supported geometry shapes. Anything else is
// geometryNotImplemented.
type Kind string

const (
	KindPoint        Kind = "Point"
	KindPolygon      Kind = "Polygon"
	KindMultiPolygon Kind = "MultiPolygon"
)

// Format names the wire encoding a non-Point Geometry's raw fragment was
// captured in, so the store façades know whether to hand it to
// ST_GeomFromGML or ST_GeomFromGeoJSON.
type Format string

const (
	FormatGML     Format = "gml"
	FormatGeoJSON Format = "geojson"
)

// Geometry is the store-native value handed to store/shape and
// store/mapping. For points it carries a decoded go-spatial/geom value
// (lon, lat order, ready for "POINT(lon lat)"). For polygons it carries the
// original fragment verbatim, plus the Format it arrived in, so that it can
// be handed to the matching ST_GeomFrom* function unchanged (spec 4.2).
type Geometry struct {
	Kind   Kind
	Point  spgeom.Point
	Raw    string // original fragment, polygon/multipolygon only
	Format Format // encoding of Raw, polygon/multipolygon only
}

// WKT renders the store-native representation for a Point; Polygon and
// MultiPolygon geometries are sent through as their raw GML or GeoJSON
// fragment and never need WKT.
func (g Geometry) WKT() string {
	return fmt.Sprintf("POINT(%v %v)", g.Point[0], g.Point[1])
}

// gmlPoint captures just enough of a GML Point to extract its position text;
// the namespace is left unspecified in the tag so it matches the element
// regardless of which prefix the document declared for it.
type gmlPoint struct {
	XMLName xml.Name `xml:"Point"`
	Pos     string   `xml:"pos"`
}

// ParseLocationGeometry parses the single geometry child of a <location> or
// <interest> element, given its raw inner XML (captured verbatim so that
// polygon fragments retain their original namespace prefixes for
// ST_GeomFromGML). It enforces the accepted SRS and geometry kind.
func ParseLocationGeometry(innerXML string) (*Geometry, error) {
	trimmed := strings.TrimSpace(innerXML)
	if trimmed == "" {
		return nil, errors.BadRequest("location element has no geometry child")
	}

	dec := xml.NewDecoder(strings.NewReader(trimmed))
	var start xml.StartElement
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.BadRequest("unable to parse location geometry: %v", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			start = se
			break
		}
	}

	var srsName string
	for _, a := range start.Attr {
		if a.Name.Local == "srsName" {
			srsName = a.Value
		}
	}
	if srsName == "" {
		return nil, errors.BadRequest("geometry is missing srsName")
	}
	if srsName != lost.SRSURN {
		return nil, errors.SRSInvalid(srsName)
	}

	switch start.Name.Local {
	case string(KindPoint):
		var p gmlPoint
		if err := xml.Unmarshal([]byte(trimmed), &p); err != nil {
			return nil, errors.BadRequest("malformed gml:Point: %v", err)
		}
		fields := strings.Fields(p.Pos)
		if len(fields) != 2 {
			return nil, errors.BadRequest("gml:pos must contain exactly two numbers, got %q", p.Pos)
		}
		// GML coordinate order is lat lon; store order is lon lat (spec 3 SRS).
		lat, err1 := strconv.ParseFloat(fields[0], 64)
		lon, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return nil, errors.BadRequest("gml:pos contains non-numeric coordinates: %q", p.Pos)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, errors.LocationInvalid("point (%v, %v) is outside the valid domain", lat, lon)
		}
		return &Geometry{Kind: KindPoint, Point: spgeom.Point{lon, lat}}, nil

	case string(KindPolygon), string(KindMultiPolygon):
		return &Geometry{Kind: Kind(start.Name.Local), Raw: trimmed, Format: FormatGML}, nil

	default:
		return nil, errors.GeometryNotImplemented(start.Name.Local)
	}
}

// ServiceBoundaryEnvelope wraps GML text returned by ST_AsGML into a
// <serviceBoundary> element that declares the gml namespace, mirroring
// original_source/lost/server.py's service_boundary() helper.
func ServiceBoundaryEnvelope(gmlBody string, profile string) string {
	return fmt.Sprintf(
		`<serviceBoundary profile=%q xmlns:gml=%q>%s</serviceBoundary>`,
		profile, lost.GMLNamespace, gmlBody)
}

// geoJSONEnvelope is used to unwrap Feature/FeatureCollection wrappers
// before decoding the bare geometry object (spec 4.2, loader + client paths).
type geoJSONEnvelope struct {
	Type        string            `json:"type"`
	Geometry    json.RawMessage   `json:"geometry"`
	Features    []json.RawMessage `json:"features"`
	Coordinates json.RawMessage   `json:"coordinates"`
}

// ExtractGeoJSONGeometry unwraps a GeoJSON document down to its bare
// geometry object: the first Feature of a FeatureCollection, the geometry of
// a Feature, or the object itself if it is already a bare geometry.
func ExtractGeoJSONGeometry(data []byte) ([]byte, error) {
	var env geoJSONEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.BadRequest("malformed GeoJSON: %v", err)
	}

	switch env.Type {
	case "FeatureCollection":
		if len(env.Features) == 0 {
			return nil, errors.BadRequest("GeoJSON FeatureCollection has no features")
		}
		return ExtractGeoJSONGeometry(env.Features[0])
	case "Feature":
		if len(env.Geometry) == 0 {
			return nil, errors.BadRequest("GeoJSON Feature has no geometry")
		}
		return env.Geometry, nil
	default:
		return data, nil
	}
}

// geoJSONGeometry is the bare-geometry decode target.
type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// GeoJSONToGeometry decodes a bare GeoJSON geometry object (Point, Polygon or
// MultiPolygon; coordinates already in lon,lat order) into our store-native
// Geometry. It is the counterpart to ParseLocationGeometry for the loader and
// client code paths that accept GeoJSON instead of GML.
func GeoJSONToGeometry(data []byte) (*Geometry, error) {
	var g geoJSONGeometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.BadRequest("malformed GeoJSON geometry: %v", err)
	}

	switch g.Type {
	case string(KindPoint):
		var coords [2]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, errors.BadRequest("malformed GeoJSON Point coordinates: %v", err)
		}
		lon, lat := coords[0], coords[1]
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, errors.LocationInvalid("point (%v, %v) is outside the valid domain", lat, lon)
		}
		return &Geometry{Kind: KindPoint, Point: spgeom.Point{lon, lat}}, nil

	case string(KindPolygon), string(KindMultiPolygon):
		// Polygons are forwarded to the store as GeoJSON text; the store
		// façade picks ST_GeomFromGeoJSON for Format: FormatGeoJSON values.
		return &Geometry{Kind: Kind(g.Type), Raw: string(data), Format: FormatGeoJSON}, nil

	default:
		return nil, errors.GeometryNotImplemented(g.Type)
	}
}

// ToGML renders a store-native Geometry back into a GML fragment suitable
// for embedding in a findService/findIntersect request, used by the
// client/resolver when the caller supplies a GeoJSON or coordinate location
// (spec 4.7). Coordinate order is swapped from lon,lat (GeoJSON/store) to
// lat,lon (GML) at this boundary, per spec 3 "SRS".
func ToGML(g *Geometry) string {
	switch g.Kind {
	case KindPoint:
		return fmt.Sprintf(
			`<Point xmlns="%s" srsName="%s"><pos>%v %v</pos></Point>`,
			lost.GMLNamespace, lost.SRSURN, g.Point[1], g.Point[0])
	default:
		// Polygon/MultiPolygon GML is produced upstream by whatever supplied
		// the original fragment (file, previous response); nothing else in
		// this server generates polygon GML from scratch. GeoJSON-sourced
		// geometries have no GML rendering path since nothing currently
		// re-embeds a loaded boundary back into a request document.
		return g.Raw
	}
}
