// Package xmlcodec implements spec 4.1: parsing and emitting LoST documents.
// Requests are parsed into a tagged union (spec 9's "Dynamic XML navigation"
// redesign) rather than navigated with lazy attribute access.
package xmlcodec

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
)

// Operation names the root element local name of a request document.
type Operation string

const (
	OpFindService            Operation = "findService"
	OpFindIntersect          Operation = "findIntersect"
	OpGetServiceBoundary     Operation = "getServiceBoundary"
	OpListServices           Operation = "listServices"
	OpListServicesByLocation Operation = "listServicesByLocation"
)

// Request is the tagged union of every supported LoST request. Exactly one
// of the pointer fields matching Op is non-nil.
type Request struct {
	Op Operation

	FindService            *FindServiceRequest
	FindIntersect          *FindIntersectRequest
	GetServiceBoundary     *GetServiceBoundaryRequest
	ListServices           *ListServicesRequest
	ListServicesByLocation *ListServicesByLocationRequest
}

// FindServiceRequest is spec 3's findService envelope.
type FindServiceRequest struct {
	Service         string
	Profile         string
	Geometry        *geom.Geometry
	Recursive       bool
	ServiceBoundary lost.BoundaryMode
	Path            []string
}

// FindIntersectRequest mirrors FindServiceRequest but carries "interest"
// instead of "location" (spec 1).
type FindIntersectRequest struct {
	Service         string
	Profile         string
	Geometry        *geom.Geometry
	Recursive       bool
	ServiceBoundary lost.BoundaryMode
	Path            []string
}

// GetServiceBoundaryRequest resolves a boundary reference key returned
// earlier as a serviceBoundaryReference (spec 3).
type GetServiceBoundaryRequest struct {
	Key string
}

// ListServicesRequest and ListServicesByLocationRequest are recognized but
// not implemented by the engine beyond notImplemented (spec Non-goals don't
// name them, but no store operation backs a service catalog in this core).
type ListServicesRequest struct {
	Service string
}

type ListServicesByLocationRequest struct {
	Service  string
	Profile  string
	Geometry *geom.Geometry
}

// rawRoot captures just enough of the root element to classify it before
// committing to an operation-specific struct.
type rawRoot struct {
	XMLName xml.Name
}

type rawLocation struct {
	Profile string `xml:"profile,attr"`
	Inner   string `xml:",innerxml"`
}

type rawPath struct {
	Vias []struct {
		ServerID string `xml:"server_id,attr"`
	} `xml:"via"`
}

type rawFindService struct {
	XMLName         xml.Name     `xml:"findService"`
	Recursive       string       `xml:"recursive,attr"`
	ServiceBoundary string       `xml:"serviceBoundary,attr"`
	Location        rawLocation  `xml:"location"`
	Service         string       `xml:"service"`
	Path            *rawPath     `xml:"path"`
}

type rawFindIntersect struct {
	XMLName         xml.Name     `xml:"findIntersect"`
	Recursive       string       `xml:"recursive,attr"`
	ServiceBoundary string       `xml:"serviceBoundary,attr"`
	Interest        rawLocation  `xml:"interest"`
	Service         string       `xml:"service"`
	Path            *rawPath     `xml:"path"`
}

type rawGetServiceBoundary struct {
	XMLName xml.Name `xml:"getServiceBoundary"`
	Key     string   `xml:"key,attr"`
}

type rawListServices struct {
	XMLName xml.Name `xml:"listServices"`
	Service string   `xml:"service"`
}

type rawListServicesByLocation struct {
	XMLName  xml.Name    `xml:"listServicesByLocation"`
	Service  string      `xml:"service"`
	Location rawLocation `xml:"location"`
}

func parsePath(p *rawPath) []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Vias))
	for _, v := range p.Vias {
		out = append(out, v.ServerID)
	}
	return out
}

func parseBoolAttr(v string, def bool) bool {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	default:
		return def
	}
}

func parseBoundaryMode(v string) lost.BoundaryMode {
	if v == string(lost.BoundaryReference) {
		return lost.BoundaryReference
	}
	return lost.BoundaryValue
}

// ParseRequest parses a LoST request document (spec 4.1): it rejects
// documents not in the LoST namespace or with an unsupported root operation,
// both with badRequest.
func ParseRequest(body []byte) (*Request, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var root xml.StartElement
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.BadRequest("malformed XML: %v", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			root = se
			break
		}
	}

	if root.Name.Space != lost.Namespace {
		return nil, errors.BadRequest("unsupported root namespace %q", root.Name.Space)
	}

	switch Operation(root.Name.Local) {
	case OpFindService:
		var r rawFindService
		if err := xml.Unmarshal(body, &r); err != nil {
			return nil, errors.BadRequest("malformed findService request: %v", err)
		}
		g, err := geom.ParseLocationGeometry(r.Location.Inner)
		if err != nil {
			return nil, err
		}
		return &Request{
			Op: OpFindService,
			FindService: &FindServiceRequest{
				Service:         strings.TrimSpace(r.Service),
				Profile:         r.Location.Profile,
				Geometry:        g,
				Recursive:       parseBoolAttr(r.Recursive, true),
				ServiceBoundary: parseBoundaryMode(r.ServiceBoundary),
				Path:            parsePath(r.Path),
			},
		}, nil

	case OpFindIntersect:
		var r rawFindIntersect
		if err := xml.Unmarshal(body, &r); err != nil {
			return nil, errors.BadRequest("malformed findIntersect request: %v", err)
		}
		g, err := geom.ParseLocationGeometry(r.Interest.Inner)
		if err != nil {
			return nil, err
		}
		return &Request{
			Op: OpFindIntersect,
			FindIntersect: &FindIntersectRequest{
				Service:         strings.TrimSpace(r.Service),
				Profile:         r.Interest.Profile,
				Geometry:        g,
				Recursive:       parseBoolAttr(r.Recursive, true),
				ServiceBoundary: parseBoundaryMode(r.ServiceBoundary),
				Path:            parsePath(r.Path),
			},
		}, nil

	case OpGetServiceBoundary:
		var r rawGetServiceBoundary
		if err := xml.Unmarshal(body, &r); err != nil {
			return nil, errors.BadRequest("malformed getServiceBoundary request: %v", err)
		}
		return &Request{Op: OpGetServiceBoundary, GetServiceBoundary: &GetServiceBoundaryRequest{Key: r.Key}}, nil

	case OpListServices:
		var r rawListServices
		if err := xml.Unmarshal(body, &r); err != nil {
			return nil, errors.BadRequest("malformed listServices request: %v", err)
		}
		return &Request{Op: OpListServices, ListServices: &ListServicesRequest{Service: strings.TrimSpace(r.Service)}}, nil

	case OpListServicesByLocation:
		var r rawListServicesByLocation
		if err := xml.Unmarshal(body, &r); err != nil {
			return nil, errors.BadRequest("malformed listServicesByLocation request: %v", err)
		}
		g, err := geom.ParseLocationGeometry(r.Location.Inner)
		if err != nil {
			return nil, err
		}
		return &Request{
			Op: OpListServicesByLocation,
			ListServicesByLocation: &ListServicesByLocationRequest{
				Service:  strings.TrimSpace(r.Service),
				Profile:  r.Location.Profile,
				Geometry: g,
			},
		}, nil

	default:
		return nil, errors.BadRequest("unsupported operation %q", root.Name.Local)
	}
}
