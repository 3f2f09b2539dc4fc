package xmlcodec

import (
	"encoding/xml"
	"fmt"
	"strings"

	lerrors "github.com/atlasdatatech/lost/errors"
	"github.com/atlasdatatech/lost/lost"
)

const xmlDecl = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// nsAttrs declares the lost (default), gml and xml namespaces on the root
// element, per spec 4.1: "the GML prefix MUST be gml because ST_AsGML output
// is re-parsed".
func nsAttrs() string {
	return fmt.Sprintf(`xmlns=%q xmlns:gml=%q xmlns:xml=%q`, lost.Namespace, lost.GMLNamespace, lost.XMLNamespace)
}

// Mapping is the response-side counterpart of a store/mapping row, ready to
// be serialized as a <mapping> element (spec 3 "Response envelope").
type Mapping struct {
	Source      string
	SourceID    string
	LastUpdated string // ISO-8601
	Expires     string // ISO-8601
	Service     string
	// BoundaryGML, when non-empty, is a <serviceBoundary>...</serviceBoundary>
	// fragment built by geom.ServiceBoundaryEnvelope (value mode).
	BoundaryGML string
	// BoundaryKey, when non-empty, is used instead of BoundaryGML (reference mode).
	BoundaryKey string
	URIs        []string
	DisplayName string
}

func (m Mapping) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<mapping source=%q sourceId=%q lastUpdated=%q expires=%q>`,
		m.Source, m.SourceID, m.LastUpdated, m.Expires)
	fmt.Fprintf(&b, `<service>%s</service>`, xmlEscape(m.Service))
	if m.BoundaryGML != "" {
		b.WriteString(m.BoundaryGML)
	} else if m.BoundaryKey != "" {
		fmt.Fprintf(&b, `<serviceBoundaryReference source=%q key=%q/>`, m.Source, m.BoundaryKey)
	}
	for _, u := range m.URIs {
		fmt.Fprintf(&b, `<uri>%s</uri>`, xmlEscape(u))
	}
	if m.DisplayName != "" {
		fmt.Fprintf(&b, `<displayName xml:lang="en">%s</displayName>`, xmlEscape(m.DisplayName))
	}
	b.WriteString(`</mapping>`)
	return b.String()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

// BuildFindServiceResponse renders a <findServiceResponse> document (spec
// 4.5.2 step 7).
func BuildFindServiceResponse(m Mapping) []byte {
	var b strings.Builder
	b.WriteString(xmlDecl)
	fmt.Fprintf(&b, `<findServiceResponse %s>`, nsAttrs())
	b.WriteString(m.render())
	b.WriteString(`</findServiceResponse>`)
	return []byte(b.String())
}

// BuildFindIntersectResponse renders either the singular
// <findIntersectResponse> (one match) or the aggregate
// <findIntersectResponses> container (spec 4.5.3, Open Question #2).
func BuildFindIntersectResponse(ms []Mapping) []byte {
	var b strings.Builder
	b.WriteString(xmlDecl)
	if len(ms) == 1 {
		fmt.Fprintf(&b, `<findIntersectResponse %s>`, nsAttrs())
		b.WriteString(ms[0].render())
		b.WriteString(`</findIntersectResponse>`)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, `<findIntersectResponses %s>`, nsAttrs())
	for _, m := range ms {
		b.WriteString(`<findIntersectResponse>`)
		b.WriteString(m.render())
		b.WriteString(`</findIntersectResponse>`)
	}
	b.WriteString(`</findIntersectResponses>`)
	return []byte(b.String())
}

// BuildGetServiceBoundaryResponse wraps a <serviceBoundary> fragment (built
// by geom.ServiceBoundaryEnvelope) in a <getServiceBoundaryResponse> root, so
// a getServiceBoundary reply is a complete LoST response document rather than
// a bare fragment (spec 4.1, 4.5.2 step 7's reference mode lookup).
func BuildGetServiceBoundaryResponse(boundary string) []byte {
	var b strings.Builder
	b.WriteString(xmlDecl)
	fmt.Fprintf(&b, `<getServiceBoundaryResponse %s>`, nsAttrs())
	b.WriteString(boundary)
	b.WriteString(`</getServiceBoundaryResponse>`)
	return []byte(b.String())
}

// BuildRedirect renders a <redirect> document (spec 4.5.2 step 5).
func BuildRedirect(target, source, message string) []byte {
	var b strings.Builder
	b.WriteString(xmlDecl)
	fmt.Fprintf(&b, `<redirect %s target=%q source=%q`, nsAttrs(), target, source)
	if message != "" {
		fmt.Fprintf(&b, ` message=%q`, message)
	}
	b.WriteString(`/>`)
	return []byte(b.String())
}

// BuildErrors renders the <errors> envelope (spec 4.1, 7).
func BuildErrors(err lerrors.LostError, source string) []byte {
	var b strings.Builder
	b.WriteString(xmlDecl)
	fmt.Fprintf(&b, `<errors %s>`, nsAttrs())
	fmt.Fprintf(&b, `<%s`, err.Kind())
	if err.Message() != "" {
		fmt.Fprintf(&b, ` message=%q`, err.Message())
	}
	if source != "" {
		fmt.Fprintf(&b, ` source=%q`, source)
	}
	fmt.Fprintf(&b, ` xml:lang="en"/>`)
	b.WriteString(`</errors>`)
	return []byte(b.String())
}

// ParseErrors decodes an <errors> document body, returning ok=false if the
// root element is not <errors>.
func ParseErrors(body []byte) (kind, message string, ok bool) {
	// Reuses the generic root-with-inner shape: the sole child is the error
	// element itself, whose local name is the kind and whose message
	// attribute (if any) we extract by a light attribute scan.
	var root rootWithInner
	if err := xml.Unmarshal(body, &root); err != nil {
		return "", "", false
	}
	if root.XMLName.Local != "errors" {
		return "", "", false
	}
	return parseFirstChildKindAndMessage(root.Inner)
}

// parseFirstChildKindAndMessage extracts the local name and message
// attribute of the first child element in a raw XML fragment.
func parseFirstChildKindAndMessage(inner string) (kind, message string, ok bool) {
	dec := xml.NewDecoder(strings.NewReader(inner))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", "", false
		}
		se, isStart := tok.(xml.StartElement)
		if !isStart {
			continue
		}
		kind = se.Name.Local
		for _, a := range se.Attr {
			if a.Name.Local == "message" {
				message = a.Value
			}
		}
		return kind, message, true
	}
}
