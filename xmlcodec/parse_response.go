package xmlcodec

import (
	"bytes"
	"encoding/xml"
)

// ParseRedirect reports whether body's root element is <redirect>, returning
// its target attribute (spec 4.7: "On <redirect> with non-recursive mode,
// follows the target").
func ParseRedirect(body []byte) (target string, ok bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		se, isStart := tok.(xml.StartElement)
		if !isStart {
			continue
		}
		if se.Name.Local != "redirect" {
			return "", false
		}
		for _, a := range se.Attr {
			if a.Name.Local == "target" {
				return a.Value, true
			}
		}
		return "", false
	}
}

// ParseMappingURIs extracts every <uri> element's text content from a
// findServiceResponse, findIntersectResponse, or findIntersectResponses
// document (spec 4.7: "On <findServiceResponse>, returns the <uri> list").
// ok is false if the root element is none of those.
func ParseMappingURIs(body []byte) (uris []string, ok bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	root, err := firstStartElement(dec)
	if err != nil {
		return nil, false
	}
	switch root.Name.Local {
	case "findServiceResponse", "findIntersectResponse", "findIntersectResponses":
	default:
		return nil, false
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, isStart := tok.(xml.StartElement)
		if !isStart || se.Name.Local != "uri" {
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &se); err != nil {
			continue
		}
		uris = append(uris, text)
	}
	return uris, true
}

func firstStartElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}
