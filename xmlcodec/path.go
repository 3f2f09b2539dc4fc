package xmlcodec

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// rootWithInner captures a root element's attributes and raw inner content so
// it can be rewritten and re-emitted without fully re-modeling every child.
type rootWithInner struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// AppendVia appends a <via server_id="..."/> entry to the request's <path>
// element, creating the element if absent, and returns the rewritten request
// body. This is step 6 of spec 4.5.2: every proxying server appends itself to
// the path before forwarding.
func AppendVia(body []byte, serverID string) ([]byte, error) {
	var root rootWithInner
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, err
	}

	via := fmt.Sprintf(`<via server_id=%q/>`, serverID)
	inner := root.Inner
	if idx := strings.Index(inner, "</path>"); idx >= 0 {
		inner = inner[:idx] + via + inner[idx:]
	} else {
		inner = fmt.Sprintf("<path>%s</path>", via) + inner
	}

	return marshalRootWithInner(root, inner), nil
}

// PrependVia inserts a <via server_id="..."/> entry as the first child of
// the response's <path> element (creating it if absent), and returns the
// rewritten body. Spec 3 defines Path as entries "appended to every response
// by each server that handled it"; this server's own entry is prepended
// ahead of whatever path a forwarded-to peer already wrote, per spec 4.5.2
// step 6 ("the server's own <via> entry prepended to the response path").
func PrependVia(body []byte, serverID string) ([]byte, error) {
	var root rootWithInner
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, err
	}

	via := fmt.Sprintf(`<via server_id=%q/>`, serverID)
	inner := root.Inner
	if idx := strings.Index(inner, "<path>"); idx >= 0 {
		insertAt := idx + len("<path>")
		inner = inner[:insertAt] + via + inner[insertAt:]
	} else {
		inner = fmt.Sprintf("<path>%s</path>", via) + inner
	}

	return marshalRootWithInner(root, inner), nil
}

// HasServerID reports whether the given path already names serverID,
// triggering loop detection (spec 3, 4.5.2 step 6).
func HasServerID(path []string, serverID string) bool {
	for _, v := range path {
		if v == serverID {
			return true
		}
	}
	return false
}

func marshalRootWithInner(root rootWithInner, inner string) []byte {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(root.XMLName.Local)
	for _, a := range root.Attrs {
		name := a.Name.Local
		if a.Name.Space == "xmlns" {
			// Prefixed namespace declarations (xmlns:gml, xmlns:xml) keep
			// their prefix; the decoder reports them with Space "xmlns".
			name = "xmlns:" + name
		}
		fmt.Fprintf(&b, ` %s=%q`, name, a.Value)
	}
	b.WriteByte('>')
	b.WriteString(inner)
	b.WriteString("</")
	b.WriteString(root.XMLName.Local)
	b.WriteByte('>')
	return []byte(b.String())
}
