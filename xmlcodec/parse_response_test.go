package xmlcodec

import (
	"testing"

	lerrors "github.com/atlasdatatech/lost/errors"
)

func TestParseRedirect(t *testing.T) {
	body := BuildRedirect("http://peer-ny:5000", "lost-server", "")
	target, ok := ParseRedirect(body)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if target != "http://peer-ny:5000" {
		t.Errorf("target = %q, want %q", target, "http://peer-ny:5000")
	}
}

func TestParseRedirectRejectsOtherRoot(t *testing.T) {
	body := BuildFindServiceResponse(Mapping{Source: "s", Service: "urn:service:sos"})
	if _, ok := ParseRedirect(body); ok {
		t.Error("expected ok=false for a non-redirect document")
	}
}

func TestParseMappingURIsSingular(t *testing.T) {
	m := Mapping{
		Source: "lost-server", SourceID: "m1", LastUpdated: "2024-01-01T00:00:00Z",
		Expires: "2024-01-02T00:00:00Z", Service: "urn:service:sos",
		URIs: []string{"sip:psap@example", "tel:+15555550100"},
	}
	body := BuildFindServiceResponse(m)

	uris, ok := ParseMappingURIs(body)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(uris) != 2 || uris[0] != "sip:psap@example" || uris[1] != "tel:+15555550100" {
		t.Errorf("uris = %v, want [sip:psap@example tel:+15555550100]", uris)
	}
}

func TestParseMappingURIsAggregate(t *testing.T) {
	ms := []Mapping{
		{Source: "lost-server", SourceID: "m1", Service: "urn:service:sos", URIs: []string{"sip:a@example"}},
		{Source: "lost-server", SourceID: "m2", Service: "urn:service:sos", URIs: []string{"sip:b@example"}},
	}
	body := BuildFindIntersectResponse(ms)

	uris, ok := ParseMappingURIs(body)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(uris) != 2 || uris[0] != "sip:a@example" || uris[1] != "sip:b@example" {
		t.Errorf("uris = %v, want [sip:a@example sip:b@example]", uris)
	}
}

func TestParseMappingURIsRejectsErrors(t *testing.T) {
	body := BuildErrors(lerrors.NotFound("urn:service:sos"), "lost-server")
	if _, ok := ParseMappingURIs(body); ok {
		t.Error("expected ok=false for an <errors> document")
	}
}
