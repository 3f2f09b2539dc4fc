package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
)

// fakeShapeStore is a no-op shape.Store; the scenarios below never need a
// real geometric predicate because the mapping store fakes already encode
// the lookup outcome directly.
type fakeShapeStore struct {
	authoritativeIDs map[string]string
	intersects       []string
	gml              string
}

func (f *fakeShapeStore) Contains(ctx context.Context, p *geom.Geometry) ([]string, error) {
	return nil, nil
}
func (f *fakeShapeStore) Intersects(ctx context.Context, g *geom.Geometry) ([]string, error) {
	return f.intersects, nil
}
func (f *fakeShapeStore) Equals(ctx context.Context, g *geom.Geometry) (string, bool, error) {
	return "", false, nil
}
func (f *fakeShapeStore) Insert(ctx context.Context, uri string, g *geom.Geometry, updated time.Time, attrs map[string]interface{}) (string, error) {
	return "", nil
}
func (f *fakeShapeStore) IDForURI(ctx context.Context, uri string) (string, bool, error) {
	id, ok := f.authoritativeIDs[uri]
	return id, ok, nil
}
func (f *fakeShapeStore) AsGML(ctx context.Context, id string) (string, error) { return f.gml, nil }
func (f *fakeShapeStore) Close()                                              {}

type fakeMappingStore struct {
	rows []mapping.Row
}

func (f *fakeMappingStore) Lookup(ctx context.Context, service string, predicate lost.Predicate, g *geom.Geometry) ([]mapping.Row, error) {
	return f.rows, nil
}
func (f *fakeMappingStore) Replace(ctx context.Context, shapeID, service string, attrs map[string]interface{}, isPeer bool) error {
	return nil
}
func (f *fakeMappingStore) Close() {}

type fakePeer struct {
	respBody    []byte
	contentType string
	err         error
	calledWith  []byte
}

func (f *fakePeer) Proxy(ctx context.Context, peerURL string, body []byte, timeout time.Duration) ([]byte, string, error) {
	f.calledWith = body
	return f.respBody, f.contentType, f.err
}

func newTestContext(t *testing.T, rows []mapping.Row, redirectMode bool, authoritative string, shapes *fakeShapeStore, peer PeerProxier) *Context {
	t.Helper()
	if shapes == nil {
		shapes = &fakeShapeStore{}
	}
	ectx, err := NewContext(context.Background(), "lost-server", redirectMode, authoritative, time.Second, shapes,
		map[string]mapping.Store{lost.ProfileGeodetic2D: &fakeMappingStore{rows: rows}}, peer)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ectx
}

// S1: leaf hit.
func TestHandleFindService_LeafHit(t *testing.T) {
	rows := []mapping.Row{{
		ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(),
		Attrs: map[string]interface{}{"uri": "sip:psap@example"}, GML: "<gml:Point/>",
	}}
	ectx := newTestContext(t, rows, false, "", nil, nil)

	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1" recursive="true" serviceBoundary="value">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<findServiceResponse") {
		t.Fatalf("expected findServiceResponse, got %s", resp)
	}
	if !strings.Contains(string(resp), "<uri>sip:psap@example</uri>") {
		t.Errorf("expected uri in response, got %s", resp)
	}
}

// S2: out of area.
func TestHandleFindService_NotFound(t *testing.T) {
	ectx := newTestContext(t, nil, false, "", nil, nil)
	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>0 0</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<errors") || !strings.Contains(string(resp), "<notFound") {
		t.Fatalf("expected notFound error, got %s", resp)
	}
}

// S3: redirect mode.
func TestHandleFindService_RedirectMode(t *testing.T) {
	rows := []mapping.Row{{
		ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(), IsPeer: true,
		Attrs: map[string]interface{}{"uri": "http://peer-ny:5000"},
	}}
	ectx := newTestContext(t, rows, true, "", nil, nil)
	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1" recursive="true">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), `<redirect`) || !strings.Contains(string(resp), `target="http://peer-ny:5000"`) {
		t.Fatalf("expected redirect, got %s", resp)
	}
}

// S4: recursive proxy, response path accumulation.
func TestHandleFindService_RecursiveProxy(t *testing.T) {
	rows := []mapping.Row{{
		ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(), IsPeer: true,
		Attrs: map[string]interface{}{"uri": "http://peer-ny:5000"},
	}}
	peerResp := []byte(`<?xml version="1.0"?><findServiceResponse xmlns="urn:ietf:params:xml:ns:lost1"><path><via server_id="peer-ny"/></path><mapping source="peer-ny" sourceId="x" lastUpdated="2024-01-01T00:00:00Z" expires="2024-01-02T00:00:00Z"><service>urn:service:sos</service><uri>sip:psap@peer</uri></mapping></findServiceResponse>`)
	peer := &fakePeer{respBody: peerResp, contentType: lost.MIMEType}
	ectx := newTestContext(t, rows, false, "", nil, peer)

	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1" recursive="true">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	s := string(resp)
	if !strings.Contains(s, `via server_id="lost-server"`) || !strings.Contains(s, `via server_id="peer-ny"`) {
		t.Fatalf("expected accumulated path with both servers, got %s", s)
	}
	if strings.Index(s, "lost-server") > strings.Index(s, "peer-ny") {
		t.Errorf("expected lost-server to be prepended ahead of peer-ny, got %s", s)
	}
	if peer.calledWith == nil || !strings.Contains(string(peer.calledWith), `via server_id="lost-server"`) {
		t.Errorf("expected forwarded request to carry this server's via entry")
	}
}

// S5: loop.
func TestHandleFindService_Loop(t *testing.T) {
	rows := []mapping.Row{{
		ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(), IsPeer: true,
		Attrs: map[string]interface{}{"uri": "http://peer-ny:5000"},
	}}
	ectx := newTestContext(t, rows, false, "", nil, &fakePeer{})
	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1" recursive="true">
<path><via server_id="lost-server"/></path>
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<loop") {
		t.Fatalf("expected loop error, got %s", resp)
	}
}

// S6: SRS mismatch.
func TestHandleFindService_SRSInvalid(t *testing.T) {
	ectx := newTestContext(t, nil, false, "", nil, nil)
	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::3857"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<SRSInvalid") {
		t.Fatalf("expected SRSInvalid error, got %s", resp)
	}
}

func TestHandleFindService_NotAuthoritative(t *testing.T) {
	shapes := &fakeShapeStore{authoritativeIDs: map[string]string{"https://osm.example/area/1": "auth-shape"}, intersects: nil}
	ectx := newTestContext(t, []mapping.Row{{ID: "m1"}}, false, "https://osm.example/area/1", shapes, nil)

	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<notAuthoritative") {
		t.Fatalf("expected notAuthoritative error, got %s", resp)
	}
}

// findIntersect aggregating two leaf rows plus one peer row.
func TestHandleFindIntersect_Aggregate(t *testing.T) {
	rows := []mapping.Row{
		{ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(),
			Attrs: map[string]interface{}{"uri": "sip:psap-a@example"}, GML: "<gml:Point/>"},
		{ID: "m2", ShapeID: "s2", Service: "urn:service:sos", Updated: time.Now(),
			Attrs: map[string]interface{}{"uri": "sip:psap-b@example"}, GML: "<gml:Point/>"},
		{ID: "m3", ShapeID: "s3", Service: "urn:service:sos", Updated: time.Now(), IsPeer: true,
			Attrs: map[string]interface{}{"uri": "http://peer-ny:5000"}},
	}
	ectx := newTestContext(t, rows, false, "", nil, nil)

	body := []byte(`<?xml version="1.0"?><findIntersect xmlns="urn:ietf:params:xml:ns:lost1">
<interest profile="geodetic-2d"><gml:Polygon xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:exterior><gml:LinearRing><gml:posList>40.0 -74.0 40.0 -73.0 41.0 -73.0 41.0 -74.0 40.0 -74.0</gml:posList></gml:LinearRing></gml:exterior></gml:Polygon></interest>
<service>urn:service:sos</service></findIntersect>`)

	resp := Handle(context.Background(), ectx, body)
	s := string(resp)
	if !strings.Contains(s, "<findIntersectResponses") {
		t.Fatalf("expected a plural aggregate container for 3 rows, got %s", s)
	}
	for _, want := range []string{"sip:psap-a@example", "sip:psap-b@example", "http://peer-ny:5000"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in aggregate response, got %s", want, s)
		}
	}
	if !strings.Contains(s, `via server_id="lost-server"`) {
		t.Errorf("expected this server's own via entry on the aggregate response, got %s", s)
	}
}

// findIntersect with a single match uses the singular container spelling.
func TestHandleFindIntersect_Single(t *testing.T) {
	rows := []mapping.Row{{
		ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(),
		Attrs: map[string]interface{}{"uri": "sip:psap@example"}, GML: "<gml:Point/>",
	}}
	ectx := newTestContext(t, rows, false, "", nil, nil)

	body := []byte(`<?xml version="1.0"?><findIntersect xmlns="urn:ietf:params:xml:ns:lost1">
<interest profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></interest>
<service>urn:service:sos</service></findIntersect>`)

	resp := Handle(context.Background(), ectx, body)
	s := string(resp)
	if strings.Contains(s, "<findIntersectResponses") {
		t.Fatalf("expected the singular container for one match, got plural: %s", s)
	}
	if !strings.Contains(s, "<findIntersectResponse ") {
		t.Fatalf("expected a singular findIntersectResponse, got %s", s)
	}
	if !strings.Contains(s, "sip:psap@example") {
		t.Errorf("expected uri in response, got %s", s)
	}
}

// getServiceBoundary resolves the key a reference-mode findService handed
// back, and wraps it in a complete response document (not a bare fragment).
func TestHandleGetServiceBoundary_ReferenceRoundTrip(t *testing.T) {
	shapes := &fakeShapeStore{gml: `<gml:Polygon><gml:exterior/></gml:Polygon>`}
	rows := []mapping.Row{{
		ID: "m1", ShapeID: "s1", Service: "urn:service:sos", Updated: time.Now(),
		Attrs: map[string]interface{}{"uri": "sip:psap@example"},
	}}
	ectx := newTestContext(t, rows, false, "", shapes, nil)

	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1" serviceBoundary="reference">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	s := string(resp)
	idx := strings.Index(s, `key="`)
	if idx == -1 {
		t.Fatalf("expected a serviceBoundaryReference key in the findService response, got %s", s)
	}
	start := idx + len(`key="`)
	end := strings.Index(s[start:], `"`)
	key := s[start : start+end]

	boundaryBody := []byte(`<?xml version="1.0"?><getServiceBoundary xmlns="urn:ietf:params:xml:ns:lost1" key="` + key + `"/>`)
	boundaryResp := Handle(context.Background(), ectx, boundaryBody)
	bs := string(boundaryResp)
	if !strings.Contains(bs, "<?xml") {
		t.Errorf("expected an XML declaration, got %s", bs)
	}
	if !strings.Contains(bs, "<getServiceBoundaryResponse") {
		t.Fatalf("expected a getServiceBoundaryResponse root, got %s", bs)
	}
	if !strings.Contains(bs, "<serviceBoundary") || !strings.Contains(bs, "</getServiceBoundaryResponse>") {
		t.Errorf("expected the serviceBoundary fragment nested inside the response root, got %s", bs)
	}
}

func TestHandleGetServiceBoundary_UnknownKey(t *testing.T) {
	ectx := newTestContext(t, nil, false, "", nil, nil)
	body := []byte(`<?xml version="1.0"?><getServiceBoundary xmlns="urn:ietf:params:xml:ns:lost1" key="nonexistent"/>`)
	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<notFound") {
		t.Fatalf("expected notFound error, got %s", resp)
	}
}

func TestHandleFindService_UnrecognizedProfile(t *testing.T) {
	ectx := newTestContext(t, nil, false, "", nil, nil)
	body := []byte(`<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1">
<location profile="civic"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>40.5 -73.5</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`)

	resp := Handle(context.Background(), ectx, body)
	if !strings.Contains(string(resp), "<locationProfileUnrecognized") {
		t.Fatalf("expected locationProfileUnrecognized, got %s", resp)
	}
}
