package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlasdatatech/lost/engine"
	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
)

type emptyShapeStore struct{}

func (emptyShapeStore) Contains(ctx context.Context, p *geom.Geometry) ([]string, error) {
	return nil, nil
}
func (emptyShapeStore) Intersects(ctx context.Context, g *geom.Geometry) ([]string, error) {
	return nil, nil
}
func (emptyShapeStore) Equals(ctx context.Context, g *geom.Geometry) (string, bool, error) {
	return "", false, nil
}
func (emptyShapeStore) Insert(ctx context.Context, uri string, g *geom.Geometry, updated time.Time, attrs map[string]interface{}) (string, error) {
	return "", nil
}
func (emptyShapeStore) IDForURI(ctx context.Context, uri string) (string, bool, error) {
	return "", false, nil
}
func (emptyShapeStore) AsGML(ctx context.Context, id string) (string, error) { return "", nil }
func (emptyShapeStore) Close()                                              {}

type emptyMappingStore struct{}

func (emptyMappingStore) Lookup(ctx context.Context, service string, predicate lost.Predicate, g *geom.Geometry) ([]mapping.Row, error) {
	return nil, nil
}
func (emptyMappingStore) Replace(ctx context.Context, shapeID, service string, attrs map[string]interface{}, isPeer bool) error {
	return nil
}
func (emptyMappingStore) Close() {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ectx, err := engine.NewContext(context.Background(), "lost-server", false, "", time.Second,
		emptyShapeStore{}, map[string]mapping.Store{lost.ProfileGeodetic2D: emptyMappingStore{}}, nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return New(ectx)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHandleLostRejectsWrongContentType(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("<findService/>"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (protocol errors are always HTTP 200)", w.Code)
	}
	if w.Header().Get("Content-Type") != lost.MIMEType {
		t.Errorf("response content type = %q, want %q", w.Header().Get("Content-Type"), lost.MIMEType)
	}
	if !strings.Contains(w.Body.String(), "<badRequest") {
		t.Errorf("expected a badRequest error, got %s", w.Body.String())
	}
}

func TestHandleLostOutOfArea(t *testing.T) {
	s := newTestServer(t)
	body := `<?xml version="1.0"?><findService xmlns="urn:ietf:params:xml:ns:lost1">
<location profile="geodetic-2d"><gml:Point xmlns:gml="http://www.opengis.net/gml" srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>0 0</gml:pos></gml:Point></location>
<service>urn:service:sos</service></findService>`

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", lost.MIMEType)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<notFound") {
		t.Errorf("expected notFound, got %s", w.Body.String())
	}
}
