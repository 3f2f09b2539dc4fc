package mapping

import (
	"reflect"
	"testing"

	"github.com/atlasdatatech/lost/geom"
)

func TestRowURIs(t *testing.T) {
	cases := []struct {
		name  string
		attrs map[string]interface{}
		want  []string
	}{
		{"single string", map[string]interface{}{"uri": "sip:psap@example"}, []string{"sip:psap@example"}},
		{"string slice", map[string]interface{}{"uri": []string{"sip:a@example", "tel:+15555550100"}}, []string{"sip:a@example", "tel:+15555550100"}},
		{"interface slice", map[string]interface{}{"uri": []interface{}{"sip:a@example", "tel:+15555550100"}}, []string{"sip:a@example", "tel:+15555550100"}},
		{"missing", map[string]interface{}{}, nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := Row{Attrs: c.attrs}
			got := r.URIs()
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("URIs() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestRowDisplayName(t *testing.T) {
	r := Row{Attrs: map[string]interface{}{"displayName": "New York PSAP"}}
	if got := r.DisplayName(); got != "New York PSAP" {
		t.Errorf("DisplayName() = %q, want %q", got, "New York PSAP")
	}

	r2 := Row{Attrs: map[string]interface{}{}}
	if got := r2.DisplayName(); got != "" {
		t.Errorf("DisplayName() = %q, want empty string", got)
	}
}

func TestGeometryArgGeoJSONPolygon(t *testing.T) {
	g := &geom.Geometry{Kind: geom.KindPolygon, Format: geom.FormatGeoJSON, Raw: `{"type":"Polygon","coordinates":[]}`}
	sql, arg := geometryArg(g)
	if sql != "ST_GeomFromGeoJSON($2)" {
		t.Errorf("sql = %q, want ST_GeomFromGeoJSON", sql)
	}
	if arg != `{"type":"Polygon","coordinates":[]}` {
		t.Errorf("arg = %v", arg)
	}
}

func TestGeometryArgGML(t *testing.T) {
	g := &geom.Geometry{Kind: geom.KindPolygon, Format: geom.FormatGML, Raw: "<gml:Polygon/>"}
	sql, _ := geometryArg(g)
	if sql != "ST_GeomFromGML($2)" {
		t.Errorf("sql = %q, want ST_GeomFromGML", sql)
	}
}
