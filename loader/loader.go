// Package loader implements spec 4.8: bulk-ingesting GeoJSON boundary files
// (and an optional uri -> peer-url map) into the shape and mapping stores.
// It is never run concurrently with serving traffic (spec 5 "Shared
// resources").
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/atlasdatatech/lost/geom"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/lost"
	"github.com/atlasdatatech/lost/store/mapping"
	"github.com/atlasdatatech/lost/store/shape"
)

// URLMap associates a shape's uri with the LoST peer responsible for it
// (spec 4.8 step 3).
type URLMap map[string]string

// LoadURLMap reads a JSON object of {shape-uri: peer-url} from path.
func LoadURLMap(path string) (URLMap, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m URLMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed url map %q: %v", path, err)
	}
	return m, nil
}

// featureCollection and feature mirror just the GeoJSON Feature fields
// osm.py's extract_boundary reads: geometry, and a tags bag nested under
// properties.tags (as Overpass/osm2geojson output it). Tags placed directly
// on properties are not read.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties featureProps    `json:"properties"`
}

type featureProps struct {
	ID        interface{}       `json:"id"`
	Type      string            `json:"type"`
	Timestamp string            `json:"timestamp"`
	URI       string            `json:"uri"`
	Tags      map[string]string `json:"tags"`
}

// extracted is the per-feature payload the loader upserts into the shape
// store (spec 4.8 step 1).
type extracted struct {
	Geometry []byte
	Attrs    map[string]interface{}
	URI      string
}

// extractFeature finds the first feature of type "relation" or "way" in a
// FeatureCollection, grounded on original_source/lost/osm.py's
// extract_boundary: id, timestamp, country (ISO3166-1), state (ISO3166-2),
// and an English display name fall back to the bare "name" tag.
func extractFeature(data []byte) (*extracted, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("malformed GeoJSON: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}

	for _, f := range fc.Features {
		if f.Type != "Feature" {
			continue
		}
		if f.Properties.Type != "relation" && f.Properties.Type != "way" {
			continue
		}

		attrs := map[string]interface{}{
			"id":        f.Properties.ID,
			"timestamp": f.Properties.Timestamp,
		}
		if cc, ok := f.Properties.Tags["ISO3166-1"]; ok {
			attrs["country"] = cc
		}
		if st, ok := f.Properties.Tags["ISO3166-2"]; ok {
			attrs["state"] = st
		}
		if name, ok := f.Properties.Tags["name:en"]; ok {
			attrs["name"] = name
		} else if name, ok := f.Properties.Tags["name"]; ok {
			attrs["name"] = name
		}

		return &extracted{Geometry: f.Geometry, Attrs: attrs, URI: f.Properties.URI}, nil
	}

	return nil, fmt.Errorf("no Feature with type relation or way found")
}

// Loader ingests GeoJSON files into the shape and mapping stores.
type Loader struct {
	Shapes   shape.Store
	Mappings mapping.Store
	Service  string // service URN the loaded mappings are registered under
	URLMap   URLMap
}

// Result summarizes one loader run (spec 8 property 7: idempotency).
type Result struct {
	FilesProcessed int
	ShapesInserted int
	ShapesReused   int
	PeersMapped    int
}

// LoadGlob matches glob against the filesystem and ingests every file,
// implementing spec 4.8 in full.
func (l *Loader) LoadGlob(ctx context.Context, glob string) (*Result, error) {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, p := range paths {
		if err := l.loadFile(ctx, p, res); err != nil {
			log.Error("failed to load %q: %v", p, err)
			continue
		}
		res.FilesProcessed++
	}
	return res, nil
}

func (l *Loader) loadFile(ctx context.Context, path string, res *Result) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	ex, err := extractFeature(data)
	if err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}

	g, err := geom.GeoJSONToGeometry(ex.Geometry)
	if err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}

	// Dedup on geometry equality before inserting (spec 3 invariant: "two
	// distinct rows never have equal geometries").
	shapeID, found, err := l.Shapes.Equals(ctx, g)
	if err != nil {
		return fmt.Errorf("%s: dedup check failed: %v", path, err)
	}

	uri := ex.URI
	if uri == "" {
		uri = lost.NewGUID()
	}

	updated := time.Now()
	if ts, ok := ex.Attrs["timestamp"].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			updated = parsed
		}
	}

	if found {
		res.ShapesReused++
	} else {
		shapeID, err = l.Shapes.Insert(ctx, uri, g, updated, ex.Attrs)
		if err != nil {
			return fmt.Errorf("%s: insert failed: %v", path, err)
		}
		res.ShapesInserted++
		log.Info("loaded shape %q (%s) from %s", uri, shapeID, path)
	}

	if l.URLMap == nil {
		return nil
	}
	peerURL, ok := l.URLMap[uri]
	if !ok {
		return nil
	}

	if err := l.Mappings.Replace(ctx, shapeID, l.Service, map[string]interface{}{"uri": peerURL}, true); err != nil {
		return fmt.Errorf("%s: mapping replace failed: %v", path, err)
	}
	res.PeersMapped++
	log.Info("mapped shape %q to peer %q for service %q", uri, peerURL, l.Service)
	return nil
}
