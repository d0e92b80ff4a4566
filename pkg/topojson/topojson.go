// Package topojson decodes the province boundary file used by the
// choropleth map. Only the pieces the map needs are supported: quantized or
// absolute arcs, Polygon and MultiPolygon geometries (optionally nested in a
// GeometryCollection) and feature properties.
package topojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/twpayne/go-geom"
)

// DefaultObject is the object collection holding the province boundaries.
const DefaultObject = "provinces"

// NameProperty is the feature property that carries the province name.
const NameProperty = "NAME"

// ErrMissingObject is returned when the requested named object is absent.
var ErrMissingObject = errors.New("invalid TopoJSON structure or object name mismatch")

// Topology is a decoded TopoJSON document.
type Topology struct {
	Type      string               `json:"type"`
	Transform *Transform           `json:"transform,omitempty"`
	Objects   map[string]*Geometry `json:"objects"`
	Arcs      [][][]float64        `json:"arcs"`
}

// Transform maps quantized positions back to coordinates.
type Transform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

// Geometry is one TopoJSON geometry object.
type Geometry struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties,omitempty"`
	Arcs       json.RawMessage `json:"arcs,omitempty"`
	Geometries []*Geometry     `json:"geometries,omitempty"`
}

// Feature is a named area with its boundary in lon/lat degrees.
type Feature struct {
	Name       string
	Properties map[string]any
	Geometry   *geom.MultiPolygon
}

// Decode reads a TopoJSON document.
func Decode(r io.Reader) (*Topology, error) {
	var t Topology
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode TopoJSON: %w", err)
	}
	return &t, nil
}

// HasObject reports whether objects.<name> is present.
func (t *Topology) HasObject(name string) bool {
	if t == nil || t.Objects == nil {
		return false
	}
	_, ok := t.Objects[name]
	return ok
}

// Features converts objects.<name> into features. A GeometryCollection
// yields one feature per member; any other geometry yields a single feature.
// Members that are not polygons are skipped.
func (t *Topology) Features(name string) ([]Feature, error) {
	if !t.HasObject(name) {
		return nil, fmt.Errorf("%w: expected 'objects.%s'", ErrMissingObject, name)
	}
	arcs := t.decodeArcs()

	obj := t.Objects[name]
	members := []*Geometry{obj}
	if obj.Type == "GeometryCollection" {
		members = obj.Geometries
	}

	features := make([]Feature, 0, len(members))
	for i, g := range members {
		if g == nil {
			continue
		}
		polys, err := g.polygons(arcs)
		if err != nil {
			return nil, fmt.Errorf("geometry %d of %s: %w", i, name, err)
		}
		if polys == nil {
			continue
		}
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
		if err != nil {
			return nil, fmt.Errorf("geometry %d of %s: %w", i, name, err)
		}
		features = append(features, Feature{
			Name:       featureName(g.Properties),
			Properties: g.Properties,
			Geometry:   mp,
		})
	}
	return features, nil
}

func featureName(props map[string]any) string {
	if s, ok := props[NameProperty].(string); ok && s != "" {
		return s
	}
	return "Unknown"
}

// decodeArcs returns every arc as absolute coordinates.
func (t *Topology) decodeArcs() [][]geom.Coord {
	out := make([][]geom.Coord, len(t.Arcs))
	for i, arc := range t.Arcs {
		coords := make([]geom.Coord, 0, len(arc))
		var x, y float64
		for _, p := range arc {
			if len(p) < 2 {
				continue
			}
			if t.Transform == nil {
				coords = append(coords, geom.Coord{p[0], p[1]})
				continue
			}
			x += p[0]
			y += p[1]
			coords = append(coords, geom.Coord{
				x*t.Transform.Scale[0] + t.Transform.Translate[0],
				y*t.Transform.Scale[1] + t.Transform.Translate[1],
			})
		}
		out[i] = coords
	}
	return out
}

// polygons returns the geometry as multipolygon coordinates, or nil for a
// non-areal geometry.
func (g *Geometry) polygons(arcs [][]geom.Coord) ([][][]geom.Coord, error) {
	switch g.Type {
	case "Polygon":
		var rings [][]int
		if err := json.Unmarshal(g.Arcs, &rings); err != nil {
			return nil, fmt.Errorf("polygon arcs: %w", err)
		}
		poly, err := stitchPolygon(rings, arcs)
		if err != nil {
			return nil, err
		}
		return [][][]geom.Coord{poly}, nil
	case "MultiPolygon":
		var polys [][][]int
		if err := json.Unmarshal(g.Arcs, &polys); err != nil {
			return nil, fmt.Errorf("multipolygon arcs: %w", err)
		}
		out := make([][][]geom.Coord, 0, len(polys))
		for _, rings := range polys {
			poly, err := stitchPolygon(rings, arcs)
			if err != nil {
				return nil, err
			}
			out = append(out, poly)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func stitchPolygon(rings [][]int, arcs [][]geom.Coord) ([][]geom.Coord, error) {
	poly := make([][]geom.Coord, 0, len(rings))
	for _, ring := range rings {
		coords, err := stitchRing(ring, arcs)
		if err != nil {
			return nil, err
		}
		poly = append(poly, coords)
	}
	return poly, nil
}

// stitchRing joins arcs into one ring. A negative index ~i walks arc i in
// reverse. The first point of every arc after the first repeats the last
// point of the previous one and is dropped.
func stitchRing(indices []int, arcs [][]geom.Coord) ([]geom.Coord, error) {
	var ring []geom.Coord
	for _, idx := range indices {
		reversed := idx < 0
		if reversed {
			idx = ^idx
		}
		if idx >= len(arcs) {
			return nil, fmt.Errorf("arc index %d out of range (%d arcs)", idx, len(arcs))
		}
		arc := arcs[idx]
		pts := make([]geom.Coord, len(arc))
		for i := range arc {
			if reversed {
				pts[i] = arc[len(arc)-1-i]
			} else {
				pts[i] = arc[i]
			}
		}
		if len(ring) > 0 && len(pts) > 0 {
			pts = pts[1:]
		}
		ring = append(ring, pts...)
	}
	return ring, nil
}
