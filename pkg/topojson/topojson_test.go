package topojson

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const testTopology = `{
  "type": "Topology",
  "transform": {"scale": [2, 1], "translate": [-100, 50]},
  "objects": {
    "provinces": {
      "type": "GeometryCollection",
      "geometries": [
        {"type": "Polygon", "arcs": [[0]], "properties": {"NAME": "Ontario"}},
        {"type": "MultiPolygon", "arcs": [[[-1]], [[1]]], "properties": {"NAME": "Quebec"}},
        {"type": "Polygon", "arcs": [[1]], "properties": {}},
        {"type": "Point", "coordinates": [0, 0]}
      ]
    }
  },
  "arcs": [
    [[0, 0], [1, 0], [0, 1], [-1, 0], [0, -1]],
    [[5, 5], [1, 0], [0, 1], [-1, -1]]
  ]
}`

func TestFeatures(t *testing.T) {
	topo, err := Decode(strings.NewReader(testTopology))
	require.NoError(t, err)
	require.True(t, topo.HasObject(DefaultObject))

	features, err := topo.Features(DefaultObject)
	require.NoError(t, err)
	require.Len(t, features, 3)

	assert.Equal(t, "Ontario", features[0].Name)
	assert.Equal(t, [][][]geom.Coord{{{
		{-100, 50}, {-98, 50}, {-98, 51}, {-100, 51}, {-100, 50},
	}}}, features[0].Geometry.Coords())

	assert.Equal(t, "Quebec", features[1].Name)
	require.Equal(t, 2, features[1].Geometry.NumPolygons())
	assert.Equal(t, [][]geom.Coord{{
		{-100, 50}, {-100, 51}, {-98, 51}, {-98, 50}, {-100, 50},
	}}, features[1].Geometry.Coords()[0], "negative arc index walks the arc backwards")
	assert.Equal(t, [][]geom.Coord{{
		{-90, 55}, {-88, 55}, {-88, 56}, {-90, 55},
	}}, features[1].Geometry.Coords()[1])

	assert.Equal(t, "Unknown", features[2].Name)
}

func TestFeatures_MissingObject(t *testing.T) {
	topo, err := Decode(strings.NewReader(`{"type":"Topology","objects":{"canada":{}},"arcs":[]}`))
	require.NoError(t, err)
	assert.False(t, topo.HasObject(DefaultObject))

	_, err = topo.Features(DefaultObject)
	require.ErrorIs(t, err, ErrMissingObject)
	assert.Contains(t, err.Error(), "objects.provinces")
}

func TestFeatures_ArcOutOfRange(t *testing.T) {
	topo, err := Decode(strings.NewReader(`{"type":"Topology","objects":{"provinces":{"type":"Polygon","arcs":[[3]]}},"arcs":[]}`))
	require.NoError(t, err)

	_, err = topo.Features(DefaultObject)
	assert.Error(t, err)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestAlbers(t *testing.T) {
	a := CanadaAlbers()

	x, _ := a.Project(-100, 60)
	assert.InDelta(t, 0, x, 1e-3, "central meridian projects to x=0")

	xw, yw := a.Project(-120, 60)
	xe, ye := a.Project(-80, 60)
	assert.Less(t, xw, 0.0)
	assert.Greater(t, xe, 0.0)
	assert.InDelta(t, -xw, xe, 1e-3, "symmetric about the central meridian")
	assert.InDelta(t, yw, ye, 1e-3)

	_, yOrigin := a.Project(-100, 40)
	assert.InDelta(t, 0, yOrigin, 1e-3, "latitude of origin projects to y=0")

	_, ySouth := a.Project(-100, 45)
	_, yNorth := a.Project(-100, 70)
	assert.Less(t, ySouth, yNorth)
	assert.False(t, math.IsNaN(ySouth))
	assert.InDelta(t, 3.347e6, yNorth, 1e4, "northing in metres")

	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{{{{-100, 50}, {-90, 50}, {-90, 60}, {-100, 50}}}})
	require.NoError(t, err)
	projected, err := a.ProjectMultiPolygon(mp)
	require.NoError(t, err)
	assert.Len(t, projected.FlatCoords(), len(mp.FlatCoords()))
}
