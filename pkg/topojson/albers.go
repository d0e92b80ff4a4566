package topojson

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84"
)

// Albers is an ellipsoidal Albers equal-area conic projection on the WGS84
// datum. Projected coordinates are in metres.
type Albers struct {
	transform wgs84.Func
}

// NewAlbers builds a projection from a central meridian, two standard
// parallels and a latitude of origin, all in degrees.
func NewAlbers(centralMeridian, parallel1, parallel2, originLat float64) *Albers {
	datum := wgs84.WGS84()
	crs := datum.AlbersEqualAreaConic(centralMeridian, originLat, parallel1, parallel2, 0, 0)
	return &Albers{transform: wgs84.Transform(datum.LonLat(), crs)}
}

// CanadaAlbers centres on 100°W with standard parallels at 50°N and 70°N.
func CanadaAlbers() *Albers {
	return NewAlbers(-100, 50, 70, 40)
}

// Project maps lon/lat degrees to easting and northing.
func (a *Albers) Project(lon, lat float64) (x, y float64) {
	x, y, _ = a.transform(lon, lat, 0)
	return x, y
}

// ProjectMultiPolygon returns a projected copy of mp.
func (a *Albers) ProjectMultiPolygon(mp *geom.MultiPolygon) (*geom.MultiPolygon, error) {
	src := mp.Coords()
	dst := make([][][]geom.Coord, len(src))
	for i, poly := range src {
		dst[i] = make([][]geom.Coord, len(poly))
		for j, ring := range poly {
			dst[i][j] = make([]geom.Coord, len(ring))
			for k, c := range ring {
				x, y := a.Project(c.X(), c.Y())
				dst[i][j][k] = geom.Coord{x, y}
			}
		}
	}
	out, err := geom.NewMultiPolygon(geom.XY).SetCoords(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to build projected geometry: %w", err)
	}
	return out, nil
}
