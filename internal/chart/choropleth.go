package chart

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/user/ghg-dashboard/internal/aggregate"
	"github.com/user/ghg-dashboard/internal/collector"
	"github.com/user/ghg-dashboard/internal/models"
	"github.com/user/ghg-dashboard/pkg/topojson"
)

// NoDataColor fills provinces without a total.
var NoDataColor = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// greens is the ColorBrewer sequential Greens ramp, light to dark.
var greens = []string{
	"#f7fcf5", "#e5f5e0", "#c7e9c0", "#a1d99b", "#74c476",
	"#41ab5d", "#238b45", "#006d2c", "#00441b",
}

// GeometryLoader supplies the map features.
type GeometryLoader func(ctx context.Context) ([]topojson.Feature, error)

// LoadGeometry fetches a TopoJSON file from a path or URL and extracts the
// named object. A missing object is an error.
func LoadGeometry(client *http.Client, src, object string) GeometryLoader {
	return func(ctx context.Context) ([]topojson.Feature, error) {
		raw, err := collector.Fetch(ctx, client, src)
		if err != nil {
			return nil, err
		}
		topo, err := topojson.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		features, err := topo.Features(object)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		return features, nil
	}
}

// ColorScale maps a value in [Min, Max] onto the Greens ramp.
type ColorScale struct {
	Min, Max float64
	stops    []colorful.Color
}

// NewGreensScale returns a sequential scale over [lo, hi].
func NewGreensScale(lo, hi float64) *ColorScale {
	stops := make([]colorful.Color, len(greens))
	for i, h := range greens {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(fmt.Sprintf("invalid ramp colour %s: %v", h, err))
		}
		stops[i] = c
	}
	return &ColorScale{Min: lo, Max: hi, stops: stops}
}

// At returns the colour for v. Values outside the domain are clamped; a
// zero-width domain maps everything to the lightest colour.
func (s *ColorScale) At(v float64) colorful.Color {
	t := 0.0
	if s.Max != s.Min {
		t = (v - s.Min) / (s.Max - s.Min)
	}
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(s.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(s.stops)-1 {
		return s.stops[len(s.stops)-1]
	}
	frac := pos - float64(i)
	if frac == 0 {
		return s.stops[i]
	}
	return s.stops[i].BlendLab(s.stops[i+1], frac).Clamped()
}

// Hex returns the colour for v as #rrggbb.
func (s *ColorScale) Hex(v float64) string {
	return s.At(v).Hex()
}

// LegendTick is one labelled position on the map legend, Offset in percent.
type LegendTick struct {
	Label  string
	Offset float64
}

// Legend describes the gradient legend drawn beside the map.
type Legend struct {
	Title    string
	MinColor string
	MaxColor string
	Ticks    []LegendTick
}

// MapRow is the per-province detail shown with the map.
type MapRow struct {
	Province string
	Total    string
	Color    string
}

// Choropleth is a map ready to render.
type Choropleth struct {
	Legend Legend
	Rows   []MapRow
	Scale  *ColorScale

	features []topojson.Feature
	fills    []color.Color
}

// BuildChoropleth projects the features and assigns each its fill from
// the province totals. Features without a total, or with a zero total, are
// drawn gray. totals is only read.
func BuildChoropleth(features []topojson.Feature, totals *models.Totals) (*Choropleth, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("no map features to draw")
	}
	rng, err := aggregate.Summarize(totals)
	if err != nil {
		return nil, fmt.Errorf("color scale: %w", err)
	}
	scale := NewGreensScale(rng.Min, rng.Max)
	proj := topojson.CanadaAlbers()

	m := &Choropleth{Scale: scale}
	for _, f := range features {
		projected, err := proj.ProjectMultiPolygon(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
		m.features = append(m.features, topojson.Feature{Name: f.Name, Properties: f.Properties, Geometry: projected})

		row := MapRow{Province: f.Name, Total: "No data", Color: "#cccccc"}
		var fill color.Color = NoDataColor
		if v, ok := totals.Get(f.Name); ok {
			row.Total = humanize.Commaf(math.Round(v)) + " tonnes"
			if v != 0 {
				fill = scale.At(v)
				row.Color = scale.Hex(v)
			}
		}
		m.fills = append(m.fills, fill)
		m.Rows = append(m.Rows, row)
	}

	m.Legend = Legend{
		Title:    EmissionsLabel,
		MinColor: scale.Hex(rng.Min),
		MaxColor: scale.Hex(rng.Max),
		Ticks: []LegendTick{
			{Label: FormatSI(rng.Min), Offset: 0},
			{Label: FormatSI((rng.Max-rng.Min)/2 + rng.Min), Offset: 50},
			{Label: FormatSI(rng.Max), Offset: 100},
		},
	}
	return m, nil
}

// Render draws the projected features as a PNG and returns it base64 encoded.
// The image height follows the aspect ratio of the projected bounds.
func (m *Choropleth) Render(title string) (string, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	bounds := geom.NewBounds(geom.XY)
	for i, f := range m.features {
		bounds.Extend(f.Geometry)
		for _, poly := range f.Geometry.Coords() {
			rings := make([]plotter.XYer, 0, len(poly))
			for _, ring := range poly {
				xys := make(plotter.XYs, len(ring))
				for k, c := range ring {
					xys[k] = plotter.XY{X: c.X(), Y: c.Y()}
				}
				rings = append(rings, xys)
			}
			if len(rings) == 0 {
				continue
			}
			shape, err := plotter.NewPolygon(rings...)
			if err != nil {
				return "", fmt.Errorf("failed to create polygon for %s: %w", f.Name, err)
			}
			shape.Color = m.fills[i]
			shape.LineStyle.Color = color.Black
			shape.LineStyle.Width = vg.Points(0.5)
			p.Add(shape)
		}
	}

	if math.IsInf(bounds.Min(0), 0) || math.IsInf(bounds.Min(1), 0) {
		return "", fmt.Errorf("map features have no coordinates")
	}
	p.X.Min, p.X.Max = bounds.Min(0), bounds.Max(0)
	p.Y.Min, p.Y.Max = bounds.Min(1), bounds.Max(1)

	width := pixels(960)
	height := pixels(500)
	if dx, dy := bounds.Max(0)-bounds.Min(0), bounds.Max(1)-bounds.Min(1); dx > 0 && dy > 0 {
		height = vg.Length(math.Max(float64(pixels(300)), math.Min(float64(pixels(960)), float64(width)*dy/dx)))
	}
	return generatePlotImageBase64(p, width, height)
}
