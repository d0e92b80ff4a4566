package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gonum.org/v1/plot/plotter"

	"github.com/user/ghg-dashboard/internal/collector"
	"github.com/user/ghg-dashboard/internal/models"
	"github.com/user/ghg-dashboard/pkg/topojson"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func decodePNG(t *testing.T, b64 string) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	require.NoError(t, err, "chart is not a valid PNG")
}

func square(t *testing.T, lon, lat float64) *geom.MultiPolygon {
	t.Helper()
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{{{
		{lon, lat}, {lon + 5, lat}, {lon + 5, lat + 5}, {lon, lat + 5}, {lon, lat},
	}}})
	require.NoError(t, err)
	return mp
}

func testFeatures(t *testing.T) []topojson.Feature {
	return []topojson.Feature{
		{Name: "Ontario", Geometry: square(t, -90, 45)},
		{Name: "Quebec", Geometry: square(t, -75, 47)},
		{Name: "Nunavut", Geometry: square(t, -95, 65)},
	}
}

func testTotals() (*models.Totals, *models.Totals) {
	byRegion := models.NewTotals()
	for _, e := range []models.Entry{
		{Key: "Alberta", Total: 2.5e8}, {Key: "Ontario", Total: 1.5e8}, {Key: "Quebec", Total: 7.5e7},
		{Key: "Saskatchewan", Total: 6e7}, {Key: "British Columbia", Total: 4e7}, {Key: "Manitoba", Total: 1e7},
	} {
		byRegion.Add(e.Key, e.Total)
	}
	byYear := models.NewTotals()
	byYear.Add("2020", 2.6e8)
	byYear.Add("2019", 2.8e8)
	byYear.Add("", 1)
	return byRegion, byYear
}

func TestFormatSI(t *testing.T) {
	tests := map[float64]string{
		0:       "0.00",
		999:     "999",
		1500:    "1.50k",
		1500000: "1.50M",
		2.5e9:   "2.50B",
		12.5e6:  "12.5M",
		999600:  "1.00M",
		999.6:   "1.00k",
		-999600: "-1.00M",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatSI(in), "FormatSI(%g)", in)
	}
}

func TestGenerateBarChart(t *testing.T) {
	img, err := GenerateBarChart([]models.Entry{{Key: "Alberta", Total: 2.5e8}, {Key: "Ontario", Total: 1.5e8}}, "Top")
	require.NoError(t, err)
	decodePNG(t, img)

	_, err = GenerateBarChart(nil, "Empty")
	assert.Error(t, err)
}

func TestGenerateLineChart(t *testing.T) {
	img, err := GenerateLineChart([]models.YearPoint{{Year: 2019, Total: 3}, {Year: 2020, Total: 4}, {Year: 2021, Total: 2}}, "Years")
	require.NoError(t, err)
	decodePNG(t, img)

	_, err = GenerateLineChart(nil, "Empty")
	assert.Error(t, err)
}

func TestSmooth(t *testing.T) {
	pts := plotter.XYs{{X: 2019, Y: 1}, {X: 2020, Y: 4}, {X: 2021, Y: 5}, {X: 2022, Y: 9}}
	got := smooth(pts)

	require.Len(t, got, (len(pts)-1)*samplesPerSegment+1)
	for i, pt := range pts {
		assert.InDelta(t, pt.Y, got[i*samplesPerSegment].Y, 1e-9, "curve passes through year %g", pt.X)
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Y, got[i-1].Y, "rising data stays monotone at x=%g", got[i].X)
	}

	short := plotter.XYs{{X: 2019, Y: 1}, {X: 2020, Y: 2}}
	assert.Equal(t, short, smooth(short))
}

func TestColorScale(t *testing.T) {
	s := NewGreensScale(10, 20)
	assert.Equal(t, "#f7fcf5", s.Hex(10))
	assert.Equal(t, "#00441b", s.Hex(20))
	assert.Equal(t, "#f7fcf5", s.Hex(-5), "clamped below")
	assert.Equal(t, "#00441b", s.Hex(50), "clamped above")
	assert.Equal(t, "#74c476", s.Hex(15), "midpoint is the middle stop")

	flat := NewGreensScale(3, 3)
	assert.Equal(t, "#f7fcf5", flat.Hex(3))
}

func TestBuildChoropleth(t *testing.T) {
	byRegion, _ := testTotals()
	before := byRegion.Entries()

	m, err := BuildChoropleth(testFeatures(t), byRegion)
	require.NoError(t, err)

	require.Len(t, m.Rows, 3)
	assert.Equal(t, "Ontario", m.Rows[0].Province)
	assert.Equal(t, "150,000,000 tonnes", m.Rows[0].Total)
	assert.Equal(t, "No data", m.Rows[2].Total)
	assert.Equal(t, "#cccccc", m.Rows[2].Color)
	assert.Equal(t, EmissionsLabel, m.Legend.Title)
	assert.Equal(t, "#f7fcf5", m.Legend.MinColor)
	assert.Equal(t, "#00441b", m.Legend.MaxColor)
	assert.Equal(t, []LegendTick{{"10.0M", 0}, {"130M", 50}, {"250M", 100}}, m.Legend.Ticks)
	assert.Equal(t, before, byRegion.Entries(), "totals must not be modified")

	img, err := m.Render("Map")
	require.NoError(t, err)
	decodePNG(t, img)
}

func TestBuildChoropleth_Errors(t *testing.T) {
	byRegion, _ := testTotals()
	_, err := BuildChoropleth(nil, byRegion)
	assert.Error(t, err)

	_, err = BuildChoropleth(testFeatures(t), models.NewTotals())
	assert.Error(t, err)
}

func TestPopulateHTMLChartData(t *testing.T) {
	byRegion, byYear := testTotals()
	future := collector.Resolved(&models.CollectedData{EmissionsByRegion: byRegion, EmissionsByYear: byYear}, nil)
	features := testFeatures(t)
	loader := func(context.Context) ([]topojson.Feature, error) { return features, nil }

	charts, err := PopulateHTMLChartData(context.Background(), future, loader, zap.NewNop())
	require.NoError(t, err)

	decodePNG(t, charts.MapChart)
	decodePNG(t, charts.BarChart)
	decodePNG(t, charts.LineChart)
	assert.Empty(t, charts.MapError)
	require.Len(t, charts.TopRegions, TopRegions)
	assert.Equal(t, "Alberta", charts.TopRegions[0].Key)
	assert.Equal(t, []models.YearPoint{{Year: 2019, Total: 2.8e8}, {Year: 2020, Total: 2.6e8}}, charts.YearSeries)
	assert.Len(t, charts.MapTable, 3)
}

func TestPopulateHTMLChartData_MapFailureIsolated(t *testing.T) {
	byRegion, byYear := testTotals()
	future := collector.Resolved(&models.CollectedData{EmissionsByRegion: byRegion, EmissionsByYear: byYear}, nil)
	loader := func(context.Context) ([]topojson.Feature, error) {
		return nil, topojson.ErrMissingObject
	}

	charts, err := PopulateHTMLChartData(context.Background(), future, loader, nil)
	require.NoError(t, err)

	assert.Equal(t, MapErrorMessage, charts.MapError)
	assert.Empty(t, charts.MapChart)
	assert.NotEmpty(t, charts.BarChart)
	assert.NotEmpty(t, charts.LineChart)
}

func TestPopulateHTMLChartData_IngestionFailure(t *testing.T) {
	future := collector.Resolved(nil, errors.New("fetch csv: connection refused"))
	features := testFeatures(t)
	loader := func(context.Context) ([]topojson.Feature, error) { return features, nil }

	charts, err := PopulateHTMLChartData(context.Background(), future, loader, nil)
	require.NoError(t, err, "a failed ingestion still yields a page")

	assert.Equal(t, MapErrorMessage, charts.MapError)
	assert.Empty(t, charts.MapChart)
	assert.Empty(t, charts.BarChart)
	assert.Empty(t, charts.LineChart)
	assert.Empty(t, charts.TopRegions)
	assert.Empty(t, charts.YearSeries)
}

func TestPopulateHTMLChartData_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := func(context.Context) ([]topojson.Feature, error) { return nil, nil }

	_, err := PopulateHTMLChartData(ctx, collector.NewFuture(), loader, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPopulateHTMLChartData_WaitsForPublish(t *testing.T) {
	byRegion, byYear := testTotals()
	future := collector.NewFuture()
	features := testFeatures(t)
	loader := func(context.Context) ([]topojson.Feature, error) { return features, nil }

	done := make(chan HTMLChartData)
	go func() {
		charts, err := PopulateHTMLChartData(context.Background(), future, loader, nil)
		assert.NoError(t, err)
		done <- charts
	}()

	future.Publish(&models.CollectedData{EmissionsByRegion: byRegion, EmissionsByYear: byYear}, nil)
	charts := <-done
	assert.NotEmpty(t, charts.BarChart)
}
