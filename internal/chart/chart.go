package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/user/ghg-dashboard/internal/aggregate"
	"github.com/user/ghg-dashboard/internal/collector"
	"github.com/user/ghg-dashboard/internal/models"
)

// TopRegions is how many provinces the bar chart shows.
const TopRegions = 5

// EmissionsLabel is the axis and legend title for emission totals.
const EmissionsLabel = "Total Emissions (tonnes)"

// MapErrorMessage replaces the map when its data could not be loaded.
const MapErrorMessage = "Error loading map data. Check the log for details."

var steelBlue = color.RGBA{R: 70, G: 130, B: 180, A: 255}

// HTMLChartData holds everything the HTML report shows for the three charts.
type HTMLChartData struct {
	MapChart   string
	MapError   string
	MapLegend  Legend
	MapTable   []MapRow
	BarChart   string
	LineChart  string
	TopRegions []models.Entry
	YearSeries []models.YearPoint
}

func generatePlotImageBase64(p *plot.Plot, width, height vg.Length) (string, error) {
	writer, err := p.WriterTo(width, height, "png")
	if err != nil {
		return "", fmt.Errorf("failed to create plot writer: %w", err)
	}

	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("failed to write plot to buffer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// pixels converts a size in 96 DPI pixels to a vg length.
func pixels(n float64) vg.Length {
	return vg.Points(n * 72 / 96)
}

// FormatSI renders v with three significant digits and an SI prefix, using
// B rather than G for billions: 1500000 -> "1.50M", 2.5e9 -> "2.50B".
func FormatSI(v float64) string {
	if v == 0 {
		return "0.00"
	}
	scaled, prefix := humanize.ComputeSI(v)
	digits := sigDigits(scaled)
	// Rounding can carry into the next prefix: 999.6k is 1.00M.
	if rounded := roundTo(scaled, digits); math.Abs(rounded) >= 1000 {
		exp := math.Round(math.Log10(v / scaled))
		scaled, prefix = humanize.ComputeSI(rounded * math.Pow(10, exp))
		digits = sigDigits(scaled)
	}
	s := strconv.FormatFloat(scaled, 'f', digits, 64)
	return s + strings.Replace(prefix, "G", "B", 1)
}

// sigDigits is the number of decimals that leaves three significant digits.
func sigDigits(v float64) int {
	digits := 2 - int(math.Floor(math.Log10(math.Abs(v))))
	if digits < 0 {
		digits = 0
	}
	return digits
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// siTicks labels the default ticks with FormatSI.
type siTicks struct{}

func (siTicks) Ticks(lo, hi float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(lo, hi)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = FormatSI(ticks[i].Value)
		}
	}
	return ticks
}

// GenerateBarChart draws the given entries as horizontal bars, first entry on top.
func GenerateBarChart(entries []models.Entry, title string) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no data to plot for bar chart: %s", title)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = EmissionsLabel
	p.X.Tick.Marker = siTicks{}
	p.X.Min = 0

	// Bars are laid out bottom-up, so reverse to keep the largest on top.
	values := make(plotter.Values, len(entries))
	labels := make([]string, len(entries))
	for i, e := range entries {
		j := len(entries) - 1 - i
		values[j] = e.Total
		labels[j] = e.Key
	}

	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return "", fmt.Errorf("failed to create bar chart for %s: %w", title, err)
	}
	bars.Horizontal = true
	bars.Color = steelBlue
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalY(labels...)

	return generatePlotImageBase64(p, pixels(950), pixels(500))
}

// GenerateLineChart draws total emissions per year.
func GenerateLineChart(points []models.YearPoint, title string) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("no yearly data to plot for: %s", title)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Year"
	p.Y.Label.Text = EmissionsLabel
	p.Y.Tick.Marker = siTicks{}
	p.Y.Min = 0
	p.X.Tick.Marker = plot.TickerFunc(yearTicks)

	pts := make(plotter.XYs, len(points))
	for i, pt := range points {
		pts[i] = plotter.XY{X: float64(pt.Year), Y: pt.Total}
	}

	line, err := plotter.NewLine(smooth(pts))
	if err != nil {
		return "", fmt.Errorf("failed to create new line for %s: %w", title, err)
	}
	line.Color = steelBlue
	line.Width = vg.Points(2)
	p.Add(line, plotter.NewGrid())

	return generatePlotImageBase64(p, pixels(960), pixels(500))
}

// samplesPerSegment is how many points smooth draws between two years.
const samplesPerSegment = 16

// smooth samples a monotone cubic through pts so the trend reads as a curve
// without overshooting the data. pts must have strictly increasing X.
func smooth(pts plotter.XYs) plotter.XYs {
	if len(pts) < 3 {
		return pts
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, pt := range pts {
		xs[i], ys[i] = pt.X, pt.Y
	}
	var fb interp.FritschButland
	_ = fb.Fit(xs, ys)

	out := make(plotter.XYs, 0, (len(pts)-1)*samplesPerSegment+1)
	for i := 0; i < len(xs)-1; i++ {
		for k := 0; k < samplesPerSegment; k++ {
			x := xs[i] + (xs[i+1]-xs[i])*float64(k)/samplesPerSegment
			out = append(out, plotter.XY{X: x, Y: fb.Predict(x)})
		}
	}
	return append(out, pts[len(pts)-1])
}

// yearTicks places integer-labelled ticks, at most about ten of them.
func yearTicks(lo, hi float64) []plot.Tick {
	first, last := int(math.Ceil(lo)), int(math.Floor(hi))
	step := (last-first)/10 + 1
	if step < 1 {
		step = 1
	}
	var ticks []plot.Tick
	for y := first; y <= last; y++ {
		label := ""
		if (y-first)%step == 0 {
			label = strconv.Itoa(y)
		}
		ticks = append(ticks, plot.Tick{Value: float64(y), Label: label})
	}
	return ticks
}

// awaitData waits for the published aggregates. A failed ingestion yields nil
// data and no error so the other goroutines keep running; only cancellation
// of ctx is an error.
func awaitData(ctx context.Context, future *collector.Future) (*models.CollectedData, error) {
	data, err := future.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, nil
}

// PopulateHTMLChartData waits for the published aggregates and renders the
// three charts concurrently. Geometry is loaded alongside the wait. A map
// failure is reported in MapError and leaves the other charts untouched; bar
// and line failures are logged and leave their image empty. A failed
// ingestion is logged and reported in MapError with all three images empty.
// Only cancellation of ctx is returned as an error.
func PopulateHTMLChartData(ctx context.Context, future *collector.Future, loadGeometry GeometryLoader, logger *zap.Logger) (HTMLChartData, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		charts              HTMLChartData
		mapChart, mapErr    string
		legend              Legend
		table               []MapRow
		barChart, lineChart string
		top                 []models.Entry
		series              []models.YearPoint
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := awaitData(gctx, future)
		if err != nil || data == nil {
			return err
		}
		top = aggregate.TopN(data.EmissionsByRegion, TopRegions)
		barChart, err = GenerateBarChart(top, fmt.Sprintf("Top %d Provinces by Total Emissions", TopRegions))
		if err != nil {
			logger.Warn("failed to generate bar chart", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		data, err := awaitData(gctx, future)
		if err != nil || data == nil {
			return err
		}
		series, _ = aggregate.YearSeries(data.EmissionsByYear)
		lineChart, err = GenerateLineChart(series, "Total Emissions by Year")
		if err != nil {
			logger.Warn("failed to generate line chart", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		features, geoErr := loadGeometry(gctx)
		data, err := awaitData(gctx, future)
		if err != nil || data == nil {
			return err
		}
		if geoErr != nil {
			logger.Error("error loading or processing the map data", zap.Error(geoErr))
			mapErr = MapErrorMessage
			return nil
		}
		m, err := BuildChoropleth(features, data.EmissionsByRegion)
		if err == nil {
			mapChart, err = m.Render("Total Emissions by Province")
		}
		if err != nil {
			logger.Error("error rendering the map", zap.Error(err))
			mapErr = MapErrorMessage
			return nil
		}
		legend, table = m.Legend, m.Rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return charts, fmt.Errorf("emissions data unavailable: %w", err)
	}

	if _, err := future.Wait(ctx); err != nil {
		logger.Error("error loading the emissions data", zap.Error(err))
		mapErr = MapErrorMessage
	}

	charts = HTMLChartData{
		MapChart:   mapChart,
		MapError:   mapErr,
		MapLegend:  legend,
		MapTable:   table,
		BarChart:   barChart,
		LineChart:  lineChart,
		TopRegions: top,
		YearSeries: series,
	}
	return charts, nil
}
