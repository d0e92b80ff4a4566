package report

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/user/ghg-dashboard/internal/aggregate"
	"github.com/user/ghg-dashboard/internal/chart"
	"github.com/user/ghg-dashboard/internal/collector"
	"github.com/user/ghg-dashboard/internal/models"
	"github.com/user/ghg-dashboard/pkg/topojson"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

const templateName = "report.html.tmpl"

// Formats lists the report formats the CLI accepts.
var Formats = []string{"html", "json", "xlsx"}

// ReportAdapter defines the interface for generating different report formats.
// PrepareData blocks until the collector publishes its result.
type ReportAdapter interface {
	PrepareData(ctx context.Context, future *collector.Future) error
	Write(outputFilePath string) error
}

// NewAdapter returns the adapter for format. Geometry and logger are only
// used by the HTML report.
func NewAdapter(format string, geometry chart.GeometryLoader, logger *zap.Logger) (ReportAdapter, error) {
	switch format {
	case "html":
		return &HTMLReportAdapter{Geometry: geometry, Logger: logger}, nil
	case "json":
		return &JSONReportAdapter{}, nil
	case "xlsx":
		return &XLSXReportAdapter{}, nil
	default:
		return nil, fmt.Errorf("invalid report format '%s'. Must be one of %s", format, strings.Join(Formats, ", "))
	}
}

func ensureDir(outputFilePath string) error {
	if err := os.MkdirAll(filepath.Dir(outputFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for report file %s: %w", outputFilePath, err)
	}
	return nil
}

// --- JSON Report Adapter ---

// JSONReportAdapter writes the collected aggregates and metadata as JSON.
type JSONReportAdapter struct {
	reportData string
}

type jsonReport struct {
	*models.CollectedData
	TopProvinces []models.Entry     `json:"top_provinces"`
	YearSeries   []models.YearPoint `json:"year_series"`
}

// PrepareData marshals the published data into an indented JSON string.
func (jra *JSONReportAdapter) PrepareData(ctx context.Context, future *collector.Future) error {
	data, err := future.Wait(ctx)
	if err != nil {
		return err
	}
	series, _ := aggregate.YearSeries(data.EmissionsByYear)
	jsonData, err := json.MarshalIndent(jsonReport{
		CollectedData: data,
		TopProvinces:  aggregate.TopN(data.EmissionsByRegion, chart.TopRegions),
		YearSeries:    series,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data to JSON: %w", err)
	}
	jra.reportData = string(jsonData)
	return nil
}

// Write saves the JSON report data to the specified output file.
func (jra *JSONReportAdapter) Write(outputFilePath string) error {
	if err := ensureDir(outputFilePath); err != nil {
		return err
	}
	return os.WriteFile(outputFilePath, []byte(jra.reportData), 0644)
}

// --- HTML Report Adapter ---

// HTMLReportAdapter renders the dashboard page: map, top provinces and
// yearly trend.
type HTMLReportAdapter struct {
	Geometry chart.GeometryLoader
	Logger   *zap.Logger

	reportBuf bytes.Buffer
}

var funcMap = template.FuncMap{
	"Comma":  func(n int) string { return humanize.Comma(int64(n)) },
	"Commaf": func(v float64) string { return humanize.Commaf(math.Round(v)) },
	"SI":     chart.FormatSI,
	"Join":   strings.Join,
	"FormatDateTime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05 MST")
	},
}

func parseTemplate() (*template.Template, error) {
	tmpl, err := template.New(templateName).Funcs(funcMap).ParseFS(templateFS, "templates/"+templateName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template %s: %w", templateName, err)
	}
	return tmpl, nil
}

// PrepareData renders the charts and executes the HTML template. The page is
// produced even when ingestion failed.
func (hra *HTMLReportAdapter) PrepareData(ctx context.Context, future *collector.Future) error {
	geometry := hra.Geometry
	if geometry == nil {
		geometry = func(context.Context) ([]topojson.Feature, error) {
			return nil, fmt.Errorf("no map geometry configured")
		}
	}

	charts, err := chart.PopulateHTMLChartData(ctx, future, geometry, hra.Logger)
	if err != nil {
		return err
	}
	// A failed ingestion is already reported in charts.MapError; the page
	// is still rendered without the data sections.
	data, _ := future.Wait(ctx)

	tmpl, err := parseTemplate()
	if err != nil {
		return err
	}

	templateData := struct {
		Data   *models.CollectedData
		Charts chart.HTMLChartData
	}{
		Data:   data,
		Charts: charts,
	}

	hra.reportBuf.Reset()
	if err := tmpl.Execute(&hra.reportBuf, templateData); err != nil {
		return fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return nil
}

// Write saves the HTML report data to the specified output file.
func (hra *HTMLReportAdapter) Write(outputFilePath string) error {
	if err := ensureDir(outputFilePath); err != nil {
		return err
	}
	return os.WriteFile(outputFilePath, hra.reportBuf.Bytes(), 0644)
}

// --- XLSX Report Adapter ---

// Sheet names of the XLSX workbook.
const (
	SheetByProvince = "By Province"
	SheetByYear     = "By Year"
	SheetTop        = "Top 5"
)

// XLSXReportAdapter writes the aggregates to a workbook, one sheet per view.
type XLSXReportAdapter struct {
	file *excelize.File
}

// PrepareData builds the workbook in memory.
func (xra *XLSXReportAdapter) PrepareData(ctx context.Context, future *collector.Future) error {
	data, err := future.Wait(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetByProvince); err != nil {
		return fmt.Errorf("failed to name sheet %s: %w", SheetByProvince, err)
	}

	provinces := data.EmissionsByRegion.Entries()
	if err := writeSheet(f, SheetByProvince, []string{"Province", chart.EmissionsLabel}, len(provinces), func(i int) []any {
		return []any{provinces[i].Key, provinces[i].Total}
	}); err != nil {
		return err
	}

	series, _ := aggregate.YearSeries(data.EmissionsByYear)
	if err := writeSheet(f, SheetByYear, []string{"Year", chart.EmissionsLabel}, len(series), func(i int) []any {
		return []any{series[i].Year, series[i].Total}
	}); err != nil {
		return err
	}

	top := aggregate.TopN(data.EmissionsByRegion, chart.TopRegions)
	if err := writeSheet(f, SheetTop, []string{"Rank", "Province", chart.EmissionsLabel}, len(top), func(i int) []any {
		return []any{i + 1, top[i].Key, top[i].Total}
	}); err != nil {
		return err
	}

	if xra.file != nil {
		_ = xra.file.Close()
	}
	xra.file = f
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, n int, row func(int) []any) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetColWidth(sheet, "A", last, 24); err != nil {
		return fmt.Errorf("failed to size columns of %s: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}

// Write saves the workbook to the specified output file and closes it. A
// second Write needs another PrepareData.
func (xra *XLSXReportAdapter) Write(outputFilePath string) error {
	if xra.file == nil {
		return fmt.Errorf("no workbook prepared")
	}
	if err := ensureDir(outputFilePath); err != nil {
		return err
	}
	f := xra.file
	xra.file = nil
	if err := f.SaveAs(outputFilePath); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to save workbook %s: %w", outputFilePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close workbook %s: %w", outputFilePath, err)
	}
	return nil
}
