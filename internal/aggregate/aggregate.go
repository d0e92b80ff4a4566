// Package aggregate reduces emission records into per-province and per-year
// totals.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/user/ghg-dashboard/internal/models"
)

// ErrNoData is returned when a summary is requested over an empty mapping.
var ErrNoData = errors.New("no totals to summarize")

// numericPrefix matches the longest leading decimal literal of a value.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseEmission reads the leading decimal number of s, ignoring leading and
// trailing whitespace. ok is false when s has no numeric prefix or the value
// is not finite.
func parseEmission(s string) (v float64, ok bool) {
	m := numericPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseEmissionOrZero is the emissions parse policy: a value with no
// leading number, such as "" or "N/A", contributes 0.
func ParseEmissionOrZero(s string) float64 {
	v, _ := parseEmission(s)
	return v
}

// ByRegion sums emissions per province. Keys keep first-seen order.
func ByRegion(records []models.Record) *models.Totals {
	return sumBy(records, func(r models.Record) string { return r.Province })
}

// ByYear sums emissions per reference year, keyed by the raw year string.
func ByYear(records []models.Record) *models.Totals {
	return sumBy(records, func(r models.Record) string { return r.Year })
}

func sumBy(records []models.Record, key func(models.Record) string) *models.Totals {
	totals := models.NewTotals()
	for _, r := range records {
		totals.Add(key(r), ParseEmissionOrZero(r.Emissions))
	}
	return totals
}

// CountUnparsed reports how many records fell back to zero emissions.
func CountUnparsed(records []models.Record) int {
	n := 0
	for _, r := range records {
		if _, ok := parseEmission(r.Emissions); !ok {
			n++
		}
	}
	return n
}

// TopN returns the n largest totals, descending. Equal totals keep their
// first-seen order. The input is not modified.
func TopN(t *models.Totals, n int) []models.Entry {
	entries := t.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total > entries[j].Total
	})
	if n < 0 {
		n = 0
	}
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// YearSeries converts year totals into points sorted by year. Keys that are
// not integers are returned in skipped and left out of the series.
func YearSeries(t *models.Totals) (points []models.YearPoint, skipped []string) {
	for _, e := range t.Entries() {
		year, err := strconv.Atoi(strings.TrimSpace(e.Key))
		if err != nil {
			skipped = append(skipped, e.Key)
			continue
		}
		points = append(points, models.YearPoint{Year: year, Total: e.Total})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Year < points[j].Year })
	return points, skipped
}

// Summarize returns the minimum, maximum and sum of the totals.
func Summarize(t *models.Totals) (models.Range, error) {
	values := t.Values()
	if len(values) == 0 {
		return models.Range{}, ErrNoData
	}
	lo, err := stats.Min(values)
	if err != nil {
		return models.Range{}, fmt.Errorf("min: %w", err)
	}
	hi, err := stats.Max(values)
	if err != nil {
		return models.Range{}, fmt.Errorf("max: %w", err)
	}
	sum, err := stats.Sum(values)
	if err != nil {
		return models.Range{}, fmt.Errorf("sum: %w", err)
	}
	return models.Range{Min: lo, Max: hi, Sum: sum}, nil
}
