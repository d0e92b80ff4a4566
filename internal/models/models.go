package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Canonical header names produced by the header normalizer.
const (
	HeaderCity           = "City"
	HeaderProvince       = "Province"
	HeaderFacilityType   = "Facility Type"
	HeaderYear           = "Year"
	HeaderTotalEmissions = "TotalEmissions"
)

// Row maps a column name to its raw string value.
type Row map[string]string

// Dataset is an ordered header list plus the rows keyed by those headers.
// Headers carries the first row's key order, which the serializer reuses.
type Dataset struct {
	Headers []string
	Rows    []Row
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HeaderMap maps an original header name to its canonical name.
type HeaderMap map[string]string

// Record is the typed form of one normalized row.
type Record struct {
	Province     string `csv:"Province" json:"province"`
	City         string `csv:"City" json:"city"`
	FacilityType string `csv:"Facility Type" json:"facility_type"`
	Year         string `csv:"Year" json:"year"`
	Emissions    string `csv:"TotalEmissions" json:"total_emissions"`
}

// Entry is one key/total pair taken from a Totals mapping.
type Entry struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

// YearPoint is one point of the yearly emissions series.
type YearPoint struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

// Totals is a running sum per key that remembers first-seen key order.
// Fields are exported so the collector cache can gob-encode it; callers
// outside the aggregator should treat it as read-only.
type Totals struct {
	Keys []string
	Sums map[string]float64
}

// NewTotals returns an empty Totals.
func NewTotals() *Totals {
	return &Totals{Sums: make(map[string]float64)}
}

// Add accumulates v under key, recording key on first sight.
func (t *Totals) Add(key string, v float64) {
	if _, ok := t.Sums[key]; !ok {
		t.Keys = append(t.Keys, key)
	}
	t.Sums[key] += v
}

// Get returns the total for key and whether it exists.
func (t *Totals) Get(key string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.Sums[key]
	return v, ok
}

// Len returns the number of distinct keys.
func (t *Totals) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Keys)
}

// Entries returns a copy of the totals in first-seen order.
func (t *Totals) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, 0, len(t.Keys))
	for _, k := range t.Keys {
		out = append(out, Entry{Key: k, Total: t.Sums[k]})
	}
	return out
}

// Values returns the totals in first-seen order.
func (t *Totals) Values() []float64 {
	if t == nil {
		return nil
	}
	out := make([]float64, 0, len(t.Keys))
	for _, k := range t.Keys {
		out = append(out, t.Sums[k])
	}
	return out
}

// MarshalJSON writes the totals as a JSON object with keys in first-seen order.
func (t *Totals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if t != nil {
		for i, k := range t.Keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(t.Sums[k])
			if err != nil {
				return nil, fmt.Errorf("total for %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Range summarizes the spread of a Totals mapping.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Sum float64 `json:"sum"`
}

// RowMismatch records a data row whose field count differed from the header.
type RowMismatch struct {
	Line     int `json:"line"`
	Expected int `json:"expected"`
	Got      int `json:"got"`
}

// Warnings collects data-quality issues that are tolerated rather than fatal.
type Warnings struct {
	ColumnMismatches  []RowMismatch `json:"column_mismatches,omitempty"`
	UnparsedEmissions int           `json:"unparsed_emissions"`
	SkippedYears      []string      `json:"skipped_years,omitempty"`
}

// Empty reports whether no warning was recorded.
func (w *Warnings) Empty() bool {
	return w == nil || (len(w.ColumnMismatches) == 0 && w.UnparsedEmissions == 0 && len(w.SkippedYears) == 0)
}

// Metadata holds information about the collection run and its source.
type Metadata struct {
	Version       string    `json:"version"`
	DateCollected time.Time `json:"date_collected"`
	Source        string    `json:"source"`
	SourceSHA256  string    `json:"source_sha256"`
	Parser        string    `json:"parser"`
	Encoding      string    `json:"encoding"`
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	GoVersion     string    `json:"go_version"`
}

// CollectedData is everything the ingestion pipeline publishes.
type CollectedData struct {
	Metadata          Metadata  `json:"metadata"`
	HeaderMap         HeaderMap `json:"header_map"`
	Dataset           *Dataset  `json:"-"`
	Records           []Record  `json:"-"`
	RowCount          int       `json:"row_count"`
	EmissionsByRegion *Totals   `json:"emissions_by_province"`
	EmissionsByYear   *Totals   `json:"emissions_by_year"`
	Warnings          Warnings  `json:"warnings"`
}
