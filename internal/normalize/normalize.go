// Package normalize rewrites raw GHGRP column names to the short canonical
// vocabulary used by the aggregator and the charts.
package normalize

import (
	"strings"

	"github.com/user/ghg-dashboard/internal/models"
)

// substitutions maps slash-truncated long-form headers to canonical names.
// Matching is exact.
var substitutions = map[string]string{
	"Facility City or District or Municipality": models.HeaderCity,
	"Facility Province or Territory":            models.HeaderProvince,
	"English Facility NAICS Code Description":   models.HeaderFacilityType,
	"Reference Year":                            models.HeaderYear,
	"Total Emissions (tonnes CO2e)":             models.HeaderTotalEmissions,
}

// CanonicalHeader returns the canonical name for one raw header. The part
// before the first '/' is kept and trimmed, then looked up in the
// substitution table. Headers without a match keep their truncated form; a
// header with no '/' and no match is returned unchanged.
func CanonicalHeader(raw string) string {
	clean := raw
	if i := strings.Index(raw, "/"); i != -1 {
		clean = strings.TrimSpace(raw[:i])
	}
	if canonical, ok := substitutions[clean]; ok {
		return canonical
	}
	return clean
}

// BuildHeaderMap maps every header to exactly one canonical name.
func BuildHeaderMap(headers []string) models.HeaderMap {
	hm := make(models.HeaderMap, len(headers))
	for _, h := range headers {
		hm[h] = CanonicalHeader(h)
	}
	return hm
}

// Normalize applies one header map, derived from ds.Headers, to every row.
// Every output row carries the same canonical key set; columns absent from a
// raw row are filled with "". When two raw headers collapse onto the same
// canonical name the name keeps its first position and the later column's
// value wins.
func Normalize(ds *models.Dataset) (*models.Dataset, models.HeaderMap) {
	if ds == nil {
		return &models.Dataset{}, models.HeaderMap{}
	}
	hm := BuildHeaderMap(ds.Headers)

	out := &models.Dataset{
		Headers: make([]string, 0, len(ds.Headers)),
		Rows:    make([]models.Row, 0, len(ds.Rows)),
	}
	seen := make(map[string]struct{}, len(ds.Headers))
	for _, h := range ds.Headers {
		c := hm[h]
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out.Headers = append(out.Headers, c)
	}

	for _, raw := range ds.Rows {
		row := make(models.Row, len(out.Headers))
		for _, c := range out.Headers {
			row[c] = ""
		}
		for _, h := range ds.Headers {
			if v, ok := raw[h]; ok {
				row[hm[h]] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, hm
}

// ToRecords reads the canonical fields out of normalized rows.
func ToRecords(ds *models.Dataset) []models.Record {
	if ds == nil {
		return nil
	}
	records := make([]models.Record, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		records = append(records, models.Record{
			Province:     row[models.HeaderProvince],
			City:         row[models.HeaderCity],
			FacilityType: row[models.HeaderFacilityType],
			Year:         row[models.HeaderYear],
			Emissions:    row[models.HeaderTotalEmissions],
		})
	}
	return records
}

// MissingCanonical lists the canonical headers the aggregator relies on
// that ds does not carry.
func MissingCanonical(ds *models.Dataset) []string {
	have := make(map[string]struct{}, len(ds.Headers))
	for _, h := range ds.Headers {
		have[h] = struct{}{}
	}
	var missing []string
	for _, h := range []string{models.HeaderProvince, models.HeaderYear, models.HeaderTotalEmissions} {
		if _, ok := have[h]; !ok {
			missing = append(missing, h)
		}
	}
	return missing
}
