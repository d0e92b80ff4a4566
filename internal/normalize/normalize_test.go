package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ghg-dashboard/internal/csvtable"
	"github.com/user/ghg-dashboard/internal/models"
)

func TestCanonicalHeader(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Facility Province or Territory / Province ou territoire de l'installation", "Province"},
		{"Facility City or District or Municipality / Ville ou district ou municipalité de l'installation", "City"},
		{"English Facility NAICS Code Description / Description du code SCIAN de l'installation en anglais", "Facility Type"},
		{"Reference Year / Année de référence", "Year"},
		{"Total Emissions (tonnes CO2e) / Émissions totales (tonnes éq. CO2)", "TotalEmissions"},
		{"Some Other Field / Detail", "Some Other Field"},
		{"  Padded  /x", "Padded"},
		{"GHGRP ID No.", "GHGRP ID No."},
		{"Reference Year", "Year"},
		{"  Reference Year  ", "  Reference Year  "},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalHeader(tt.raw))
		})
	}
}

func TestNormalize_SameRowCountAndKeySet(t *testing.T) {
	raw, _ := csvtable.Parse(
		"Facility Province or Territory / P,Reference Year / A,Total Emissions (tonnes CO2e) / E,Notes / N\n" +
			"Ontario,2019,10,x\n" +
			"Quebec,2020\n" +
			"Alberta,2020,7,y\n")

	got, hm := Normalize(raw)

	require.Equal(t, raw.Len(), got.Len())
	assert.Equal(t, []string{"Province", "Year", "TotalEmissions", "Notes"}, got.Headers)
	assert.Len(t, hm, 4)
	for i, row := range got.Rows {
		assert.Len(t, row, len(got.Headers), "row %d", i)
		for _, h := range got.Headers {
			_, ok := row[h]
			assert.True(t, ok, "row %d missing %q", i, h)
		}
	}
	assert.Equal(t, models.Row{"Province": "Quebec", "Year": "2020", "TotalEmissions": "", "Notes": ""}, got.Rows[1])
}

func TestNormalize_CollapsedHeadersLaterValueWins(t *testing.T) {
	raw := &models.Dataset{
		Headers: []string{"Reference Year / A", "Reference Year / B"},
		Rows:    []models.Row{{"Reference Year / A": "2019", "Reference Year / B": "2020"}},
	}
	got, _ := Normalize(raw)

	assert.Equal(t, []string{"Year"}, got.Headers)
	assert.Equal(t, "2020", got.Rows[0]["Year"])
}

func TestNormalize_Nil(t *testing.T) {
	got, hm := Normalize(nil)
	assert.Zero(t, got.Len())
	assert.Empty(t, hm)
}

func TestToRecords(t *testing.T) {
	ds := &models.Dataset{
		Headers: []string{"Province", "City", "Facility Type", "Year", "TotalEmissions"},
		Rows: []models.Row{
			{"Province": "Ontario", "City": "Sarnia", "Facility Type": "Refinery", "Year": "2019", "TotalEmissions": "10"},
		},
	}
	assert.Equal(t, []models.Record{
		{Province: "Ontario", City: "Sarnia", FacilityType: "Refinery", Year: "2019", Emissions: "10"},
	}, ToRecords(ds))
}

func TestMissingCanonical(t *testing.T) {
	assert.Equal(t, []string{"Year", "TotalEmissions"},
		MissingCanonical(&models.Dataset{Headers: []string{"Province", "City"}}))
	assert.Empty(t, MissingCanonical(&models.Dataset{Headers: []string{"Province", "Year", "TotalEmissions"}}))
}
