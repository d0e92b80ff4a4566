// Package csvtable reads and writes the comma-delimited emissions table.
//
// Parse is the naive reader: lines are split on '\n' and fields on ','.
// It has no quoting support, so a value that itself contains a comma or a
// line break shifts every following column of that row. Rows whose field
// count differs from the header are kept as-is and reported through
// models.Warnings. ParseRFC4180 is the conforming alternative for inputs
// that quote their fields.
package csvtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/user/ghg-dashboard/internal/models"
)

const (
	// Delimiter separates fields within a line.
	Delimiter = ","
	// LineBreak separates lines.
	LineBreak = "\n"
)

// Parser modes accepted by ParseMode.
const (
	ModeNaive   = "naive"
	ModeRFC4180 = "rfc4180"
)

// ErrUnknownMode is returned for a parser mode other than ModeNaive or ModeRFC4180.
var ErrUnknownMode = errors.New("unknown parser mode")

// Parse splits text into a header and rows. The first non-blank line is the
// header. One final line break terminates the text and does not start a row.
// Trailing carriage returns are dropped. Blank lines are skipped, except in a
// single-column table where a blank line is a row holding an empty value.
// Short rows leave the missing columns absent; fields past the header count
// are dropped. Both cases are recorded as column mismatches.
func Parse(text string) (*models.Dataset, *models.Warnings) {
	ds := &models.Dataset{}
	warn := &models.Warnings{}

	text = strings.TrimSuffix(text, LineBreak)
	if text == "" {
		return ds, warn
	}

	var headers []string
	for i, line := range strings.Split(text, LineBreak) {
		line = strings.TrimSuffix(line, "\r")
		if line == "" && len(headers) != 1 {
			continue
		}
		fields := strings.Split(line, Delimiter)
		if headers == nil {
			headers = fields
			ds.Headers = uniqueHeaders(fields)
			continue
		}
		if len(fields) != len(headers) {
			warn.ColumnMismatches = append(warn.ColumnMismatches, models.RowMismatch{
				Line:     i + 1,
				Expected: len(headers),
				Got:      len(fields),
			})
		}
		ds.Rows = append(ds.Rows, zip(headers, fields))
	}
	return ds, warn
}

// ParseRFC4180 reads r with a conforming CSV grammar: quoted fields may
// contain delimiters, quotes and line breaks. Column-count handling matches
// Parse.
func ParseRFC4180(r io.Reader) (*models.Dataset, *models.Warnings, error) {
	ds := &models.Dataset{}
	warn := &models.Warnings{}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ds, warn, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	ds.Headers = uniqueHeaders(headers)

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row %d: %w", len(ds.Rows)+2, err)
		}
		if len(fields) != len(headers) {
			line, _ := reader.FieldPos(0)
			warn.ColumnMismatches = append(warn.ColumnMismatches, models.RowMismatch{
				Line:     line,
				Expected: len(headers),
				Got:      len(fields),
			})
		}
		ds.Rows = append(ds.Rows, zip(headers, fields))
	}
	return ds, warn, nil
}

// ParseMode dispatches to Parse or ParseRFC4180.
func ParseMode(mode, text string) (*models.Dataset, *models.Warnings, error) {
	switch mode {
	case "", ModeNaive:
		ds, warn := Parse(text)
		return ds, warn, nil
	case ModeRFC4180:
		return ParseRFC4180(strings.NewReader(text))
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func zip(headers, fields []string) models.Row {
	row := make(models.Row, len(fields))
	for i, v := range fields {
		if i >= len(headers) {
			break
		}
		row[headers[i]] = v
	}
	return row
}

// uniqueHeaders keeps the first position of a repeated header name.
func uniqueHeaders(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
