package csvtable

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/user/ghg-dashboard/internal/models"
)

// Serialize writes ds back to delimited text: a header line, then one line
// per row with fields in ds.Headers order. Every line, the last included,
// ends with a line break. A column missing from a row is written empty.
// Parse(Serialize(ds)) reproduces ds only when no value contains the
// delimiter or a line break.
func Serialize(ds *models.Dataset) string {
	if ds == nil || len(ds.Headers) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(ds.Headers, Delimiter))
	b.WriteString(LineBreak)

	fields := make([]string, len(ds.Headers))
	for _, row := range ds.Rows {
		for i, h := range ds.Headers {
			fields[i] = row[h]
		}
		b.WriteString(strings.Join(fields, Delimiter))
		b.WriteString(LineBreak)
	}
	return b.String()
}

// WriteRecords writes typed records as quoted, RFC 4180 CSV.
func WriteRecords(w io.Writer, records []models.Record) error {
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}
