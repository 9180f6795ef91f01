package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter     rune
	UseCRLF       bool
	IncludeHeader bool
	NumberFormat  string // e.g. "%.2f"; empty keeps full precision
	NullValue     string
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:     ',',
		IncludeHeader: true,
	}
}

// CSVExporter exports tables to CSV format
type CSVExporter struct {
	writer  *csv.Writer
	options CSVOptions
}

// NewCSVExporter creates a new CSV exporter
func NewCSVExporter(w io.Writer, options CSVOptions) *CSVExporter {
	writer := csv.NewWriter(w)
	writer.Comma = options.Delimiter
	writer.UseCRLF = options.UseCRLF

	return &CSVExporter{writer: writer, options: options}
}

// Write writes the table and flushes.
func (e *CSVExporter) Write(table Table) error {
	if e.options.IncludeHeader {
		if err := e.writer.Write(table.Columns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			if i < len(row) {
				record[i] = e.formatValue(row[i])
			} else {
				record[i] = e.options.NullValue
			}
		}
		if err := e.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	e.writer.Flush()
	return e.writer.Error()
}

func (e *CSVExporter) formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return e.options.NullValue
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if e.options.NumberFormat != "" {
			return fmt.Sprintf(e.options.NumberFormat, v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		if v.IsZero() {
			return e.options.NullValue
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
