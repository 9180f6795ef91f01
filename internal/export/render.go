package export

import (
	"bytes"
	"fmt"
)

// Render encodes tables in format. CSV holds only the first table; Excel
// writes one sheet per table.
func Render(format Format, tables ...Table) ([]byte, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}

	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		if err := NewCSVExporter(&buf, DefaultCSVOptions()).Write(tables[0]); err != nil {
			return nil, fmt.Errorf("failed to render csv: %w", err)
		}
	case FormatExcel:
		exporter := NewExcelExporter(DefaultExcelOptions())
		defer exporter.Close()
		for _, table := range tables {
			if err := exporter.AddTable(table); err != nil {
				return nil, fmt.Errorf("failed to render excel: %w", err)
			}
		}
		if err := exporter.Write(&buf); err != nil {
			return nil, fmt.Errorf("failed to render excel: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return buf.Bytes(), nil
}
