package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	FreezeHeader bool
	AutoFilter   bool
	NumberFormat string
	HeaderFill   string
	HeaderFont   string
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader: true,
		AutoFilter:   true,
		NumberFormat: "#,##0.00",
		HeaderFill:   "2E7D32",
		HeaderFont:   "FFFFFF",
	}
}

// ExcelExporter writes tables to a workbook, one sheet per table.
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
	sheets  int
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	return &ExcelExporter{file: excelize.NewFile(), options: options}
}

// AddTable writes table to a new sheet named after its title.
func (e *ExcelExporter) AddTable(table Table) error {
	sheet := table.Title
	if sheet == "" {
		sheet = fmt.Sprintf("Sheet%d", e.sheets+1)
	}

	if e.sheets == 0 {
		if err := e.file.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	} else if _, err := e.file.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	e.sheets++

	headerStyle, err := e.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: e.options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	numberStyle := 0
	if e.options.NumberFormat != "" {
		numberStyle, err = e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.NumberFormat})
		if err != nil {
			return fmt.Errorf("failed to create number style: %w", err)
		}
	}

	for i, col := range table.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := e.file.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for r, row := range table.Rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := e.file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			if _, isFloat := val.(float64); isFloat && numberStyle > 0 {
				if err := e.file.SetCellStyle(sheet, cell, cell, numberStyle); err != nil {
					return fmt.Errorf("failed to style cell: %w", err)
				}
			}
		}
	}

	if e.options.FreezeHeader {
		if err := e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	if e.options.AutoFilter && len(table.Columns) > 0 && len(table.Rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(table.Columns), len(table.Rows)+1)
		if err := e.file.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}

	return nil
}

// Write writes the workbook to w
func (e *ExcelExporter) Write(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the workbook
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}
