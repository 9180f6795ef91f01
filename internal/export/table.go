// Package export renders series and simulation results as CSV or Excel
// files and archives them to object storage.
package export

import (
	"fmt"
	"strings"

	"nuwa/carbon-engine/internal/population"
	"nuwa/carbon-engine/internal/timeseries"
)

// Format is an export file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// ParseFormat accepts csv, excel or xlsx, case-insensitively. An empty
// string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Extension returns the file extension of the format.
func (f Format) Extension() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return "csv"
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Table is a titled grid of values.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]interface{}
}

// SeriesTable lays out a materialized series, one row per parcel, species
// and year.
func SeriesTable(series *timeseries.Series) Table {
	table := Table{
		Title:   "Series",
		Columns: []string{"parcel_id", "species", "ecosystem", "year", "co2eq_tons"},
		Rows:    make([][]interface{}, 0, len(series.Rows)),
	}
	for _, r := range series.Rows {
		table.Rows = append(table.Rows, []interface{}{r.ParcelID.String(), r.Species, r.EcosystemType, r.Year, r.Co2eqTons})
	}
	return table
}

// SeriesYearTable lays out the yearly totals of a series.
func SeriesYearTable(series *timeseries.Series) Table {
	table := Table{
		Title:   "Totals",
		Columns: []string{"year", "co2eq_tons"},
		Rows:    make([][]interface{}, 0, len(series.Years)),
	}
	for _, y := range series.Years {
		table.Rows = append(table.Rows, []interface{}{y.Year, y.Co2eqTons})
	}
	return table
}

// PopulationTable lays out a population simulation.
func PopulationTable(result *population.Result) Table {
	table := Table{
		Title:   "Population",
		Columns: []string{"year", "population", "co2eq_tonnes", "co2eq_accumulated"},
		Rows:    make([][]interface{}, 0, len(result.Periods)),
	}
	for _, p := range result.Periods {
		table.Rows = append(table.Rows, []interface{}{p.Year, p.Population, p.Co2eqTonnes, p.Co2eqAccumulated})
	}
	return table
}
