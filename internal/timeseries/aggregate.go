// Package timeseries projects parcel sequestration year by year and keeps the
// per-project result materialized.
package timeseries

import (
	"sort"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/projects"
)

// YearTotal is the sequestration of a set of parcels in one elapsed year.
type YearTotal struct {
	Year      int     `json:"year"`
	Co2eqTons float64 `json:"co2eqTons"`
}

// Aggregate emits one row per (parcel, distinct species, year) for years
// 0..maxYears, with co2eqTons = individuals * deltaCo2(year) / 1000. Species
// without a curve in curves are skipped.
func Aggregate(parcels []projects.Parcel, curves map[string]*growth.Curve, maxYears int) []projects.ParcelYearCo2 {
	years := growth.ClampYears(maxYears)

	var rows []projects.ParcelYearCo2
	for _, parcel := range parcels {
		individuals := parcel.Individuals()
		for _, name := range parcel.DistinctSpecies() {
			curve, ok := curves[name]
			if !ok {
				continue
			}
			for y := 0; y <= years; y++ {
				row := projects.ParcelYearCo2{
					ParcelID:      parcel.ID,
					Species:       name,
					Year:          y,
					EcosystemID:   parcel.EcosystemID,
					EcosystemType: parcel.EcosystemType(),
					Co2eqTons:     individuals * curve.Delta(y) / 1000,
				}
				if parcel.ProjectID != nil {
					row.ProjectID = *parcel.ProjectID
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// GroupByYear sums rows per year, ascending.
func GroupByYear(rows []projects.ParcelYearCo2) []YearTotal {
	sums := make(map[int]float64)
	for _, r := range rows {
		sums[r.Year] += r.Co2eqTons
	}

	totals := make([]YearTotal, 0, len(sums))
	for year, tons := range sums {
		totals = append(totals, YearTotal{Year: year, Co2eqTons: tons})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Year < totals[j].Year })
	return totals
}

// Total sums every row.
func Total(rows []projects.ParcelYearCo2) float64 {
	var sum float64
	for _, r := range rows {
		sum += r.Co2eqTons
	}
	return sum
}
