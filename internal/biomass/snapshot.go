// Package biomass computes the current carbon stock of a parcel from the
// measured average DBH of its species.
package biomass

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/projects"
)

// kgPerTon converts between the per-individual kilograms of the allometric
// estimator and parcel tonnes.
const kgPerTon = 1000.0

// Snapshot is the year-0 carbon stock of one parcel.
type Snapshot struct {
	ParcelID      uuid.UUID  `json:"parcelId"`
	ParcelName    string     `json:"parcelName"`
	ProjectID     *uuid.UUID `json:"projectId,omitempty"`
	Species       string     `json:"species"`
	Ecosystem     string     `json:"ecosystem"`
	Area          int        `json:"area"`
	Individuals   float64    `json:"individuals"`
	AgbSpecies    float64    `json:"agbSpecies"`
	Agb           float64    `json:"agb"`
	Bgb           float64    `json:"bgb"`
	Co2eqCaptured float64    `json:"co2eqCaptured"`
	Co2eqSubt     float64    `json:"co2eqSubt"`
	// Co2eqTotal is reported in kilograms, the other masses in tonnes.
	Co2eqTotal    float64 `json:"co2eqTotal"`
	SocTotal      float64 `json:"socTotal"`
	TotalCarbon   float64 `json:"totalCarbon"`
	Co2Additional float64 `json:"co2Additional"`
	Co2PerHectare float64 `json:"co2PerHectare"`
}

// Aggregate computes the snapshot of a parcel planted with species. A parcel
// without individuals or without species has zero biomass; its soil carbon is
// still counted. ecosystem may be nil.
func Aggregate(parcel projects.Parcel, species *projects.Species, ecosystem *projects.Ecosystem) (Snapshot, error) {
	snap := Snapshot{
		ParcelID:    parcel.ID,
		ParcelName:  parcel.Name,
		ProjectID:   parcel.ProjectID,
		Area:        parcel.Area,
		Individuals: parcel.Individuals(),
	}
	if ecosystem != nil {
		snap.Ecosystem = ecosystem.Type
		snap.SocTotal = float64(parcel.Area) * ecosystem.SOC
	}
	if species != nil {
		snap.Species = species.CommonName
	}

	if snap.Individuals == 0 || species == nil {
		snap.TotalCarbon = snap.SocTotal
		return snap, nil
	}

	if err := species.Growth.Require(growth.SnapshotFields...); err != nil {
		return Snapshot{}, fmt.Errorf("species %q: %w", species.CommonName, err)
	}
	g := species.Growth

	snap.AgbSpecies = growth.AllometricBiomass(*g.AllometricCoeffA, *g.AllometricCoeffB, *g.AvgDbh)
	snap.Agb = snap.Individuals * snap.AgbSpecies / kgPerTon
	snap.Bgb = snap.Agb * *g.RCoeff
	snap.Co2eqCaptured = growth.CO2Equivalent(snap.Agb)
	snap.Co2eqSubt = growth.CO2Equivalent(snap.Bgb)
	snap.Co2eqTotal = (snap.Co2eqCaptured + snap.Co2eqSubt) * kgPerTon
	snap.TotalCarbon = snap.Co2eqCaptured + snap.Co2eqSubt + snap.SocTotal
	snap.Co2Additional = snap.TotalCarbon - snap.SocTotal
	snap.Co2PerHectare = PerHectare(snap.Co2eqCaptured+snap.Co2eqSubt, parcel.Area)

	if !finite(snap.Agb, snap.Bgb, snap.TotalCarbon) {
		return Snapshot{}, fmt.Errorf("species %q: non-finite biomass from growth parameters", species.CommonName)
	}
	return snap, nil
}

// PerHectare divides value by area, returning 0 for an empty parcel.
func PerHectare(value float64, area int) float64 {
	if area == 0 {
		return 0
	}
	return value / float64(area)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
