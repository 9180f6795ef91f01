// Package rollup reduces snapshots and series into dashboard totals.
package rollup

import (
	"sort"

	"github.com/shopspring/decimal"

	"nuwa/carbon-engine/internal/biomass"
	"nuwa/carbon-engine/internal/projects"
)

// UnassignedEcosystem labels parcels without an ecosystem.
const UnassignedEcosystem = "unassigned"

// EcosystemTotals is the current-state stock of the parcels of one
// ecosystem. Co2 carries the snapshot's Co2eqTotal unit.
type EcosystemTotals struct {
	Ecosystem string  `json:"ecosystem"`
	Bgb       float64 `json:"bgb"`
	Co2       float64 `json:"co2"`
	Agb       float64 `json:"agb"`
	Soc       float64 `json:"soc"`
}

// SpeciesYearTotals is projected sequestration per ecosystem, species and year.
type SpeciesYearTotals struct {
	Ecosystem string  `json:"ecosystem"`
	Species   string  `json:"species"`
	Year      int     `json:"year"`
	Co2Total  float64 `json:"co2total"`
}

// Cards are the dashboard card totals.
type Cards struct {
	TotalImpact             float64 `json:"totalImpact"`
	TotalInvestment         float64 `json:"totalInvestment"`
	TotalBankableInvestment float64 `json:"totalBankableInvestment"`
	TotalIncome             float64 `json:"totalIncome"`
	LandNumber              int     `json:"landNumber"`
	TotalCo2                float64 `json:"totalco2"`
	Area                    float64 `json:"area"`
	AverageCo2Total         float64 `json:"averageCo2Total"`
	SumCo2Total             float64 `json:"sumCo2Total"`
}

// ByEcosystem groups snapshots by ecosystem, sorted by name.
func ByEcosystem(snaps []biomass.Snapshot) []EcosystemTotals {
	index := make(map[string]int)
	totals := []EcosystemTotals{}

	for _, s := range snaps {
		name := s.Ecosystem
		if name == "" {
			name = UnassignedEcosystem
		}
		i, ok := index[name]
		if !ok {
			i = len(totals)
			index[name] = i
			totals = append(totals, EcosystemTotals{Ecosystem: name})
		}
		totals[i].Bgb += s.Bgb
		totals[i].Co2 += s.Co2eqTotal
		totals[i].Agb += s.Agb
		totals[i].Soc += s.SocTotal
	}

	sort.Slice(totals, func(i, j int) bool { return totals[i].Ecosystem < totals[j].Ecosystem })
	return totals
}

// BySpeciesYear groups series rows by ecosystem, species and year.
func BySpeciesYear(rows []projects.ParcelYearCo2) []SpeciesYearTotals {
	type key struct {
		ecosystem, species string
		year               int
	}
	index := make(map[key]int)
	totals := []SpeciesYearTotals{}

	for _, r := range rows {
		k := key{ecosystem: r.EcosystemType, species: r.Species, year: r.Year}
		if k.ecosystem == "" {
			k.ecosystem = UnassignedEcosystem
		}
		i, ok := index[k]
		if !ok {
			i = len(totals)
			index[k] = i
			totals = append(totals, SpeciesYearTotals{Ecosystem: k.ecosystem, Species: k.species, Year: k.year})
		}
		totals[i].Co2Total += r.Co2eqTons
	}

	sort.Slice(totals, func(i, j int) bool {
		a, b := totals[i], totals[j]
		if a.Ecosystem != b.Ecosystem {
			return a.Ecosystem < b.Ecosystem
		}
		if a.Species != b.Species {
			return a.Species < b.Species
		}
		return a.Year < b.Year
	})
	return totals
}

// DashboardCards reduces projects, their parcels, parcel snapshots and the
// materialized series into card totals. Empty inputs give zero totals.
// Money values are summed exactly and every total is rounded to 2 decimals.
func DashboardCards(projs []projects.Project, parcels []projects.Parcel, snaps []biomass.Snapshot, series []projects.ParcelYearCo2) Cards {
	var impact, investment, bankable, income decimal.Decimal
	for _, p := range projs {
		impact = impact.Add(decimal.NewFromFloat(p.Impact))
		investment = investment.Add(decimal.NewFromFloat(p.TotalInvestment))
		bankable = bankable.Add(decimal.NewFromFloat(p.TotalBankableInvestment))
		income = income.Add(decimal.NewFromFloat(p.TotalIncome))
	}

	var area int64
	for _, p := range parcels {
		area += int64(p.Area)
	}

	var sumCo2 float64
	for _, s := range snaps {
		sumCo2 += s.Co2eqTotal
	}

	var totalCo2 float64
	for _, r := range series {
		totalCo2 += r.Co2eqTons
	}

	cards := Cards{
		TotalImpact:             round2(impact),
		TotalInvestment:         round2(investment),
		TotalBankableInvestment: round2(bankable),
		TotalIncome:             round2(income),
		LandNumber:              len(parcels),
		TotalCo2:                round2(decimal.NewFromFloat(totalCo2)),
		Area:                    float64(area),
		SumCo2Total:             round2(decimal.NewFromFloat(sumCo2)),
	}
	if cards.LandNumber > 0 {
		avg := decimal.NewFromFloat(sumCo2).Div(decimal.NewFromInt(int64(cards.LandNumber)))
		cards.AverageCo2Total = round2(avg)
	}
	return cards
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
