package rollup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuwa/carbon-engine/internal/biomass"
	"nuwa/carbon-engine/internal/projects"
)

func TestDashboardCards_ZeroProjects(t *testing.T) {
	cards := DashboardCards(nil, nil, nil, nil)
	assert.Equal(t, Cards{}, cards)
}

func TestDashboardCards_Totals(t *testing.T) {
	projs := []projects.Project{
		{Impact: 0.1, TotalInvestment: 1000, TotalBankableInvestment: 100.1, TotalIncome: 5},
		{Impact: 0.2, TotalInvestment: 500.55, TotalBankableInvestment: 0.2, TotalIncome: 7.5},
	}
	parcels := []projects.Parcel{{Area: 10}, {Area: 5}, {Area: 0}}
	snaps := []biomass.Snapshot{{Co2eqTotal: 100}, {Co2eqTotal: 50}, {Co2eqTotal: 0}}
	series := []projects.ParcelYearCo2{{Co2eqTons: 1.23}, {Co2eqTons: 2.004}}

	cards := DashboardCards(projs, parcels, snaps, series)

	assert.Equal(t, 0.3, cards.TotalImpact)
	assert.Equal(t, 1500.55, cards.TotalInvestment)
	assert.Equal(t, 100.3, cards.TotalBankableInvestment)
	assert.Equal(t, 12.5, cards.TotalIncome)
	assert.Equal(t, 3, cards.LandNumber)
	assert.Equal(t, 15.0, cards.Area)
	assert.Equal(t, 150.0, cards.SumCo2Total)
	assert.Equal(t, 50.0, cards.AverageCo2Total)
	assert.Equal(t, 3.23, cards.TotalCo2)
}

func TestByEcosystem(t *testing.T) {
	snaps := []biomass.Snapshot{
		{Ecosystem: "Paramo", Agb: 1, Bgb: 0.5, Co2eqTotal: 10, SocTotal: 100},
		{Ecosystem: "", Agb: 2, Bgb: 1, Co2eqTotal: 20, SocTotal: 0},
		{Ecosystem: "Paramo", Agb: 3, Bgb: 1.5, Co2eqTotal: 30, SocTotal: 50},
	}

	totals := ByEcosystem(snaps)
	require.Len(t, totals, 2)
	assert.Equal(t, EcosystemTotals{Ecosystem: "Paramo", Agb: 4, Bgb: 2, Co2: 40, Soc: 150}, totals[0])
	assert.Equal(t, UnassignedEcosystem, totals[1].Ecosystem)

	assert.NotNil(t, ByEcosystem(nil))
	assert.Empty(t, ByEcosystem(nil))
}

func TestBySpeciesYear(t *testing.T) {
	parcel := uuid.New()
	rows := []projects.ParcelYearCo2{
		{ParcelID: parcel, EcosystemType: "Paramo", Species: "Roble", Year: 1, Co2eqTons: 1},
		{ParcelID: parcel, EcosystemType: "Paramo", Species: "Pino", Year: 1, Co2eqTons: 2},
		{ParcelID: uuid.New(), EcosystemType: "Paramo", Species: "Pino", Year: 1, Co2eqTons: 3},
		{ParcelID: parcel, EcosystemType: "Paramo", Species: "Pino", Year: 0, Co2eqTons: 4},
	}

	totals := BySpeciesYear(rows)
	assert.Equal(t, []SpeciesYearTotals{
		{Ecosystem: "Paramo", Species: "Pino", Year: 0, Co2Total: 4},
		{Ecosystem: "Paramo", Species: "Pino", Year: 1, Co2Total: 5},
		{Ecosystem: "Paramo", Species: "Roble", Year: 1, Co2Total: 1},
	}, totals)
	assert.Empty(t, BySpeciesYear(nil))
}

func TestBuildAggregateKey(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, "global_cards_all", buildAggregateKey("cards", nil))
	assert.Equal(t, "project_"+a.String()+"_cards", buildAggregateKey("cards", []uuid.UUID{a}))
	assert.Equal(t, buildAggregateKey("cards", []uuid.UUID{a, b}), buildAggregateKey("cards", []uuid.UUID{b, a}))
}
