package timeseries

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/projects"
	"nuwa/carbon-engine/internal/projects/projectstest"
)

func curveFor(t *testing.T, s *projects.Species, years int) *growth.Curve {
	t.Helper()
	curve, err := growth.Generate(s.Growth, years)
	require.NoError(t, err)
	return curve
}

func TestAggregate_RowsPerParcelSpeciesYear(t *testing.T) {
	projectID := uuid.New()
	parcels := []projects.Parcel{
		*projectstest.NewParcel(projectID, uuid.Nil, "A", 10, 100, "Pino"),
		*projectstest.NewParcel(projectID, uuid.Nil, "B", 5, 50, "Pino", "Roble", "Pino"),
	}
	parcels[0].ID, parcels[1].ID = uuid.New(), uuid.New()

	curves := map[string]*growth.Curve{
		"Pino":  curveFor(t, projectstest.Pine(), 10),
		"Roble": curveFor(t, projectstest.Oak(), 10),
	}

	rows := Aggregate(parcels, curves, 10)
	require.Len(t, rows, 3*11)

	for _, r := range rows {
		assert.Equal(t, projectID, r.ProjectID)
		assert.GreaterOrEqual(t, r.Co2eqTons, 0.0)
	}

	first := rows[0]
	assert.Equal(t, 0, first.Year)
	assert.InDelta(t, 1000*curves["Pino"].At(0).CO2eq/1000, first.Co2eqTons, 1e-9)
}

func TestAggregate_TotalTelescopes(t *testing.T) {
	parcel := *projectstest.NewParcel(uuid.New(), uuid.Nil, "A", 10, 100, "Pino")
	curve := curveFor(t, projectstest.Pine(), 30)

	rows := Aggregate([]projects.Parcel{parcel}, map[string]*growth.Curve{"Pino": curve}, 30)

	assert.InDelta(t, 1000*curve.At(30).CO2eq/1000, Total(rows), 1e-6)
}

func TestAggregate_SkipsSpeciesWithoutCurve(t *testing.T) {
	parcel := *projectstest.NewParcel(uuid.New(), uuid.Nil, "A", 10, 100, "Ceiba")

	rows := Aggregate([]projects.Parcel{parcel}, map[string]*growth.Curve{}, 10)
	assert.Empty(t, rows)
}

func TestAggregate_ClampsHorizon(t *testing.T) {
	parcel := *projectstest.NewParcel(uuid.New(), uuid.Nil, "A", 1, 1, "Pino")
	curve := curveFor(t, projectstest.Pine(), 80)

	rows := Aggregate([]projects.Parcel{parcel}, map[string]*growth.Curve{"Pino": curve}, 80)
	assert.Len(t, rows, growth.MaxYears+1)
}

func TestAggregate_ZeroIndividuals(t *testing.T) {
	parcel := *projectstest.NewParcel(uuid.New(), uuid.Nil, "A", 10, 0, "Pino")
	curve := curveFor(t, projectstest.Pine(), 5)

	rows := Aggregate([]projects.Parcel{parcel}, map[string]*growth.Curve{"Pino": curve}, 5)
	require.Len(t, rows, 6)
	assert.Zero(t, Total(rows))
}

func TestGroupByYear(t *testing.T) {
	rows := []projects.ParcelYearCo2{
		{Year: 2, Co2eqTons: 1},
		{Year: 0, Co2eqTons: 3},
		{Year: 2, Co2eqTons: 4},
	}

	assert.Equal(t, []YearTotal{{Year: 0, Co2eqTons: 3}, {Year: 2, Co2eqTons: 5}}, GroupByYear(rows))
	assert.Empty(t, GroupByYear(nil))
}
