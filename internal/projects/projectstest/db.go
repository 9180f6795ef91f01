// Package projectstest provides an in-memory database and fixtures for tests
// that need the projects store.
package projectstest

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/projects"
)

// NewDB opens a migrated in-memory sqlite database. A single connection is
// used so every query sees the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, projects.AutoMigrate(db))
	return db
}

// NewRepository returns a repository over a fresh in-memory database.
func NewRepository(t *testing.T) (*projects.GormRepository, *gorm.DB) {
	t.Helper()
	db := NewDB(t)
	return projects.NewGormRepository(db), db
}

func f(v float64) *float64 { return &v }

// Pine returns a species with a complete parameter set.
func Pine() *projects.Species {
	return &projects.Species{
		CommonName:     "Pino",
		ScientificName: "Pinus patula",
		Growth: growth.Parameters{
			MaxHeight:        f(30),
			AvgDbh:           f(20),
			GB:               f(2),
			GC:               f(0.05),
			GBDbh:            f(2.5),
			GCDbh:            f(0.08),
			AllometricCoeffA: f(0.05),
			AllometricCoeffB: f(2.5),
			RCoeff:           f(0.24),
		},
	}
}

// Oak returns a second species with a complete parameter set.
func Oak() *projects.Species {
	return &projects.Species{
		CommonName:     "Roble",
		ScientificName: "Quercus humboldtii",
		Growth: growth.Parameters{
			MaxHeight:        f(25),
			AvgDbh:           f(35),
			GB:               f(3),
			GC:               f(0.07),
			GBDbh:            f(2.8),
			GCDbh:            f(0.06),
			AllometricCoeffA: f(0.1),
			AllometricCoeffB: f(2.3),
			RCoeff:           f(0.3),
		},
	}
}

// Incomplete returns a species lacking its Gompertz shape parameters.
func Incomplete() *projects.Species {
	return &projects.Species{
		CommonName: "Guadua",
		Growth: growth.Parameters{
			MaxHeight:        f(20),
			AvgDbh:           f(12),
			AllometricCoeffA: f(0.2),
			AllometricCoeffB: f(2),
			RCoeff:           f(0.2),
		},
	}
}

// Fixture is a small project with two parcels on one ecosystem.
type Fixture struct {
	Project   *projects.Project
	Ecosystem *projects.Ecosystem
	Parcels   []*projects.Parcel
	Species   []*projects.Species
}

// Seed stores Pine, Oak and Incomplete plus a project whose parcels plant
// Pine (10 ha x 100) and Pine+Oak (5 ha x 50).
func Seed(t *testing.T, repo projects.Repository) *Fixture {
	t.Helper()
	ctx := context.Background()

	fx := &Fixture{Species: []*projects.Species{Pine(), Oak(), Incomplete()}}
	for _, s := range fx.Species {
		require.NoError(t, repo.CreateSpecies(ctx, s))
	}

	fx.Ecosystem = &projects.Ecosystem{Type: "Bosque andino", SOC: 120, BD: 1.1, C: 3.2, Depth: 30}
	require.NoError(t, repo.CreateEcosystem(ctx, fx.Ecosystem))

	fx.Project = &projects.Project{
		Name:                    "Cuenca alta",
		Impact:                  10,
		TotalInvestment:         1000,
		TotalBankableInvestment: 400,
		TotalIncome:             250,
	}
	require.NoError(t, repo.CreateProject(ctx, fx.Project))

	fx.Parcels = []*projects.Parcel{
		NewParcel(fx.Project.ID, fx.Ecosystem.ID, "Lote 1", 10, 100, "Pino"),
		NewParcel(fx.Project.ID, fx.Ecosystem.ID, "Lote 2", 5, 50, "Pino", "Roble"),
	}
	for _, p := range fx.Parcels {
		require.NoError(t, repo.CreateParcel(ctx, p))
	}
	return fx
}

// NewParcel builds an unsaved parcel.
func NewParcel(projectID, ecosystemID uuid.UUID, name string, area int, areaFactor float64, species ...string) *projects.Parcel {
	pid, eid := projectID, ecosystemID
	parcel := &projects.Parcel{
		Name:       name,
		Area:       area,
		AreaFactor: areaFactor,
		Species:    projects.SpeciesList(species),
		ProjectID:  &pid,
	}
	if ecosystemID != uuid.Nil {
		parcel.EcosystemID = &eid
	}
	return parcel
}
