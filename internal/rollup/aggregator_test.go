package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nuwa/carbon-engine/internal/cache"
	"nuwa/carbon-engine/internal/projects"
	"nuwa/carbon-engine/internal/projects/projectstest"
	"nuwa/carbon-engine/internal/timeseries"
)

func setupAggregator(t *testing.T) (*Aggregator, *projects.GormRepository, *projectstest.Fixture) {
	t.Helper()
	repo, _ := projectstest.NewRepository(t)
	fx := projectstest.Seed(t, repo)

	store := cache.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	return NewAggregator(repo, cache.New(store, time.Minute, zap.NewNop()), zap.NewNop()), repo, fx
}

func TestAggregator_DashboardCards(t *testing.T) {
	agg, repo, fx := setupAggregator(t)
	ctx := context.Background()

	m := timeseries.NewMaterializer(repo, zap.NewNop(), 10)
	_, err := m.Recompute(ctx, fx.Project.ID)
	require.NoError(t, err)
	series, err := m.Series(ctx, fx.Project.ID)
	require.NoError(t, err)

	cards, err := agg.DashboardCards(ctx, &fx.Project.ID)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cards.TotalImpact)
	assert.Equal(t, 1000.0, cards.TotalInvestment)
	assert.Equal(t, 400.0, cards.TotalBankableInvestment)
	assert.Equal(t, 250.0, cards.TotalIncome)
	assert.Equal(t, 2, cards.LandNumber)
	assert.Equal(t, 15.0, cards.Area)
	assert.InDelta(t, series.Total, cards.TotalCo2, 0.005)
	assert.Greater(t, cards.SumCo2Total, 0.0)
	assert.InDelta(t, cards.SumCo2Total/2, cards.AverageCo2Total, 0.01)

	global, err := agg.DashboardCards(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, cards, global)
}

func TestAggregator_DashboardCardsEmptyDatabase(t *testing.T) {
	repo, _ := projectstest.NewRepository(t)
	agg := NewAggregator(repo, cache.New(cache.NewMemoryStore(time.Hour), time.Minute, zap.NewNop()), zap.NewNop())

	cards, err := agg.DashboardCards(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Cards{}, *cards)
}

func TestAggregator_UnknownProject(t *testing.T) {
	agg, _, _ := setupAggregator(t)

	id := uuid.New()
	_, err := agg.DashboardCards(context.Background(), &id)
	assert.ErrorIs(t, err, projects.ErrNotFound)
}

func TestAggregator_CachesUntilInvalidated(t *testing.T) {
	agg, repo, fx := setupAggregator(t)
	ctx := context.Background()

	cards, err := agg.DashboardCards(ctx, &fx.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cards.LandNumber)

	require.NoError(t, repo.CreateParcel(ctx, projectstest.NewParcel(fx.Project.ID, fx.Ecosystem.ID, "Lote 3", 1, 10, "Pino")))

	cards, err = agg.DashboardCards(ctx, &fx.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cards.LandNumber)

	agg.InvalidateProject(ctx, fx.Project.ID)

	cards, err = agg.DashboardCards(ctx, &fx.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cards.LandNumber)
}

func TestAggregator_EcosystemTotals(t *testing.T) {
	agg, _, fx := setupAggregator(t)

	totals, err := agg.EcosystemTotals(context.Background(), []uuid.UUID{fx.Project.ID})
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "Bosque andino", totals[0].Ecosystem)
	assert.Equal(t, 1800.0, totals[0].Soc)
	assert.Greater(t, totals[0].Agb, 0.0)
}

func TestAggregator_SpeciesYearTotals(t *testing.T) {
	agg, repo, fx := setupAggregator(t)
	ctx := context.Background()

	_, err := timeseries.NewMaterializer(repo, zap.NewNop(), 4).Recompute(ctx, fx.Project.ID)
	require.NoError(t, err)

	totals, err := agg.SpeciesYearTotals(ctx, []uuid.UUID{fx.Project.ID})
	require.NoError(t, err)
	assert.Len(t, totals, 2*5)
	assert.Equal(t, "Pino", totals[0].Species)
	assert.Equal(t, 0, totals[0].Year)
}

func TestAggregator_GlobalRollupsSkipParcelsWithoutProject(t *testing.T) {
	agg, repo, fx := setupAggregator(t)
	ctx := context.Background()

	orphan := projectstest.NewParcel(uuid.Nil, fx.Ecosystem.ID, "Sin proyecto", 20, 100, "Pino")
	orphan.ProjectID = nil
	require.NoError(t, repo.CreateParcel(ctx, orphan))

	set, err := agg.Snapshots(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, set.Snapshots, 2)

	totals, err := agg.EcosystemTotals(ctx, nil)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 1800.0, totals[0].Soc)

	cards, err := agg.DashboardCards(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cards.LandNumber)
}
