package rollup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nuwa/carbon-engine/internal/biomass"
	"nuwa/carbon-engine/internal/cache"
	"nuwa/carbon-engine/internal/projects"
)

// Source is the data the aggregator reduces.
type Source interface {
	biomass.SpeciesLister
	GetProject(ctx context.Context, id uuid.UUID) (*projects.Project, error)
	ListProjects(ctx context.Context, ids []uuid.UUID) ([]projects.Project, error)
	ListParcels(ctx context.Context, projectIDs []uuid.UUID) ([]projects.Parcel, error)
	ListSeries(ctx context.Context, projectIDs []uuid.UUID) ([]projects.ParcelYearCo2, error)
}

// Aggregator serves rollups through the cache. Keys scoped to one project
// start with "project_<id>_"; every other key starts with "global_".
type Aggregator struct {
	source Source
	cache  *cache.Cache
	logger *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(source Source, c *cache.Cache, logger *zap.Logger) *Aggregator {
	return &Aggregator{source: source, cache: c, logger: logger}
}

// inputs are the records a rollup is computed from.
type inputs struct {
	projects []projects.Project
	parcels  []projects.Parcel
	series   []projects.ParcelYearCo2
}

// DashboardCards returns card totals for one project, or across every
// project when projectID is nil.
func (a *Aggregator) DashboardCards(ctx context.Context, projectID *uuid.UUID) (*Cards, error) {
	var ids []uuid.UUID
	if projectID != nil {
		if _, err := a.source.GetProject(ctx, *projectID); err != nil {
			return nil, err
		}
		ids = []uuid.UUID{*projectID}
	}

	return cache.Remember(ctx, a.cache, buildAggregateKey("cards", ids), func() (*Cards, error) {
		startTime := time.Now()

		in, err := a.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		set, err := biomass.ForParcels(ctx, a.source, in.parcels)
		if err != nil {
			return nil, err
		}
		a.logSkipped(set.Skipped)

		cards := DashboardCards(in.projects, in.parcels, set.Snapshots, in.series)

		a.logger.Debug("Dashboard cards computed",
			zap.Int("projects", len(in.projects)),
			zap.Int("parcels", len(in.parcels)),
			zap.Duration("duration", time.Since(startTime)))
		return &cards, nil
	})
}

// Snapshots returns the current-state snapshot of every parcel of the
// given projects, or of every parcel that has a project when projectIDs is
// empty.
func (a *Aggregator) Snapshots(ctx context.Context, projectIDs []uuid.UUID) (*biomass.SnapshotSet, error) {
	return cache.Remember(ctx, a.cache, buildAggregateKey("snapshots", projectIDs), func() (*biomass.SnapshotSet, error) {
		parcels, err := a.source.ListParcels(ctx, projectIDs)
		if err != nil {
			return nil, err
		}
		return biomass.ForParcels(ctx, a.source, withProject(parcels))
	})
}

// EcosystemTotals groups the current-state stock of the given projects by
// ecosystem.
func (a *Aggregator) EcosystemTotals(ctx context.Context, projectIDs []uuid.UUID) ([]EcosystemTotals, error) {
	return cache.Remember(ctx, a.cache, buildAggregateKey("ecosystems", projectIDs), func() ([]EcosystemTotals, error) {
		set, err := a.Snapshots(ctx, projectIDs)
		if err != nil {
			return nil, err
		}
		a.logSkipped(set.Skipped)
		return ByEcosystem(set.Snapshots), nil
	})
}

// SpeciesYearTotals groups the materialized series of the given projects by
// ecosystem, species and year.
func (a *Aggregator) SpeciesYearTotals(ctx context.Context, projectIDs []uuid.UUID) ([]SpeciesYearTotals, error) {
	return cache.Remember(ctx, a.cache, buildAggregateKey("species_years", projectIDs), func() ([]SpeciesYearTotals, error) {
		rows, err := a.source.ListSeries(ctx, projectIDs)
		if err != nil {
			return nil, err
		}
		return BySpeciesYear(rows), nil
	})
}

// InvalidateProject drops every cached rollup that may include the project.
func (a *Aggregator) InvalidateProject(ctx context.Context, projectID uuid.UUID) {
	a.cache.InvalidatePrefix(ctx, "project_"+projectID.String()+"_")
	a.cache.InvalidatePrefix(ctx, "global_")
}

// load fetches projects, parcels and series concurrently. Parcels that
// belong to no project are dropped.
func (a *Aggregator) load(ctx context.Context, ids []uuid.UUID) (*inputs, error) {
	in := &inputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		projs, err := a.source.ListProjects(gctx, ids)
		if err != nil {
			return fmt.Errorf("projects: %w", err)
		}
		in.projects = projs
		return nil
	})

	g.Go(func() error {
		parcels, err := a.source.ListParcels(gctx, ids)
		if err != nil {
			return fmt.Errorf("parcels: %w", err)
		}
		in.parcels = withProject(parcels)
		return nil
	})

	g.Go(func() error {
		series, err := a.source.ListSeries(gctx, ids)
		if err != nil {
			return fmt.Errorf("series: %w", err)
		}
		in.series = series
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load rollup inputs: %w", err)
	}
	return in, nil
}

// withProject drops parcels that belong to no project.
func withProject(parcels []projects.Parcel) []projects.Parcel {
	kept := parcels[:0]
	for _, p := range parcels {
		if p.ProjectID != nil {
			kept = append(kept, p)
		}
	}
	return kept
}

func (a *Aggregator) logSkipped(skipped []biomass.SkippedParcel) {
	for _, s := range skipped {
		a.logger.Warn("Parcel skipped in rollup",
			zap.String("parcel_id", s.ParcelID.String()),
			zap.String("species", s.Species),
			zap.String("reason", s.Reason))
	}
}

// buildAggregateKey builds a cache key for a rollup over projectIDs
func buildAggregateKey(kind string, projectIDs []uuid.UUID) string {
	switch len(projectIDs) {
	case 0:
		return "global_" + kind + "_all"
	case 1:
		return "project_" + projectIDs[0].String() + "_" + kind
	}

	ids := make([]string, len(projectIDs))
	for i, id := range projectIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return "global_" + kind + "_" + strings.Join(ids, ",")
}
