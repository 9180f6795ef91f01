package timeseries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/projects"
)

// SkippedSpecies records a species that produced no rows in a recompute.
type SkippedSpecies struct {
	Species string   `json:"species"`
	Reason  string   `json:"reason"`
	Fields  []string `json:"fields,omitempty"`
}

// Result is the outcome of a recompute.
type Result struct {
	State   *projects.ProjectSeriesState `json:"state"`
	Skipped []SkippedSpecies             `json:"skipped,omitempty"`
}

// Series is the materialized series of a project as last computed.
type Series struct {
	ProjectID uuid.UUID                    `json:"projectId"`
	State     *projects.ProjectSeriesState `json:"state,omitempty"`
	Rows      []projects.ParcelYearCo2     `json:"rows"`
	Years     []YearTotal                  `json:"years"`
	Total     float64                      `json:"total"`
}

// Invalidator is notified after a project's series changed.
type Invalidator func(ctx context.Context, projectID uuid.UUID)

// Materializer owns the materialized series. At most one recompute per
// project runs at a time; concurrent callers share its result.
type Materializer struct {
	repo         projects.Repository
	logger       *zap.Logger
	maxYears     int
	group        singleflight.Group
	invalidators []Invalidator
	now          func() time.Time
}

// NewMaterializer creates a materializer projecting maxYears years.
func NewMaterializer(repo projects.Repository, logger *zap.Logger, maxYears int, invalidators ...Invalidator) *Materializer {
	return &Materializer{
		repo:         repo,
		logger:       logger,
		maxYears:     growth.ClampYears(maxYears),
		invalidators: invalidators,
		now:          time.Now,
	}
}

// Recompute rebuilds the series of a project and swaps it in atomically.
func (m *Materializer) Recompute(ctx context.Context, projectID uuid.UUID) (*Result, error) {
	v, err, shared := m.group.Do(projectID.String(), func() (interface{}, error) {
		return m.recompute(ctx, projectID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("Joined in-flight series recompute", zap.String("project_id", projectID.String()))
	}
	return v.(*Result), nil
}

func (m *Materializer) recompute(ctx context.Context, projectID uuid.UUID) (*Result, error) {
	startTime := m.now()

	if _, err := m.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	// A MarkStale after this read keeps the recomputed series stale.
	var generation int64
	current, err := m.repo.GetSeriesState(ctx, projectID)
	switch {
	case err == nil:
		generation = current.Generation
	case !errors.Is(err, projects.ErrNotFound):
		return nil, err
	}

	parcels, err := m.repo.ListParcels(ctx, []uuid.UUID{projectID})
	if err != nil {
		return nil, err
	}

	curves, skipped, err := LoadCurves(ctx, m.repo, speciesNames(parcels), m.maxYears)
	if err != nil {
		return nil, err
	}

	rows := Aggregate(parcels, curves, m.maxYears)

	computedAt := m.now()
	state := &projects.ProjectSeriesState{
		Generation: generation,
		MaxYears:   m.maxYears,
		ComputedAt: &computedAt,
	}
	if len(skipped) > 0 {
		raw, err := json.Marshal(skipped)
		if err != nil {
			return nil, fmt.Errorf("failed to encode skipped species: %w", err)
		}
		state.SkippedSpecies = datatypes.JSON(raw)
	}

	if err := m.repo.ReplaceSeries(ctx, projectID, rows, state); err != nil {
		return nil, err
	}

	for _, invalidate := range m.invalidators {
		invalidate(ctx, projectID)
	}

	m.logger.Info("Series recomputed",
		zap.String("project_id", projectID.String()),
		zap.Int64("version", state.Version),
		zap.Bool("stale", state.Stale),
		zap.Int("rows", len(rows)),
		zap.Int("skipped_species", len(skipped)),
		zap.Duration("duration", time.Since(startTime)))

	return &Result{State: state, Skipped: skipped}, nil
}

// MarkStale flags a project for recompute after its parcels or species
// changed. The current series stays readable until then.
func (m *Materializer) MarkStale(ctx context.Context, projectID uuid.UUID) error {
	if err := m.repo.MarkSeriesStale(ctx, projectID); err != nil {
		return err
	}
	for _, invalidate := range m.invalidators {
		invalidate(ctx, projectID)
	}
	return nil
}

// RecomputeStale recomputes up to batchSize stale projects with at most
// maxConcurrent recomputes in flight. Failures are logged and skipped.
func (m *Materializer) RecomputeStale(ctx context.Context, batchSize, maxConcurrent int) (int, error) {
	ids, err := m.repo.ListStaleProjects(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	m.logger.Info("Recomputing stale series", zap.Int("count", len(ids)))

	var refreshed atomic.Int64
	var g errgroup.Group
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	for _, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := m.Recompute(ctx, id); err != nil {
				m.logger.Error("Failed to recompute series",
					zap.String("project_id", id.String()),
					zap.Error(err))
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(refreshed.Load()), ctx.Err()
}

// Series reads the materialized series without recomputing it. State is nil
// when the project was never computed; rows always match State.Version.
func (m *Materializer) Series(ctx context.Context, projectID uuid.UUID) (*Series, error) {
	state, rows, err := m.repo.ReadSeries(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []projects.ParcelYearCo2{}
	}

	return &Series{
		ProjectID: projectID,
		State:     state,
		Rows:      rows,
		Years:     GroupByYear(rows),
		Total:     Total(rows),
	}, nil
}

// LoadCurves generates one curve per distinct species name. Species that are
// unknown or lack parameters are returned as skipped instead of failing.
func LoadCurves(ctx context.Context, repo projects.Repository, names []string, maxYears int) (map[string]*growth.Curve, []SkippedSpecies, error) {
	curves := make(map[string]*growth.Curve, len(names))
	if len(names) == 0 {
		return curves, nil, nil
	}

	found, err := repo.ListSpeciesByNames(ctx, names)
	if err != nil {
		return nil, nil, err
	}
	byName := make(map[string]projects.Species, len(found))
	for _, s := range found {
		byName[s.CommonName] = s
	}

	var skipped []SkippedSpecies
	for _, name := range names {
		species, ok := byName[name]
		if !ok {
			skipped = append(skipped, SkippedSpecies{Species: name, Reason: "species not found"})
			continue
		}

		curve, err := growth.Generate(species.Growth, maxYears)
		if err != nil {
			entry := SkippedSpecies{Species: name, Reason: err.Error()}
			var missing *growth.MissingParametersError
			if errors.As(err, &missing) {
				entry.Reason = growth.ErrMissingGrowthParameters.Error()
				entry.Fields = missing.Fields
			}
			skipped = append(skipped, entry)
			continue
		}
		curves[name] = curve
	}
	return curves, skipped, nil
}

// speciesNames returns the distinct species planted on parcels in order of
// first appearance.
func speciesNames(parcels []projects.Parcel) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range parcels {
		for _, name := range p.DistinctSpecies() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
