package carbon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nuwa/carbon-engine/internal/biomass"
	"nuwa/carbon-engine/internal/cache"
	"nuwa/carbon-engine/internal/export"
	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/population"
	"nuwa/carbon-engine/internal/projects"
	"nuwa/carbon-engine/internal/rollup"
	"nuwa/carbon-engine/internal/timeseries"
)

// Config holds the engine defaults used by the service
type Config struct {
	DefaultMaxYears    int
	TruncatePopulation bool
}

// HealthCheck probes a dependency.
type HealthCheck func(ctx context.Context) error

// Service exposes the growth, biomass, series, population and rollup
// operations to transports.
type Service struct {
	repo         projects.Repository
	materializer *timeseries.Materializer
	aggregator   *rollup.Aggregator
	cache        *cache.Cache
	archiver     *export.Archiver
	dbCheck      HealthCheck
	config       Config
	logger       *zap.Logger
}

// NewService creates a new carbon service
func NewService(
	repo projects.Repository,
	materializer *timeseries.Materializer,
	aggregator *rollup.Aggregator,
	c *cache.Cache,
	config Config,
	logger *zap.Logger,
) *Service {
	config.DefaultMaxYears = growth.ClampYears(config.DefaultMaxYears)
	return &Service{
		repo:         repo,
		materializer: materializer,
		aggregator:   aggregator,
		cache:        c,
		config:       config,
		logger:       logger,
	}
}

// WithArchiver enables archiving of exports.
func (s *Service) WithArchiver(archiver *export.Archiver) *Service {
	s.archiver = archiver
	return s
}

// WithDatabaseCheck sets the probe used by Health.
func (s *Service) WithDatabaseCheck(check HealthCheck) *Service {
	s.dbCheck = check
	return s
}

// =====================================================
// Growth curves
// =====================================================

// GrowthModel describes the growth model.
func (s *Service) GrowthModel() *growth.ModelMetadata {
	return growth.Describe()
}

// GenerateCurve returns the growth curve of one species. Curves are cached
// under global_curve_<species>_<years>.
func (s *Service) GenerateCurve(ctx context.Context, req *GrowthCurveRequest) (*GrowthCurveResponse, error) {
	name := strings.TrimSpace(req.SpeciesName)
	if name == "" {
		return nil, required("speciesName")
	}
	years, err := s.horizon(req.MaxYears)
	if err != nil {
		return nil, err
	}
	return s.curve(ctx, name, years)
}

func (s *Service) curve(ctx context.Context, name string, years int) (*GrowthCurveResponse, error) {
	key := "global_curve_" + name + "_" + strconv.Itoa(years)
	return cache.Remember(ctx, s.cache, key, func() (*GrowthCurveResponse, error) {
		species, err := s.repo.GetSpeciesByName(ctx, name)
		if err != nil {
			if errors.Is(err, projects.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrSpeciesNotFound, name)
			}
			return nil, err
		}

		curve, err := growth.Generate(species.Growth, years)
		if err != nil {
			return nil, fmt.Errorf("species %s: %w", name, err)
		}

		return &GrowthCurveResponse{
			Model:    growth.ModelName,
			Species:  species.CommonName,
			MaxYears: curve.Years(),
			Points:   curve.Points(),
		}, nil
	})
}

// GenerateCurves computes several curves concurrently. Species that are
// unknown or lack parameters are listed in Errors, or fail the whole batch
// when AllOrNothing is set.
func (s *Service) GenerateCurves(ctx context.Context, req *BatchGrowthCurveRequest) (*BatchGrowthCurveResponse, error) {
	names := distinctNames(req.SpeciesNames)
	if len(names) == 0 {
		return nil, required("speciesNames")
	}
	years, err := s.horizon(req.MaxYears)
	if err != nil {
		return nil, err
	}

	curves := make([]*GrowthCurveResponse, len(names))
	failures := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			curve, err := s.curve(gctx, name, years)
			if err != nil {
				if !isSpeciesFailure(err) {
					return err
				}
				failures[i] = err
				return nil
			}
			curves[i] = curve
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to generate curves: %w", err)
	}

	resp := &BatchGrowthCurveResponse{
		Curves: make([]GrowthCurveResponse, 0, len(names)),
		Errors: []SpeciesError{},
	}
	for i, name := range names {
		if failures[i] == nil {
			resp.Curves = append(resp.Curves, *curves[i])
			continue
		}
		if req.AllOrNothing {
			return nil, failures[i]
		}
		resp.Errors = append(resp.Errors, speciesError(name, failures[i]))
	}

	if len(resp.Errors) > 0 {
		s.logger.Warn("Skipped species in curve batch",
			zap.Int("requested", len(names)),
			zap.Int("skipped", len(resp.Errors)))
	}
	return resp, nil
}

func (s *Service) horizon(maxYears *int) (int, error) {
	if maxYears == nil {
		return s.config.DefaultMaxYears, nil
	}
	if *maxYears < 0 {
		return 0, fmt.Errorf("%w: maxYears must not be negative, got %d", growth.ErrInvalidYearRange, *maxYears)
	}
	return growth.ClampYears(*maxYears), nil
}

func isSpeciesFailure(err error) bool {
	return errors.Is(err, ErrSpeciesNotFound) ||
		errors.Is(err, growth.ErrMissingGrowthParameters) ||
		errors.Is(err, growth.ErrNonFiniteCurve)
}

func speciesError(name string, err error) SpeciesError {
	entry := SpeciesError{Species: name, Code: CodeSpeciesNotFound, Message: err.Error()}
	var missing *growth.MissingParametersError
	switch {
	case errors.As(err, &missing):
		entry.Code = CodeMissingParameters
		entry.Fields = missing.Fields
	case errors.Is(err, growth.ErrNonFiniteCurve):
		entry.Code = CodeNonFiniteCurve
	}
	return entry
}

func distinctNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names
}

// =====================================================
// Parcels and rollups
// =====================================================

// AggregateParcels groups the parcels of the given projects by ecosystem
// (aggregated) or by ecosystem, species and year from the series (co2).
func (s *Service) AggregateParcels(ctx context.Context, req *AggregateParcelsRequest) (interface{}, error) {
	switch req.QueryType {
	case "", QueryAggregated:
		return s.aggregator.EcosystemTotals(ctx, req.ProjectIDs)
	case QueryCO2:
		return s.aggregator.SpeciesYearTotals(ctx, req.ProjectIDs)
	}
	return nil, invalid("queryType", fmt.Sprintf("must be %q or %q", QueryAggregated, QueryCO2))
}

// ParcelSnapshots returns the biomass snapshot of every parcel of a project.
func (s *Service) ParcelSnapshots(ctx context.Context, projectID uuid.UUID) (*biomass.SnapshotSet, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, projectErr(err)
	}
	return s.aggregator.Snapshots(ctx, []uuid.UUID{projectID})
}

// DashboardCards returns the summary cards of one project, or of every
// project when projectID is nil.
func (s *Service) DashboardCards(ctx context.Context, projectID *uuid.UUID) (*rollup.Cards, error) {
	cards, err := s.aggregator.DashboardCards(ctx, projectID)
	if err != nil {
		return nil, projectErr(err)
	}
	return cards, nil
}

// ProjectSummary reports a project's parcels, stock, series state and data
// completeness. Snapshots are computed from the same parcel read, bypassing
// the cache.
func (s *Service) ProjectSummary(ctx context.Context, projectID uuid.UUID) (*ProjectSummary, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, projectErr(err)
	}
	parcels, err := s.repo.ListParcels(ctx, []uuid.UUID{projectID})
	if err != nil {
		return nil, err
	}
	set, err := biomass.ForParcels(ctx, s.repo, parcels)
	if err != nil {
		return nil, err
	}

	summary := &ProjectSummary{
		ProjectID:    project.ID,
		Name:         project.Name,
		Parcels:      len(parcels),
		Species:      []string{},
		Completeness: DataCompleteness{Issues: []ParcelIssue{}},
	}

	skipped := make(map[uuid.UUID]biomass.SkippedParcel, len(set.Skipped))
	for _, sk := range set.Skipped {
		skipped[sk.ParcelID] = sk
	}

	seen := make(map[string]struct{})
	for _, p := range parcels {
		summary.Area += p.Area
		summary.Individuals += p.Individuals()
		for _, name := range p.DistinctSpecies() {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				summary.Species = append(summary.Species, name)
			}
		}

		issue := ParcelIssue{ParcelID: p.ID, ParcelName: p.Name}
		if p.PrimarySpecies() == "" {
			issue.Missing = append(issue.Missing, "species")
		}
		if p.EcosystemID == nil {
			issue.Missing = append(issue.Missing, "ecosystem")
		}
		if p.Individuals() == 0 {
			issue.Missing = append(issue.Missing, "individuals")
		}
		if sk, ok := skipped[p.ID]; ok {
			issue.Species = sk.Species
			issue.Reason = sk.Reason
			issue.Missing = append(issue.Missing, sk.Fields...)
		}

		if len(issue.Missing) == 0 && issue.Reason == "" {
			summary.Completeness.CompleteParcels++
			continue
		}
		summary.Completeness.Issues = append(summary.Completeness.Issues, issue)
	}
	if len(parcels) > 0 {
		summary.Completeness.Score = float64(summary.Completeness.CompleteParcels) / float64(len(parcels))
	}

	for _, snap := range set.Snapshots {
		summary.Co2eqStock += snap.Co2eqCaptured + snap.Co2eqSubt
	}

	state, err := s.repo.GetSeriesState(ctx, projectID)
	switch {
	case err == nil:
		summary.Series = &SeriesSummary{
			Version:    state.Version,
			Stale:      state.Stale,
			RowCount:   state.RowCount,
			ComputedAt: state.ComputedAt,
		}
	case !errors.Is(err, projects.ErrNotFound):
		return nil, err
	}

	return summary, nil
}

// =====================================================
// Population
// =====================================================

// SimulatePopulation projects the population of a species across the
// project's parcels. The initial population is the number of individuals on
// every parcel planting the species.
func (s *Service) SimulatePopulation(ctx context.Context, req *PopulationRequest) (*PopulationResponse, error) {
	if req.ProjectID == uuid.Nil {
		return nil, required("projectId")
	}
	name := strings.TrimSpace(req.Species)
	if name == "" {
		return nil, required("species")
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetProject(ctx, req.ProjectID); err != nil {
		return nil, projectErr(err)
	}
	species, err := s.repo.GetSpeciesByName(ctx, name)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSpeciesNotFound, name)
		}
		return nil, err
	}
	parcels, err := s.repo.ListParcels(ctx, []uuid.UUID{req.ProjectID})
	if err != nil {
		return nil, err
	}

	var initial float64
	for _, p := range parcels {
		if p.HasSpecies(name) {
			initial += p.Individuals()
		}
	}

	result, err := population.Simulate(initial, species.Growth, start, end, req.Events, population.Options{
		TruncatePopulation: s.config.TruncatePopulation,
	})
	if err != nil {
		if errors.Is(err, growth.ErrNonFiniteCurve) {
			return nil, fmt.Errorf("species %s: %w", name, err)
		}
		return nil, err
	}

	if len(result.Warnings) > 0 {
		s.logger.Info("Population simulation ignored events",
			zap.String("project_id", req.ProjectID.String()),
			zap.String("species", name),
			zap.Strings("warnings", result.Warnings))
	}

	return &PopulationResponse{ProjectID: req.ProjectID, Species: species.CommonName, Result: result}, nil
}

func parseDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, required(field)
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invalid(field, "must be a date formatted YYYY-MM-DD")
	}
	return t, nil
}

// =====================================================
// Materialized series
// =====================================================

// RecomputeSeries rebuilds the materialized series of a project.
func (s *Service) RecomputeSeries(ctx context.Context, projectID uuid.UUID) (*timeseries.Result, error) {
	result, err := s.materializer.Recompute(ctx, projectID)
	if err != nil {
		return nil, projectErr(err)
	}
	return result, nil
}

// Series reads the materialized series of a project. It never recomputes.
func (s *Service) Series(ctx context.Context, projectID uuid.UUID) (*timeseries.Series, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, projectErr(err)
	}
	return s.materializer.Series(ctx, projectID)
}

// MarkSeriesStale flags a project's series for the recompute worker.
func (s *Service) MarkSeriesStale(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return projectErr(err)
	}
	return s.materializer.MarkStale(ctx, projectID)
}

// =====================================================
// Exports
// =====================================================

// ExportSeries renders a project's series, optionally archiving the file.
func (s *Service) ExportSeries(ctx context.Context, projectID uuid.UUID, format string, archive bool) (*ExportFile, error) {
	f, err := parseFormat(format)
	if err != nil {
		return nil, err
	}
	if archive && s.archiver == nil {
		return nil, ErrArchiveDisabled
	}

	series, err := s.Series(ctx, projectID)
	if err != nil {
		return nil, err
	}

	body, err := export.Render(f, export.SeriesTable(series), export.SeriesYearTable(series))
	if err != nil {
		return nil, err
	}
	return s.finishExport(ctx, projectID.String(), "series", f, body, archive)
}

// ExportPopulation runs a simulation and renders it.
func (s *Service) ExportPopulation(ctx context.Context, req *PopulationRequest, format string, archive bool) (*ExportFile, error) {
	f, err := parseFormat(format)
	if err != nil {
		return nil, err
	}
	if archive && s.archiver == nil {
		return nil, ErrArchiveDisabled
	}

	resp, err := s.SimulatePopulation(ctx, req)
	if err != nil {
		return nil, err
	}

	body, err := export.Render(f, export.PopulationTable(resp.Result))
	if err != nil {
		return nil, err
	}
	return s.finishExport(ctx, req.ProjectID.String(), "population", f, body, archive)
}

func (s *Service) finishExport(ctx context.Context, scope, name string, f export.Format, body []byte, archive bool) (*ExportFile, error) {
	file := &ExportFile{
		Filename:    fmt.Sprintf("%s-%s.%s", name, scope, f.Extension()),
		ContentType: f.ContentType(),
		Body:        body,
	}
	if !archive {
		return file, nil
	}

	key, err := s.archiver.Archive(ctx, scope, name, f, body)
	if err != nil {
		return nil, err
	}
	file.ArchiveKey = key
	return file, nil
}

func parseFormat(format string) (export.Format, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", invalid("format", err.Error())
	}
	return f, nil
}

// =====================================================
// Health
// =====================================================

// Ready reports whether the service can take traffic. Only the database is
// required; a cache outage degrades to recomputing.
func (s *Service) Ready(ctx context.Context) error {
	if s.dbCheck == nil {
		return nil
	}
	return s.dbCheck(ctx)
}

// Health probes the database and the cache.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "healthy",
		Database:   "ok",
		Cache:      "ok",
		CacheStats: s.cache.Stats(),
		Timestamp:  time.Now().UTC(),
	}

	if s.dbCheck != nil {
		if err := s.dbCheck(ctx); err != nil {
			s.logger.Error("Database health check failed", zap.Error(err))
			status.Database = "unavailable"
			status.Status = "degraded"
		}
	}
	if err := s.cache.Ping(ctx); err != nil {
		s.logger.Error("Cache health check failed", zap.Error(err))
		status.Cache = "unavailable"
		status.Status = "degraded"
	}
	return status
}
