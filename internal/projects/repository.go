package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

const seriesBatchSize = 500

// Repository is the data access layer for species, parcels, projects and the
// materialized sequestration series.
type Repository interface {
	// Species
	CreateSpecies(ctx context.Context, species *Species) error
	GetSpeciesByName(ctx context.Context, name string) (*Species, error)
	ListSpeciesByNames(ctx context.Context, names []string) ([]Species, error)
	ListSpecies(ctx context.Context) ([]Species, error)

	// Ecosystems
	CreateEcosystem(ctx context.Context, ecosystem *Ecosystem) error

	// Projects and parcels
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context, ids []uuid.UUID) ([]Project, error)
	CreateParcel(ctx context.Context, parcel *Parcel) error
	ListParcels(ctx context.Context, projectIDs []uuid.UUID) ([]Parcel, error)

	// Materialized series
	ReplaceSeries(ctx context.Context, projectID uuid.UUID, rows []ParcelYearCo2, state *ProjectSeriesState) error
	ListSeries(ctx context.Context, projectIDs []uuid.UUID) ([]ParcelYearCo2, error)
	ReadSeries(ctx context.Context, projectID uuid.UUID) (*ProjectSeriesState, []ParcelYearCo2, error)
	GetSeriesState(ctx context.Context, projectID uuid.UUID) (*ProjectSeriesState, error)
	MarkSeriesStale(ctx context.Context, projectID uuid.UUID) error
	ListStaleProjects(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// GormRepository implements Repository on top of gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new gorm-backed repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the tables of this package.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// =====================================================
// Species
// =====================================================

func (r *GormRepository) CreateSpecies(ctx context.Context, species *Species) error {
	if err := r.db.WithContext(ctx).Create(species).Error; err != nil {
		return fmt.Errorf("failed to create species: %w", err)
	}
	return nil
}

func (r *GormRepository) GetSpeciesByName(ctx context.Context, name string) (*Species, error) {
	var species Species
	err := r.db.WithContext(ctx).Where("common_name = ?", name).Take(&species).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get species: %w", err)
	}
	return &species, nil
}

func (r *GormRepository) ListSpeciesByNames(ctx context.Context, names []string) ([]Species, error) {
	var species []Species
	if len(names) == 0 {
		return species, nil
	}
	if err := r.db.WithContext(ctx).Where("common_name IN ?", names).Find(&species).Error; err != nil {
		return nil, fmt.Errorf("failed to list species: %w", err)
	}
	return species, nil
}

func (r *GormRepository) ListSpecies(ctx context.Context) ([]Species, error) {
	var species []Species
	if err := r.db.WithContext(ctx).Order("common_name").Find(&species).Error; err != nil {
		return nil, fmt.Errorf("failed to list species: %w", err)
	}
	return species, nil
}

// =====================================================
// Ecosystems, projects and parcels
// =====================================================

func (r *GormRepository) CreateEcosystem(ctx context.Context, ecosystem *Ecosystem) error {
	if err := r.db.WithContext(ctx).Create(ecosystem).Error; err != nil {
		return fmt.Errorf("failed to create ecosystem: %w", err)
	}
	return nil
}

func (r *GormRepository) CreateProject(ctx context.Context, project *Project) error {
	if err := r.db.WithContext(ctx).Omit("Parcels").Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *GormRepository) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListProjects returns the projects with the given IDs, or every project
// when ids is empty.
func (r *GormRepository) ListProjects(ctx context.Context, ids []uuid.UUID) ([]Project, error) {
	var projects []Project
	query := r.db.WithContext(ctx).Order("created_at")
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	if err := query.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (r *GormRepository) CreateParcel(ctx context.Context, parcel *Parcel) error {
	if err := r.db.WithContext(ctx).Omit("Ecosystem").Create(parcel).Error; err != nil {
		return fmt.Errorf("failed to create parcel: %w", err)
	}
	return nil
}

// ListParcels returns the parcels of the given projects with their ecosystem,
// or every parcel when projectIDs is empty.
func (r *GormRepository) ListParcels(ctx context.Context, projectIDs []uuid.UUID) ([]Parcel, error) {
	var parcels []Parcel
	query := r.db.WithContext(ctx).Preload("Ecosystem").Order("created_at")
	if len(projectIDs) > 0 {
		query = query.Where("project_id IN ?", projectIDs)
	}
	if err := query.Find(&parcels).Error; err != nil {
		return nil, fmt.Errorf("failed to list parcels: %w", err)
	}
	return parcels, nil
}

// =====================================================
// Materialized series
// =====================================================

// ReplaceSeries swaps the project's series for rows in one transaction and
// bumps the state version. Readers see either the old or the new series.
//
// The state row is locked first, so recomputes of one project serialize
// across processes. state.Generation must hold the generation read before the
// parcels were loaded; if MarkSeriesStale ran since then the new state stays
// stale.
func (r *GormRepository) ReplaceSeries(ctx context.Context, projectID uuid.UUID, rows []ParcelYearCo2, state *ProjectSeriesState) error {
	state.ProjectID = projectID
	state.RowCount = len(rows)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockSeriesState(tx, projectID)
		if err != nil {
			return err
		}

		if err := tx.Where("project_id = ?", projectID).Delete(&ParcelYearCo2{}).Error; err != nil {
			return fmt.Errorf("failed to delete series: %w", err)
		}

		if len(rows) > 0 {
			for i := range rows {
				rows[i].ID = 0
				rows[i].ProjectID = projectID
			}
			if err := tx.CreateInBatches(rows, seriesBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert series: %w", err)
			}
		}

		state.Version = current.Version + 1
		state.Stale = current.Generation != state.Generation
		state.Generation = current.Generation
		if err := tx.Save(state).Error; err != nil {
			return fmt.Errorf("failed to save series state: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace series: %w", err)
	}
	return nil
}

// lockSeriesState creates the state row if needed and locks it for the rest
// of the transaction. sqlite ignores the locking clause; its writers are
// already serialized.
func lockSeriesState(tx *gorm.DB, projectID uuid.UUID) (*ProjectSeriesState, error) {
	placeholder := &ProjectSeriesState{ProjectID: projectID, Stale: true}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(placeholder).Error; err != nil {
		return nil, fmt.Errorf("failed to create series state: %w", err)
	}

	var current ProjectSeriesState
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ?", projectID).
		Take(&current).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock series state: %w", err)
	}
	return &current, nil
}

// ReadSeries returns the state and rows of one project as of a single
// commit. State is nil when the project was never computed or marked.
func (r *GormRepository) ReadSeries(ctx context.Context, projectID uuid.UUID) (*ProjectSeriesState, []ParcelYearCo2, error) {
	var state *ProjectSeriesState
	var rows []ParcelYearCo2

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY").Error; err != nil {
				return fmt.Errorf("failed to set isolation level: %w", err)
			}
		}

		var current ProjectSeriesState
		err := tx.Where("project_id = ?", projectID).Take(&current).Error
		switch {
		case err == nil:
			state = &current
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to get series state: %w", err)
		}

		if err := tx.Where("project_id = ?", projectID).Order("year, parcel_id, species").Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to list series: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read series: %w", err)
	}
	return state, rows, nil
}

func (r *GormRepository) ListSeries(ctx context.Context, projectIDs []uuid.UUID) ([]ParcelYearCo2, error) {
	var rows []ParcelYearCo2
	query := r.db.WithContext(ctx).Order("year, parcel_id, species")
	if len(projectIDs) > 0 {
		query = query.Where("project_id IN ?", projectIDs)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	return rows, nil
}

func (r *GormRepository) GetSeriesState(ctx context.Context, projectID uuid.UUID) (*ProjectSeriesState, error) {
	var state ProjectSeriesState
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Take(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get series state: %w", err)
	}
	return &state, nil
}

// MarkSeriesStale flags the project's series for recompute and bumps its
// generation, so a recompute that already loaded the parcels keeps the flag.
func (r *GormRepository) MarkSeriesStale(ctx context.Context, projectID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		placeholder := &ProjectSeriesState{ProjectID: projectID, Stale: true}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(placeholder).Error; err != nil {
			return err
		}
		return tx.Model(&ProjectSeriesState{}).
			Where("project_id = ?", projectID).
			Updates(map[string]interface{}{
				"stale":      true,
				"generation": gorm.Expr("generation + 1"),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to mark series stale: %w", err)
	}
	return nil
}

// ListStaleProjects returns projects whose series is stale or was never
// computed.
func (r *GormRepository) ListStaleProjects(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&Project{}).
		Joins("LEFT JOIN project_series_states s ON s.project_id = projects.id").
		Where("s.project_id IS NULL OR s.stale = ?", true).
		Order("projects.created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("projects.id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale projects: %w", err)
	}
	return ids, nil
}
