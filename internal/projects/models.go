package projects

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"nuwa/carbon-engine/internal/growth"
)

// Species is reference data for a tree species and its growth coefficients
type Species struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CommonName     string            `gorm:"not null;uniqueIndex" json:"common_name"`
	ScientificName string            `json:"scientific_name"`
	Growth         growth.Parameters `gorm:"embedded" json:"growth_parameters"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (s *Species) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Ecosystem is soil reference data; SOC is soil organic carbon per hectare
type Ecosystem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      string    `gorm:"not null" json:"type"`
	SOC       float64   `gorm:"column:soc" json:"soc"`
	BD        float64   `gorm:"column:bd" json:"bd"`
	C         float64   `gorm:"column:c" json:"c"`
	Depth     float64   `gorm:"column:profundidad" json:"profundidad"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Ecosystem) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Project represents a reforestation project. The financial figures are
// entered by users and only summed by the rollups.
type Project struct {
	ID                      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name                    string         `gorm:"not null" json:"name"`
	Description             string         `json:"description"`
	Impact                  float64        `gorm:"not null;default:0" json:"impact"`
	TotalInvestment         float64        `gorm:"not null;default:0" json:"total_investment"`
	TotalBankableInvestment float64        `gorm:"not null;default:0" json:"total_bankable_investment"`
	TotalIncome             float64        `gorm:"not null;default:0" json:"total_income"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"-"`
	Parcels                 []Parcel       `gorm:"foreignKey:ProjectID" json:"parcels,omitempty"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Parcel is a planted area. Species holds the common names planted on it in
// order; the first entry is the primary species.
type Parcel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `json:"name"`
	Area        int            `gorm:"not null;default:0" json:"area"` // hectares
	AreaFactor  float64        `gorm:"not null;default:0" json:"area_factor"`
	Species     SpeciesList    `json:"species"`
	EcosystemID *uuid.UUID     `gorm:"type:uuid;index" json:"ecosystem_id,omitempty"`
	ProjectID   *uuid.UUID     `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Ecosystem   *Ecosystem     `gorm:"foreignKey:EcosystemID" json:"ecosystem,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (p *Parcel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// SpeciesList is an ordered list of species common names, stored as a
// postgres text array.
type SpeciesList []string

func (l SpeciesList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *SpeciesList) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = SpeciesList(arr)
	return nil
}

// GormDataType lets gorm parse the field; GormDBDataType picks the column type.
func (SpeciesList) GormDataType() string {
	return "text"
}

// GormDBDataType keeps the column portable to sqlite, which has no arrays.
func (SpeciesList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Individuals is the number of trees on the parcel.
func (p Parcel) Individuals() float64 {
	return p.AreaFactor * float64(p.Area)
}

// PrimarySpecies returns the first species of the parcel, or "".
func (p Parcel) PrimarySpecies() string {
	names := p.DistinctSpecies()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// DistinctSpecies returns the trimmed, non-empty species names in order,
// without duplicates.
func (p Parcel) DistinctSpecies() []string {
	seen := make(map[string]struct{}, len(p.Species))
	names := make([]string, 0, len(p.Species))
	for _, raw := range p.Species {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// HasSpecies reports whether name is planted on the parcel.
func (p Parcel) HasSpecies(name string) bool {
	for _, s := range p.DistinctSpecies() {
		if s == name {
			return true
		}
	}
	return false
}

// EcosystemType returns the ecosystem label of the parcel, or "" when unknown.
func (p Parcel) EcosystemType() string {
	if p.Ecosystem == nil {
		return ""
	}
	return p.Ecosystem.Type
}

// ParcelYearCo2 is one materialized row of a project's sequestration series.
// Rows are unique per project so a parcel that moved keeps its old rows in the
// previous project's series until that project is recomputed.
type ParcelYearCo2 struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	ProjectID     uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_project_parcel_species_year,priority:1" json:"project_id"`
	ParcelID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_project_parcel_species_year,priority:2" json:"parcel_id"`
	Species       string     `gorm:"not null;uniqueIndex:idx_project_parcel_species_year,priority:3" json:"species"`
	Year          int        `gorm:"not null;uniqueIndex:idx_project_parcel_species_year,priority:4" json:"year"`
	EcosystemType string     `json:"ecosystem"`
	EcosystemID   *uuid.UUID `gorm:"type:uuid" json:"ecosystem_id,omitempty"`
	Co2eqTons     float64    `gorm:"not null;default:0" json:"co2eq_tons"`
}

func (ParcelYearCo2) TableName() string {
	return "parcel_year_co2"
}

// ProjectSeriesState tracks the materialized series of a project. Version is
// bumped by every recompute; Generation by every MarkSeriesStale.
type ProjectSeriesState struct {
	ProjectID      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"project_id"`
	Version        int64          `gorm:"not null;default:0" json:"version"`
	Generation     int64          `gorm:"not null;default:0" json:"generation"`
	MaxYears       int            `json:"max_years"`
	RowCount       int            `json:"row_count"`
	Stale          bool           `gorm:"not null;default:false;index" json:"stale"`
	SkippedSpecies datatypes.JSON `json:"skipped_species,omitempty"`
	ComputedAt     *time.Time     `json:"computed_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Models lists every table owned by this package, for migrations.
func Models() []interface{} {
	return []interface{}{
		&Species{},
		&Ecosystem{},
		&Project{},
		&Parcel{},
		&ParcelYearCo2{},
		&ProjectSeriesState{},
	}
}
