package carbon

import (
	"time"

	"github.com/google/uuid"

	"nuwa/carbon-engine/internal/cache"
	"nuwa/carbon-engine/internal/growth"
	"nuwa/carbon-engine/internal/population"
)

// Query types of the parcel aggregation endpoint
const (
	QueryAggregated = "aggregated"
	QueryCO2        = "co2"
)

// DateLayout is the layout of simulation dates.
const DateLayout = "2006-01-02"

// GrowthCurveRequest asks for the curve of one species. A nil MaxYears uses
// the configured default.
type GrowthCurveRequest struct {
	SpeciesName string `json:"speciesName"`
	MaxYears    *int   `json:"maxYears"`
}

// GrowthCurveResponse is a generated curve
type GrowthCurveResponse struct {
	Model    string         `json:"model"`
	Species  string         `json:"species"`
	MaxYears int            `json:"maxYears"`
	Points   []growth.Point `json:"points"`
}

// BatchGrowthCurveRequest asks for several curves. Unless AllOrNothing is
// set, species that fail are reported and skipped.
type BatchGrowthCurveRequest struct {
	SpeciesNames []string `json:"speciesNames"`
	MaxYears     *int     `json:"maxYears"`
	AllOrNothing bool     `json:"allOrNothing"`
}

// SpeciesError explains why a species has no curve in a batch.
type SpeciesError struct {
	Species string   `json:"species"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// BatchGrowthCurveResponse
type BatchGrowthCurveResponse struct {
	Curves []GrowthCurveResponse `json:"curves"`
	Errors []SpeciesError        `json:"errors"`
}

// AggregateParcelsRequest selects the projects and the grouping. An empty
// ProjectIDs covers every project.
type AggregateParcelsRequest struct {
	ProjectIDs []uuid.UUID `json:"projectIds"`
	QueryType  string      `json:"queryType"`
}

// PopulationRequest describes a population simulation. Dates use DateLayout.
type PopulationRequest struct {
	ProjectID uuid.UUID          `json:"projectId"`
	Species   string             `json:"species"`
	StartDate string             `json:"startDate"`
	EndDate   string             `json:"endDate"`
	Events    []population.Event `json:"events"`
}

// PopulationResponse
type PopulationResponse struct {
	ProjectID uuid.UUID `json:"projectId"`
	Species   string    `json:"species"`
	*population.Result
}

// ExportFile is a rendered export. ArchiveKey is set when it was also
// stored in the archive.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	ArchiveKey  string
}

// HealthStatus reports the reachability of the backing services.
type HealthStatus struct {
	Status     string      `json:"status"`
	Database   string      `json:"database"`
	Cache      string      `json:"cache"`
	CacheStats cache.Stats `json:"cacheStats"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Healthy reports whether every dependency answered.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// ProjectSummary reports the size of a project, the state of its series and
// how complete its parcel data is.
type ProjectSummary struct {
	ProjectID   uuid.UUID `json:"projectId"`
	Name        string    `json:"name"`
	Parcels     int       `json:"parcels"`
	Area        int       `json:"area"`
	Individuals float64   `json:"individuals"`
	Species     []string  `json:"species"`
	// Co2eqStock is the current captured plus underground CO2eq in tonnes.
	Co2eqStock   float64          `json:"co2eqStock"`
	Series       *SeriesSummary   `json:"series,omitempty"`
	Completeness DataCompleteness `json:"completeness"`
}

// SeriesSummary is the state of the materialized series.
type SeriesSummary struct {
	Version    int64      `json:"version"`
	Stale      bool       `json:"stale"`
	RowCount   int        `json:"rowCount"`
	ComputedAt *time.Time `json:"computedAt,omitempty"`
}

// DataCompleteness scores the parcel data of a project. Score is the share
// of parcels without issues, 0 for a project without parcels.
type DataCompleteness struct {
	CompleteParcels int           `json:"completeParcels"`
	Score           float64       `json:"score"`
	Issues          []ParcelIssue `json:"issues"`
}

// ParcelIssue lists what keeps a parcel out of the estimates. Missing names
// parcel fields or species coefficients.
type ParcelIssue struct {
	ParcelID   uuid.UUID `json:"parcelId"`
	ParcelName string    `json:"parcelName"`
	Missing    []string  `json:"missing,omitempty"`
	Species    string    `json:"species,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}
