package carbon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the carbon engine
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new carbon handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the engine routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// Growth curves
	router.GET("/growth-curves/model", h.getGrowthModel)
	router.POST("/growth-curves", h.generateCurve)
	router.POST("/growth-curves/batch", h.generateCurves)

	// Parcels and rollups
	router.POST("/parcels/aggregate", h.aggregateParcels)
	router.GET("/dashboard/cards", h.getDashboardCards)

	// Population
	router.POST("/population", h.simulatePopulation)
	router.POST("/population/export", h.exportPopulation)

	projects := router.Group("/projects/:id")
	{
		projects.GET("/summary", h.getProjectSummary)
		projects.GET("/parcels/snapshots", h.getParcelSnapshots)
		projects.GET("/series", h.getSeries)
		projects.POST("/series/recompute", h.recomputeSeries)
		projects.POST("/series/stale", h.markSeriesStale)
		projects.GET("/series/export", h.exportSeries)
	}
}

// RegisterHealthRoutes registers the health, liveness and readiness probes
func (h *Handler) RegisterHealthRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.GET("/health/live", h.Live)
	router.GET("/health/ready", h.Ready)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	status := h.service.Health(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Live handles GET /health/live
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now().UTC()})
}

// Ready handles GET /health/ready
func (h *Handler) Ready(c *gin.Context) {
	if err := h.service.Ready(c.Request.Context()); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "timestamp": time.Now().UTC()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now().UTC()})
}

// =====================================================
// Growth curves
// =====================================================

// getGrowthModel handles GET /api/v1/growth-curves/model
func (h *Handler) getGrowthModel(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.GrowthModel())
}

// generateCurve handles POST /api/v1/growth-curves
func (h *Handler) generateCurve(c *gin.Context) {
	var req GrowthCurveRequest
	if !h.bind(c, &req) {
		return
	}

	curve, err := h.service.GenerateCurve(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to generate growth curve", err, zap.String("species", req.SpeciesName))
		return
	}
	c.JSON(http.StatusOK, curve)
}

// generateCurves handles POST /api/v1/growth-curves/batch
func (h *Handler) generateCurves(c *gin.Context) {
	var req BatchGrowthCurveRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.GenerateCurves(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to generate growth curves", err, zap.Int("species", len(req.SpeciesNames)))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// =====================================================
// Parcels and rollups
// =====================================================

// aggregateParcels handles POST /api/v1/parcels/aggregate
func (h *Handler) aggregateParcels(c *gin.Context) {
	var req AggregateParcelsRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.service.AggregateParcels(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to aggregate parcels", err, zap.String("query_type", req.QueryType))
		return
	}
	c.JSON(http.StatusOK, result)
}

// getProjectSummary handles GET /api/v1/projects/:id/summary
func (h *Handler) getProjectSummary(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	summary, err := h.service.ProjectSummary(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get project summary", err, zap.String("project_id", id.String()))
		return
	}
	c.JSON(http.StatusOK, summary)
}

// getParcelSnapshots handles GET /api/v1/projects/:id/parcels/snapshots
func (h *Handler) getParcelSnapshots(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	set, err := h.service.ParcelSnapshots(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get parcel snapshots", err, zap.String("project_id", id.String()))
		return
	}
	c.JSON(http.StatusOK, set)
}

// getDashboardCards handles GET /api/v1/dashboard/cards
func (h *Handler) getDashboardCards(c *gin.Context) {
	var projectID *uuid.UUID
	if raw := c.Query("projectId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(c, "Invalid project ID", invalid("projectId", "must be a UUID"))
			return
		}
		projectID = &id
	}

	cards, err := h.service.DashboardCards(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, "Failed to get dashboard cards", err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

// =====================================================
// Population
// =====================================================

// simulatePopulation handles POST /api/v1/population
func (h *Handler) simulatePopulation(c *gin.Context) {
	var req PopulationRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.service.SimulatePopulation(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "Failed to simulate population", err,
			zap.String("project_id", req.ProjectID.String()),
			zap.String("species", req.Species))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// exportPopulation handles POST /api/v1/population/export
func (h *Handler) exportPopulation(c *gin.Context) {
	var req PopulationRequest
	if !h.bind(c, &req) {
		return
	}

	file, err := h.service.ExportPopulation(c.Request.Context(), &req, c.Query("format"), h.archiveFlag(c))
	if err != nil {
		h.fail(c, "Failed to export population", err, zap.String("project_id", req.ProjectID.String()))
		return
	}
	h.sendFile(c, file)
}

// =====================================================
// Materialized series
// =====================================================

// getSeries handles GET /api/v1/projects/:id/series
func (h *Handler) getSeries(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	series, err := h.service.Series(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get series", err, zap.String("project_id", id.String()))
		return
	}
	c.JSON(http.StatusOK, series)
}

// recomputeSeries handles POST /api/v1/projects/:id/series/recompute
func (h *Handler) recomputeSeries(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	result, err := h.service.RecomputeSeries(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to recompute series", err, zap.String("project_id", id.String()))
		return
	}
	c.JSON(http.StatusOK, result)
}

// markSeriesStale handles POST /api/v1/projects/:id/series/stale
func (h *Handler) markSeriesStale(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	if err := h.service.MarkSeriesStale(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to mark series stale", err, zap.String("project_id", id.String()))
		return
	}
	c.Status(http.StatusAccepted)
}

// exportSeries handles GET /api/v1/projects/:id/series/export
func (h *Handler) exportSeries(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	file, err := h.service.ExportSeries(c.Request.Context(), id, c.Query("format"), h.archiveFlag(c))
	if err != nil {
		h.fail(c, "Failed to export series", err, zap.String("project_id", id.String()))
		return
	}
	h.sendFile(c, file)
}

// =====================================================
// Helpers
// =====================================================

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, "Invalid request body", invalid("body", err.Error()))
		return false
	}
	return true
}

func (h *Handler) projectID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, "Invalid project ID", invalid("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) archiveFlag(c *gin.Context) bool {
	archive, _ := strconv.ParseBool(c.Query("archive"))
	return archive
}

func (h *Handler) sendFile(c *gin.Context, file *ExportFile) {
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	if file.ArchiveKey != "" {
		c.Header("X-Archive-Key", file.ArchiveKey)
	}
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

// fail writes the structured error body. Server errors are logged with the
// underlying error; client errors only at debug level.
func (h *Handler) fail(c *gin.Context, msg string, err error, fields ...zap.Field) {
	status, body := classify(err)
	fields = append(fields, zap.Error(err), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
	} else {
		h.logger.Debug(msg, fields...)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": body})
}
