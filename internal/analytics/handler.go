package analytics

import (
	"errors"
	"net/http"

	httperr "github.com/loglens-lab/project-loglens/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the analytics query routes.
func (e *Engine) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/analytics/metrics", e.HandleRangeMetrics)
	r.GET("/v1/analytics/metrics/daily/:date", e.HandleDailyMetrics)
	r.GET("/v1/analytics/stats", e.HandleStats)
	r.DELETE("/v1/analytics/data", e.HandleClearData)
}

// HandleRangeMetrics handles GET /v1/analytics/metrics?start_date=&end_date=
func (e *Engine) HandleRangeMetrics(c *gin.Context) {
	var query struct {
		StartDate string `form:"start_date" binding:"required"`
		EndDate   string `form:"end_date" binding:"required"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	metrics, err := e.MetricsForRange(query.StartDate, query.EndDate)
	if err != nil {
		writeQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// HandleDailyMetrics handles GET /v1/analytics/metrics/daily/:date
func (e *Engine) HandleDailyMetrics(c *gin.Context) {
	metrics, err := e.DailyMetrics(c.Param("date"))
	if err != nil {
		writeQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// HandleStats handles GET /v1/analytics/stats
func (e *Engine) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, e.Stats())
}

// HandleClearData handles DELETE /v1/analytics/data
func (e *Engine) HandleClearData(c *gin.Context) {
	e.Reset()
	c.Status(http.StatusNoContent)
}

func writeQueryError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid metrics query",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   "Failed to compute metrics",
		Details:   err.Error(),
	})
}
