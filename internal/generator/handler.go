package generator

import (
	"net/http"

	httperr "github.com/loglens-lab/project-loglens/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the sample-log generation route.
func RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/analytics/generate-sample-logs", handleGenerate)
}

// handleGenerate handles POST /v1/analytics/generate-sample-logs.
func handleGenerate(c *gin.Context) {
	var req struct {
		OutputPath   string `json:"output_path" binding:"required"`
		NumberOfLogs int    `json:"number_of_logs" binding:"required,gt=0"`
		NumberOfDays int    `json:"number_of_days" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid request body",
			Details:   err.Error(),
		})
		return
	}

	summary, err := WriteFile(req.OutputPath, Options{
		NumberOfLogs: req.NumberOfLogs,
		NumberOfDays: req.NumberOfDays,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to generate sample logs",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}
