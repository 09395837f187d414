package pipeline

import (
	"errors"
	"log/slog"
	"net/http"

	httperr "github.com/loglens-lab/project-loglens/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the file-processing route.
func (p *Processor) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/analytics/process-file", p.HandleProcessFile)
}

// HandleProcessFile handles POST /v1/analytics/process-file. The request body
// names a log file on local storage; the response is the run summary.
func (p *Processor) HandleProcessFile(c *gin.Context) {
	var req struct {
		FilePath  string `json:"file_path" binding:"required"`
		BatchSize int    `json:"batch_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid request body",
			Details:   err.Error(),
		})
		return
	}

	result, err := p.ProcessFile(c.Request.Context(), req.FilePath, req.BatchSize)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpSourceUnavailableError,
				Message:   "Log source could not be read",
				Details:   err.Error(),
			})
			return
		}

		slog.Error("Pipeline run failed", "path", req.FilePath, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Processing failed",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
