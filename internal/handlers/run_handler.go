package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/errors"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/pipeline"
)

// RunSource exposes the summary of the last finished run.
type RunSource interface {
	Latest() *pipeline.RunStats
}

// RunHandler reports pipeline runs.
type RunHandler struct {
	runs RunSource
}

// NewRunHandler creates a new RunHandler instance.
func NewRunHandler(runs RunSource) *RunHandler {
	return &RunHandler{runs: runs}
}

// RunResponse is a run summary with per-phase and total counts.
type RunResponse struct {
	*pipeline.RunStats
	Totals pipeline.PhaseStats `json:"totals"`
}

// Latest handles GET /api/v1/runs/latest.
func (h *RunHandler) Latest(c *gin.Context) {
	stats := h.runs.Latest()
	if stats == nil {
		apierrors.NotFound(c, "No run has finished since the server started")
		return
	}
	c.JSON(http.StatusOK, RunResponse{RunStats: stats, Totals: stats.Totals()})
}
