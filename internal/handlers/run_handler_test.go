package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/errors"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/pipeline"
)

type stubRuns struct {
	latest *pipeline.RunStats
}

func (s stubRuns) Latest() *pipeline.RunStats { return s.latest }

func TestRunHandler_Latest(t *testing.T) {
	t.Run("no run yet", func(t *testing.T) {
		router := gin.New()
		router.GET("/api/v1/runs/latest", NewRunHandler(stubRuns{}).Latest)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/latest", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		var response apierrors.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, apierrors.ErrNotFound, response.Error.Code)
	})

	t.Run("returns summary with totals", func(t *testing.T) {
		started := time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)
		stats := &pipeline.RunStats{
			RunID:      "run-1",
			StartedAt:  started,
			FinishedAt: started.Add(90 * time.Second),
			Phases: []pipeline.PhaseStats{
				{Phase: "parcel", Selected: 10, Enriched: 8, NoData: 1, Failed: 1},
				{Phase: "transactions", Selected: 10, Enriched: 4, SkippedUnchanged: 6},
			},
		}
		router := gin.New()
		router.GET("/api/v1/runs/latest", NewRunHandler(stubRuns{latest: stats}).Latest)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/latest", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			RunID  string                `json:"runId"`
			Phases []pipeline.PhaseStats `json:"phases"`
			Totals pipeline.PhaseStats   `json:"totals"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "run-1", response.RunID)
		assert.Len(t, response.Phases, 2)
		assert.Equal(t, 20, response.Totals.Selected)
		assert.Equal(t, 12, response.Totals.Enriched)
		assert.Equal(t, 6, response.Totals.SkippedUnchanged)
		assert.Equal(t, 1, response.Totals.Failed)
	})
}
