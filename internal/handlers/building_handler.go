package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/errors"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/services"
)

// BuildingHandler serves the building registry.
type BuildingHandler struct {
	service services.RegistryService
}

// NewBuildingHandler creates a new BuildingHandler instance.
func NewBuildingHandler(service services.RegistryService) *BuildingHandler {
	return &BuildingHandler{service: service}
}

// BuildingRequest is the path of GET /api/v1/buildings/:bbl.
type BuildingRequest struct {
	BBL string `uri:"bbl" binding:"required,len=10,numeric"`
}

// Get handles GET /api/v1/buildings/:bbl and returns the building with its
// latest intelligence.
func (h *BuildingHandler) Get(c *gin.Context) {
	var req BuildingRequest
	if err := c.ShouldBindUri(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid path parameters", nil)
		return
	}

	detail, err := h.service.GetBuilding(c.Request.Context(), req.BBL)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidBBL):
			apierrors.BadRequest(c, services.ErrInvalidBBL.Error(), map[string]interface{}{"bbl": req.BBL})
		case errors.Is(err, services.ErrBuildingNotFound):
			apierrors.NotFound(c, "Building not found")
		default:
			apierrors.InternalServerError(c, "Failed to load building", err)
		}
		return
	}

	c.JSON(http.StatusOK, detail)
}
