package handler

import (
	"errors"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ManifestHandler struct {
	manifestService service.ManifestService
}

func NewManifestHandler(manifestService service.ManifestService) *ManifestHandler {
	return &ManifestHandler{manifestService: manifestService}
}

func (h *ManifestHandler) RegisterRoutes(router *gin.RouterGroup) {
	manifests := router.Group("/api/manifests")
	{
		manifests.GET("", h.ListManifests)
		manifests.GET("/:id", h.GetManifest)
		manifests.POST("/generate", middleware.RequireAuth(), h.GenerateManifest)
		manifests.PATCH("/:id/close", middleware.RequireAuth(), h.CloseManifest)
		manifests.POST("/:id/retire-batches", middleware.RequireAuth(), h.RetireBatches)
	}
}

// GenerateManifest runs the consolidation pipeline for a destination
// @Summary      Generate manifest
// @Description  Consolidates every eligible batch for the destination into the day's open manifest, retires the batches, and optionally dispatches a shipment. Regenerating on the same day updates the same open manifest.
// @Tags         manifests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateManifestRequest  true  "Generate Manifest Payload"
// @Success      200      {object}  response.Response{data=service.ManifestResponse}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/manifests/generate [post]
func (h *ManifestHandler) GenerateManifest(c *gin.Context) {
	var req service.GenerateManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID := c.GetString("userID")

	manifest, err := h.manifestService.GenerateManifest(c.Request.Context(), userID, req)
	if err != nil {
		// A soft stage failure still carries the committed manifest; report
		// both so the operator can retry the failed stage.
		var stageErr *service.StageError
		if errors.As(err, &stageErr) && manifest != nil {
			c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
				"manifest":     manifest,
				"failed_stage": stageErr.Stage,
				"stage_error":  stageErr.Err.Error(),
			}))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	if manifest == nil {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
			"manifest": nil,
			"message":  "No eligible batches for this destination",
		}))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, manifest))
}

// ListManifests handles retrieving paginated manifests
// @Summary      List manifests
// @Description  Retrieves a paginated list of manifests, filterable by status
// @Tags         manifests
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Param        status  query     string  false  "Filter by status (OPEN, CLOSED)"
// @Success      200  {object}  response.Response{data=object}
// @Failure      500  {object}  response.Response
// @Router       /api/manifests [get]
func (h *ManifestHandler) ListManifests(c *gin.Context) {
	params := pagination.Parse(c)
	status := c.Query("status")

	manifests, total, err := h.manifestService.ListManifests(c.Request.Context(), params.Page, params.Limit, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve manifests: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"manifests": manifests,
		"total":     total,
		"page":      params.Page,
		"limit":     params.Limit,
	}))
}

// GetManifest retrieves a manifest with its line items
// @Summary      Get manifest
// @Description  Retrieves a manifest by ID including its ordered line items
// @Tags         manifests
// @Produce      json
// @Param        id   path      string  true  "Manifest ID"
// @Success      200  {object}  response.Response{data=service.ManifestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/manifests/{id} [get]
func (h *ManifestHandler) GetManifest(c *gin.Context) {
	manifest, err := h.manifestService.GetManifest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, manifest))
}

// CloseManifest closes an open manifest
// @Summary      Close manifest
// @Description  Closes an open manifest; closed manifests are immutable and a later generation for the same destination opens a fresh one
// @Tags         manifests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Manifest ID"
// @Success      200  {object}  response.Response{data=service.ManifestResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/manifests/{id}/close [patch]
func (h *ManifestHandler) CloseManifest(c *gin.Context) {
	userID := c.GetString("userID")

	manifest, err := h.manifestService.CloseManifest(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, manifest))
}

// RetireBatches retries the retirement stage for a manifest
// @Summary      Retire manifest batches
// @Description  Re-runs batch retirement for a manifest from its persisted line items; already-retired batches are skipped
// @Tags         manifests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Manifest ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      404  {object}  response.Response
// @Router       /api/manifests/{id}/retire-batches [post]
func (h *ManifestHandler) RetireBatches(c *gin.Context) {
	userID := c.GetString("userID")

	retired, err := h.manifestService.RetireManifestBatches(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"retired": retired,
	}))
}
