package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	batchService service.BatchService
}

func NewBatchHandler(batchService service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

func (h *BatchHandler) RegisterRoutes(router *gin.RouterGroup) {
	batches := router.Group("/api/batches")
	{
		batches.GET("", h.ListBatches)
		batches.GET("/:id", h.GetBatch)
		batches.POST("", middleware.RequireAuth(), h.CreateBatch)
		batches.PUT("/:id", middleware.RequireAuth(), h.UpdateBatch)
		batches.DELETE("/:id", middleware.RequireAuth(), h.DeleteBatch)
		batches.PATCH("/:id/resolve-shortages", middleware.RequireAuth(), h.ResolveShortages)
	}
}

// ListBatches handles retrieving paginated production batches
// @Summary      List production batches
// @Description  Retrieves a paginated list of production batches, filterable by status and destination
// @Tags         batches
// @Produce      json
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Param        status       query     string  false  "Filter by status (INCOMPLETE, AVAILABLE, RETIRED)"
// @Param        destination  query     string  false  "Filter by destination (accent and case insensitive)"
// @Success      200  {object}  response.Response{data=object}
// @Failure      500  {object}  response.Response
// @Router       /api/batches [get]
func (h *BatchHandler) ListBatches(c *gin.Context) {
	params := pagination.Parse(c)
	status := c.Query("status")
	destination := c.Query("destination")

	batches, total, err := h.batchService.ListBatches(c.Request.Context(), params.Page, params.Limit, status, destination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve batches: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"batches": batches,
		"total":   total,
		"page":    params.Page,
		"limit":   params.Limit,
	}))
}

// GetBatch retrieves a single production batch by ID
// @Summary      Get batch
// @Description  Retrieves a production batch by ID
// @Tags         batches
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.BatchResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/batches/{id} [get]
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batch, err := h.batchService.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// CreateBatch registers a finished production batch
// @Summary      Create batch
// @Description  Registers a production batch; batches flagged with shortages enter as INCOMPLETE
// @Tags         batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateBatchRequest  true  "Create Batch Payload"
// @Success      201      {object}  response.Response{data=service.BatchResponse}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/batches [post]
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req service.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID := c.GetString("userID")

	batch, err := h.batchService.CreateBatch(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// UpdateBatch updates a batch that has not been retired
// @Summary      Update batch
// @Description  Updates an existing batch's details by ID; retired batches are immutable
// @Tags         batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Batch ID"
// @Param        payload  body      service.UpdateBatchRequest  true  "Update Batch Payload"
// @Success      200      {object}  response.Response{data=service.BatchResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/batches/{id} [put]
func (h *BatchHandler) UpdateBatch(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Batch ID is missing"))
		return
	}

	var req service.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID := c.GetString("userID")

	batch, err := h.batchService.UpdateBatch(c.Request.Context(), userID, id, req)
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// DeleteBatch removes a batch that has not been retired
// @Summary      Delete batch
// @Description  Deletes a batch by ID; retired batches stay as manifest history
// @Tags         batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/batches/{id} [delete]
func (h *BatchHandler) DeleteBatch(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Batch ID is missing"))
		return
	}

	userID := c.GetString("userID")

	if err := h.batchService.DeleteBatch(c.Request.Context(), userID, id); err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Batch deleted successfully"))
}

// ResolveShortages moves an INCOMPLETE batch into the consolidation pool
// @Summary      Resolve batch shortages
// @Description  Marks a batch's shortages as resolved, making it AVAILABLE for consolidation
// @Tags         batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.BatchResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/batches/{id}/resolve-shortages [patch]
func (h *BatchHandler) ResolveShortages(c *gin.Context) {
	userID := c.GetString("userID")

	batch, err := h.batchService.ResolveShortages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}
