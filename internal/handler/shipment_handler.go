package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ShipmentHandler struct {
	shipmentService service.ShipmentService
}

func NewShipmentHandler(shipmentService service.ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{shipmentService: shipmentService}
}

func (h *ShipmentHandler) RegisterRoutes(router *gin.RouterGroup) {
	shipments := router.Group("/api/shipments")
	{
		shipments.GET("", h.ListShipments)
		shipments.GET("/:id", h.GetShipment)
		shipments.POST("", middleware.RequireAuth(), h.CreateShipment)
		shipments.POST("/consolidate", middleware.RequireAuth(), h.ConsolidateShipment)
		shipments.PATCH("/:id/status", middleware.RequireAuth(), h.AdvanceStatus)
		shipments.DELETE("/:id", middleware.RequireAuth(), h.DeleteShipment)
	}
}

// CreateShipment dispatches a single manifest
// @Summary      Create shipment
// @Description  Creates a PENDING shipment for one manifest and closes that manifest; a manifest can back at most one shipment
// @Tags         shipments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateShipmentRequest  true  "Create Shipment Payload"
// @Success      201      {object}  response.Response{data=service.ShipmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/shipments [post]
func (h *ShipmentHandler) CreateShipment(c *gin.Context) {
	var req service.CreateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID := c.GetString("userID")

	shipment, err := h.shipmentService.CreateShipmentForManifest(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, shipment))
}

// ConsolidateShipment bundles every unassigned manifest into one shipment
// @Summary      Consolidate manifests into a shipment
// @Description  Collects all manifests not yet assigned to any shipment into a single PENDING shipment and closes them
// @Tags         shipments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ConsolidateShipmentRequest  true  "Consolidate Shipment Payload"
// @Success      201      {object}  response.Response{data=service.ShipmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/shipments/consolidate [post]
func (h *ShipmentHandler) ConsolidateShipment(c *gin.Context) {
	var req service.ConsolidateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID := c.GetString("userID")

	shipment, err := h.shipmentService.CreateShipmentFromPendingManifests(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	if shipment == nil {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
			"shipment": nil,
			"message":  "No unassigned manifests to consolidate",
		}))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, shipment))
}

// AdvanceStatus moves a shipment along its lifecycle
// @Summary      Advance shipment status
// @Description  Advances a shipment to IN_TRANSIT, DELIVERED, or CANCELLED; the state machine is forward-only and terminal states are final
// @Tags         shipments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Shipment ID"
// @Param        payload  body      service.AdvanceStatusRequest  true  "Advance Status Payload"
// @Success      200      {object}  response.Response{data=service.ShipmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/shipments/{id}/status [patch]
func (h *ShipmentHandler) AdvanceStatus(c *gin.Context) {
	var req service.AdvanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID := c.GetString("userID")

	shipment, err := h.shipmentService.AdvanceStatus(c.Request.Context(), userID, c.Param("id"), req.Status)
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, shipment))
}

// DeleteShipment removes a shipment record
// @Summary      Delete shipment
// @Description  Deletes a shipment and its manifest links; the manifests stay CLOSED
// @Tags         shipments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Shipment ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/shipments/{id} [delete]
func (h *ShipmentHandler) DeleteShipment(c *gin.Context) {
	userID := c.GetString("userID")

	if err := h.shipmentService.DeleteShipment(c.Request.Context(), userID, c.Param("id")); err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Shipment deleted successfully"))
}

// GetShipment retrieves a shipment by ID
// @Summary      Get shipment
// @Description  Retrieves a shipment by ID including the IDs of its manifests
// @Tags         shipments
// @Produce      json
// @Param        id   path      string  true  "Shipment ID"
// @Success      200  {object}  response.Response{data=service.ShipmentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/shipments/{id} [get]
func (h *ShipmentHandler) GetShipment(c *gin.Context) {
	shipment, err := h.shipmentService.GetShipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), response.Error(statusFor(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, shipment))
}

// ListShipments handles retrieving paginated shipments
// @Summary      List shipments
// @Description  Retrieves a paginated list of shipments, filterable by status
// @Tags         shipments
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Param        status  query     string  false  "Filter by status (PENDING, IN_TRANSIT, DELIVERED, CANCELLED)"
// @Success      200  {object}  response.Response{data=object}
// @Failure      500  {object}  response.Response
// @Router       /api/shipments [get]
func (h *ShipmentHandler) ListShipments(c *gin.Context) {
	params := pagination.Parse(c)
	status := c.Query("status")

	shipments, total, err := h.shipmentService.ListShipments(c.Request.Context(), params.Page, params.Limit, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve shipments: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"shipments": shipments,
		"total":     total,
		"page":      params.Page,
		"limit":     params.Limit,
	}))
}
