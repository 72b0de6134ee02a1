package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/coachdesk-api/internal/middleware"
	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/service"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
	"github.com/coachdesk/coachdesk-api/pkg/response"
)

// PaymentStatusRequest flips a class between pending and completed.
type PaymentStatusRequest struct {
	Status models.PaymentStatus `json:"status" binding:"required"`
}

// ClassHandler exposes class recording and payment endpoints.
type ClassHandler struct {
	classes *service.ClassService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(classes *service.ClassService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

// Create godoc
// @Summary Record a class for the authenticated coach
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.classes.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// ListMine godoc
// @Summary List the authenticated coach's classes
// @Tags Classes
// @Produce json
// @Param type query string false "Class type (individual|group)"
// @Param month query string false "Month filter YYYY-MM"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [get]
func (h *ClassHandler) ListMine(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	classType := models.ClassType(c.Query("type"))
	month := c.Query("month")

	details, stats, err := h.classes.ListByCoach(c.Request.Context(), claims.UserID, classType, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil, map[string]interface{}{"stats": stats})
}

// Delete godoc
// @Summary Delete a class record
// @Tags Classes
// @Param id path string true "Class ID"
// @Success 204
// @Security BearerAuth
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	ownerID := claims.UserID
	if claims.Role == models.RoleAdmin {
		ownerID = ""
	}
	if err := h.classes.Delete(c.Request.Context(), c.Param("id"), ownerID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Payments godoc
// @Summary Admin payment view with filters and totals
// @Tags Payments
// @Produce json
// @Param coachId query string false "Filter by coach"
// @Param status query string false "Payment status (pending|completed)"
// @Param month query string false "Month filter YYYY-MM"
// @Param from query string false "Start date RFC3339"
// @Param to query string false "End date RFC3339"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments [get]
func (h *ClassHandler) Payments(c *gin.Context) {
	filter := models.ClassFilter{
		CoachID:       c.Query("coachId"),
		Month:         c.Query("month"),
		PaymentStatus: models.PaymentStatus(c.Query("status")),
	}
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &ts
		}
	}

	details, summary, err := h.classes.ListPayments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil, map[string]interface{}{"summary": summary})
}

// BulkCompletePayments godoc
// @Summary Mark a coach's pending classes in a date range as completed
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.BulkPaymentRequest true "Bulk payment scope"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/bulk-complete [post]
func (h *ClassHandler) BulkCompletePayments(c *gin.Context) {
	var req service.BulkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	updated, err := h.classes.BulkCompletePayments(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}

// SetPaymentStatus godoc
// @Summary Update a class payment status
// @Tags Payments
// @Accept json
// @Param id path string true "Class ID"
// @Param payload body PaymentStatusRequest true "New status"
// @Success 204
// @Security BearerAuth
// @Router /payments/{id} [put]
func (h *ClassHandler) SetPaymentStatus(c *gin.Context) {
	var req PaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.classes.SetPaymentStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
