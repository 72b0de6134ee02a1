package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/coachdesk-api/internal/service"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
	"github.com/coachdesk/coachdesk-api/pkg/response"
)

// CoachHandler exposes coach management endpoints.
type CoachHandler struct {
	coaches *service.CoachService
	roster  *service.RosterService
}

// NewCoachHandler constructs CoachHandler.
func NewCoachHandler(coaches *service.CoachService, roster *service.RosterService) *CoachHandler {
	return &CoachHandler{coaches: coaches, roster: roster}
}

// List godoc
// @Summary List coaches
// @Tags Coaches
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /coaches [get]
func (h *CoachHandler) List(c *gin.Context) {
	coaches, err := h.coaches.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coaches, nil)
}

// Get godoc
// @Summary Get coach detail
// @Tags Coaches
// @Produce json
// @Param id path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /coaches/{id} [get]
func (h *CoachHandler) Get(c *gin.Context) {
	coach, err := h.coaches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coach, nil)
}

// Create godoc
// @Summary Provision a coach account
// @Tags Coaches
// @Accept json
// @Produce json
// @Param payload body service.CreateCoachRequest true "Coach payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /coaches [post]
func (h *CoachHandler) Create(c *gin.Context) {
	var req service.CreateCoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coach, err := h.coaches.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coach)
}

// Delete godoc
// @Summary Remove a coach account
// @Tags Coaches
// @Param id path string true "Coach ID"
// @Success 204
// @Security BearerAuth
// @Router /coaches/{id} [delete]
func (h *CoachHandler) Delete(c *gin.Context) {
	if err := h.coaches.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary Active assignments for a coach
// @Tags Coaches
// @Produce json
// @Param id path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /coaches/{id}/roster [get]
func (h *CoachHandler) Roster(c *gin.Context) {
	assignments, err := h.roster.ActiveRosterOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}
