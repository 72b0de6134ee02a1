package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/coachdesk-api/internal/service"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
	"github.com/coachdesk/coachdesk-api/pkg/response"
)

// AssignRequest is the payload for assigning a student to a coach.
type AssignRequest struct {
	CoachID string `json:"coach_id" binding:"required"`
}

// RosterHandler exposes the assignment ledger endpoints.
type RosterHandler struct {
	roster *service.RosterService
}

// NewRosterHandler constructs RosterHandler.
func NewRosterHandler(roster *service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// Assign godoc
// @Summary Assign a student to a coach
// @Tags Roster
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body AssignRequest true "Target coach"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/coach [put]
func (h *RosterHandler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.roster.Assign(c.Request.Context(), c.Param("id"), req.CoachID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Unassign godoc
// @Summary Remove a student's active assignment
// @Tags Roster
// @Param id path string true "Student ID"
// @Success 204
// @Security BearerAuth
// @Router /students/{id}/coach [delete]
func (h *RosterHandler) Unassign(c *gin.Context) {
	if err := h.roster.Unassign(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CurrentCoach godoc
// @Summary Resolve a student's current coach from the ledger
// @Tags Roster
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/coach [get]
func (h *RosterHandler) CurrentCoach(c *gin.Context) {
	coachID, err := h.roster.CurrentCoachOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"coach_id": coachID}, nil)
}

// History godoc
// @Summary Assignment history for a student, newest first
// @Tags Roster
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/assignments [get]
func (h *RosterHandler) History(c *gin.Context) {
	history, err := h.roster.HistoryOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
