package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// AccessHandler serves the student's ledger and token minting
type AccessHandler struct {
	BaseHandler
	coordinator *services.AccessCoordinator
}

func NewAccessHandler(coordinator *services.AccessCoordinator, logger utils.Logger) *AccessHandler {
	return &AccessHandler{
		BaseHandler: NewBaseHandler(logger),
		coordinator: coordinator,
	}
}

// GetAccess returns the caller's ledger for an evaluation with eligibility
// @Router /evaluations/{evaluation_id}/access [get]
func (h *AccessHandler) GetAccess(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	view, err := h.coordinator.GetAccess(c.Request.Context(), evaluationID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetCountdown returns the time left on the caller's lock
// @Router /evaluations/{evaluation_id}/access/countdown [get]
func (h *AccessHandler) GetCountdown(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	countdown, err := h.coordinator.TimeUntilUnlock(c.Request.Context(), evaluationID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, countdown)
}

// IssueToken mints a single-use token and deep link for the next attempt
// @Router /evaluations/{evaluation_id}/token [post]
func (h *AccessHandler) IssueToken(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	token, err := h.coordinator.IssueToken(c.Request.Context(), evaluationID, studentID, fingerprint(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Issued evaluation token", "evaluation_id", evaluationID, "attempt_number", token.AttemptNumber)
	c.JSON(http.StatusCreated, token)
}
