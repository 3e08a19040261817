package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// AttemptResponse is an attempt as shown to its student. The pinned
// questions are included without their answer keys.
type AttemptResponse struct {
	*models.EvaluationAttempt
	Questions []models.StudentQuestion `json:"questions"`
}

func newAttemptResponse(attempt *models.EvaluationAttempt) AttemptResponse {
	return AttemptResponse{
		EvaluationAttempt: attempt,
		Questions:         models.ForStudent(attempt.Questions),
	}
}

type GradeResponse struct {
	Access *models.EvaluationAccess `json:"access"`
	Result *services.GradeResult    `json:"result"`
}

type AttemptHandler struct {
	BaseHandler
	coordinator *services.AccessCoordinator
}

func NewAttemptHandler(coordinator *services.AccessCoordinator, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler: NewBaseHandler(logger),
		coordinator: coordinator,
	}
}

// StartAttempt redeems a token and opens the attempt
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req services.StartAttemptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	attempt, err := h.coordinator.StartAttempt(c.Request.Context(), &req, studentID, fingerprint(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAttemptResponse(attempt))
}

// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	attempt, err := h.coordinator.GetAttempt(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAttemptResponse(attempt))
}

// RecordAnswer saves or overwrites one answer
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	var req services.RecordAnswerRequest
	if !h.BindJSON(c, &req) {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	attempt, err := h.coordinator.RecordAnswer(c.Request.Context(), attemptID, studentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAttemptResponse(attempt))
}

// ReportActivity ingests an anti-cheat signal. It always answers 202; the
// body tells the client whether to end the session.
// @Router /attempts/{id}/activity [post]
func (h *AttemptHandler) ReportActivity(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	var report services.ActivityReport
	if err := c.ShouldBindJSON(&report); err != nil {
		h.LogInfo(c, "Dropping malformed activity report", "attempt_id", attemptID, "error", err)
		c.JSON(http.StatusAccepted, services.ActivityResult{})
		return
	}
	result := h.coordinator.ReportActivity(c.Request.Context(), attemptID, studentID, report)
	c.JSON(http.StatusAccepted, result)
}

// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	attempt, err := h.coordinator.SubmitAttempt(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAttemptResponse(attempt))
}

// GradeAttempt auto-scores the caller's attempt and finalizes it
// @Router /attempts/{id}/grade [post]
func (h *AttemptHandler) GradeAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	access, result, err := h.coordinator.GradeAttempt(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GradeResponse{Access: access, Result: result})
}

// CompleteAttempt finalizes an attempt with an externally computed score.
// Restricted to instructors.
// @Router /attempts/{id}/complete [post]
func (h *AttemptHandler) CompleteAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	var req services.CompleteAttemptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	access, err := h.coordinator.CompleteAttempt(c.Request.Context(), attemptID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Attempt completed", "attempt_id", attemptID, "passed", req.Passed)
	c.JSON(http.StatusOK, access)
}
