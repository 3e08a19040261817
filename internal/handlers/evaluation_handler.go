package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// StudentEvaluation is an evaluation without its authoring-time questions
type StudentEvaluation struct {
	*models.Evaluation
	Questions     []models.StudentQuestion `json:"questions,omitempty"`
	QuestionCount int                      `json:"question_count"`
}

type EvaluationHandler struct {
	BaseHandler
	coordinator *services.AccessCoordinator
}

func NewEvaluationHandler(coordinator *services.AccessCoordinator, logger utils.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		BaseHandler: NewBaseHandler(logger),
		coordinator: coordinator,
	}
}

// @Router /evaluations [post]
func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req services.CreateEvaluationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	evaluation, err := h.coordinator.CreateEvaluation(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Evaluation created", "evaluation_id", evaluation.ID, "course_id", evaluation.CourseID)
	c.JSON(http.StatusCreated, evaluation)
}

// GetEvaluation returns the full evaluation to instructors and a view
// without answer keys to students.
// @Router /evaluations/{evaluation_id} [get]
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}

	evaluation, err := h.coordinator.GetEvaluation(c.Request.Context(), evaluationID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if currentRole(c) == RoleStudent {
		c.JSON(http.StatusOK, StudentEvaluation{
			Evaluation:    evaluation,
			QuestionCount: len(evaluation.Questions),
		})
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

// @Router /evaluations/{evaluation_id} [put]
func (h *EvaluationHandler) UpdateEvaluation(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}
	var req services.CreateEvaluationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	evaluation, err := h.coordinator.UpdateEvaluation(c.Request.Context(), evaluationID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, evaluation)
}
