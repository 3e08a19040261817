package handlers

import (
	"fmt"
	"net/http"

	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler covers manual lock overrides and ledger reporting
type AdminHandler struct {
	BaseHandler
	coordinator *services.AccessCoordinator
	reports     *services.ReportService
}

func NewAdminHandler(coordinator *services.AccessCoordinator, reports *services.ReportService, logger utils.Logger) *AdminHandler {
	return &AdminHandler{
		BaseHandler: NewBaseHandler(logger),
		coordinator: coordinator,
		reports:     reports,
	}
}

// @Router /admin/evaluations/{evaluation_id}/students/{student_id}/lock [post]
func (h *AdminHandler) LockStudent(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}
	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}
	var req services.AdminLockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	adminID, ok := currentUser(c)
	if !ok {
		return
	}

	access, err := h.coordinator.AdminLock(c.Request.Context(), evaluationID, studentID, &req, adminID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Access locked", access)
}

// @Router /admin/evaluations/{evaluation_id}/students/{student_id}/unlock [post]
func (h *AdminHandler) UnlockStudent(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}
	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}
	adminID, ok := currentUser(c)
	if !ok {
		return
	}

	access, err := h.coordinator.AdminUnlock(c.Request.Context(), evaluationID, studentID, adminID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Access unlocked", access)
}

// @Router /admin/evaluations/{evaluation_id}/summary [get]
func (h *AdminHandler) GetSummary(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}

	summary, err := h.reports.Summary(c.Request.Context(), evaluationID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ExportReport streams the ledger and attempts as an xlsx workbook
// @Router /admin/evaluations/{evaluation_id}/report.xlsx [get]
func (h *AdminHandler) ExportReport(c *gin.Context) {
	evaluationID := ParseStringIDParam(c, "evaluation_id")
	if evaluationID == "" {
		return
	}

	data, err := h.reports.ExportLedger(c.Request.Context(), evaluationID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="evaluation-%s.xlsx"`, evaluationID))
	c.Data(http.StatusOK, xlsxContentType, data)
}
