package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// StudentVersion is a course version whose lesson quizzes carry no answer keys
type StudentVersion struct {
	*models.CourseVersion
	Modules []models.StudentModule `json:"modules"`
}

// CourseHandler exposes course versions and enrollment pins
type CourseHandler struct {
	BaseHandler
	versions *services.VersionStore
}

func NewCourseHandler(versions *services.VersionStore, logger utils.Logger) *CourseHandler {
	return &CourseHandler{
		BaseHandler: NewBaseHandler(logger),
		versions:    versions,
	}
}

// CreateVersion publishes a new immutable snapshot. With
// ?only_if_changed=true an unchanged module list returns the current
// version instead.
// @Router /courses/{id}/versions [post]
func (h *CourseHandler) CreateVersion(c *gin.Context) {
	courseID := ParseStringIDParam(c, "id")
	if courseID == "" {
		return
	}
	var req services.CreateVersionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	req.CourseID = courseID
	req.CreatedBy = userID

	if c.Query("only_if_changed") == "true" {
		version, created, err := h.versions.SaveModules(c.Request.Context(), &req)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, version)
		return
	}

	version, err := h.versions.CreateVersion(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Course version created", "course_id", courseID, "version", version.Version)
	c.JSON(http.StatusCreated, version)
}

// GetCurrentVersion returns the full snapshot to instructors and a view
// without quiz answer keys to students.
// @Router /courses/{id}/versions/current [get]
func (h *CourseHandler) GetCurrentVersion(c *gin.Context) {
	courseID := ParseStringIDParam(c, "id")
	if courseID == "" {
		return
	}

	version, err := h.versions.GetCurrent(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if currentRole(c) == RoleStudent {
		c.JSON(http.StatusOK, StudentVersion{
			CourseVersion: version,
			Modules:       models.ModulesForStudent(version.Modules),
		})
		return
	}
	c.JSON(http.StatusOK, version)
}

// @Router /courses/{id}/versions/{version_id}/content-for-student [get]
func (h *CourseHandler) GetContentForStudent(c *gin.Context) {
	courseID := ParseStringIDParam(c, "id")
	if courseID == "" {
		return
	}
	versionID := ParseStringIDParam(c, "version_id")
	if versionID == "" {
		return
	}

	content, err := h.versions.GetContentForStudent(c.Request.Context(), courseID, versionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, content)
}

// @Router /courses/{id}/updates [get]
func (h *CourseHandler) CheckForUpdates(c *gin.Context) {
	courseID := ParseStringIDParam(c, "id")
	if courseID == "" {
		return
	}
	versionID := c.Query("version_id")
	if versionID == "" {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "version_id query parameter is required")
		return
	}

	check, err := h.versions.CheckForUpdates(c.Request.Context(), courseID, versionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, check)
}

// @Router /courses/{id}/enroll [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	courseID := ParseStringIDParam(c, "id")
	if courseID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	enrollment, err := h.versions.Enroll(c.Request.Context(), courseID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

// UpgradeEnrollment moves the caller's pin to the current version
// @Router /courses/{id}/enrollment/upgrade [post]
func (h *CourseHandler) UpgradeEnrollment(c *gin.Context) {
	courseID := ParseStringIDParam(c, "id")
	if courseID == "" {
		return
	}
	studentID, ok := currentUser(c)
	if !ok {
		return
	}

	enrollment, err := h.versions.UpgradeEnrollment(c.Request.Context(), courseID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}
