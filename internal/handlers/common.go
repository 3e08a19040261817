package handlers

import (
	"errors"
	"net/http"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response. Code is a stable reason
// clients can switch on.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error codes
const (
	CodeValidation        = "validation_failed"
	CodeUnauthenticated   = "unauthenticated"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeLocked            = "locked"
	CodeNoAttempts        = "no_attempts"
	CodeNotEnrolled       = "not_enrolled"
	CodeTokenInvalid      = "token_invalid"
	CodeTokenExpired      = "token_expired"
	CodeAttemptInProgress = "attempt_in_progress"
	CodeAlreadyGraded     = "already_graded"
	CodeAttemptNotActive  = "attempt_not_active"
	CodeEvaluationInUse   = "evaluation_in_use"
	CodeVersionMismatch   = "version_mismatch"
	CodeConflict          = "conflict"
	CodeBusinessRule      = "business_rule"
	CodeInternal          = "internal_error"
)

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides logging and error mapping shared by all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger).With("user_id", c.GetString(userIDKey))
}

// LogInfo logs informational messages with request context
func (h *BaseHandler) LogInfo(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Info(message, additionalFields...)
}

// LogError logs error details with request context
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.log(c).LogError(err, message, additionalFields...)
}

// RespondWithError sends a consistent error response
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, code, message string, details ...interface{}) {
	resp := ErrorResponse{
		Message: message,
		Code:    code,
	}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	c.AbortWithStatusJSON(statusCode, resp)
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// BindJSON decodes the request body, replying 400 on failure
func (h *BaseHandler) BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request payload", err.Error())
		return false
	}
	return true
}

// handleServiceError maps service errors onto HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Validation failed", validationErrors)
		return
	}

	var lockedErr *services.AccessLockedError
	if errors.As(err, &lockedErr) {
		h.RespondWithError(c, http.StatusLocked, CodeLocked, "Evaluation access is locked", gin.H{
			"unlock_time": lockedErr.UnlockTime,
			"reason":      lockedErr.Reason,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		h.RespondWithError(c, http.StatusUnprocessableEntity, CodeBusinessRule, businessRuleError.Message, gin.H{
			"rule":    businessRuleError.Rule,
			"context": businessRuleError.Context,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		h.RespondWithError(c, http.StatusForbidden, CodeForbidden, "Access denied", gin.H{
			"resource": permissionError.Resource,
			"action":   permissionError.Action,
			"reason":   permissionError.Reason,
		})
		return
	}

	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.LogError(c, err, "Unhandled service error")
		h.RespondWithError(c, status, code, "Internal server error")
		return
	}
	h.RespondWithError(c, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidationFailed):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, services.ErrAccessLocked):
		return http.StatusLocked, CodeLocked
	case errors.Is(err, services.ErrNoAttemptsRemaining):
		return http.StatusForbidden, CodeNoAttempts
	case errors.Is(err, services.ErrNotEnrolled):
		return http.StatusForbidden, CodeNotEnrolled
	case errors.Is(err, services.ErrTokenExpired):
		return http.StatusForbidden, CodeTokenExpired
	case errors.Is(err, services.ErrTokenInvalid):
		return http.StatusForbidden, CodeTokenInvalid
	case errors.Is(err, services.ErrAttemptInProgress):
		return http.StatusConflict, CodeAttemptInProgress
	case errors.Is(err, services.ErrAttemptAlreadyGraded):
		return http.StatusConflict, CodeAlreadyGraded
	case errors.Is(err, services.ErrAttemptNotActive):
		return http.StatusConflict, CodeAttemptNotActive
	case errors.Is(err, services.ErrEvaluationInUse):
		return http.StatusConflict, CodeEvaluationInUse
	case errors.Is(err, services.ErrCourseVersionMismatch):
		return http.StatusConflict, CodeVersionMismatch
	case services.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case services.IsConflict(err):
		return http.StatusConflict, CodeConflict
	case services.IsUnauthorized(err):
		return http.StatusForbidden, CodeForbidden
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// fingerprint reads the client identity stamped on tokens and attempts
func fingerprint(c *gin.Context) models.ClientFingerprint {
	return models.ClientFingerprint{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
