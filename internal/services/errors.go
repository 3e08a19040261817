package services

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/SAP-F-2025/evaluation-access-service/internal/errors"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Token errors
	ErrTokenInvalid = errors.New("evaluation token is invalid or already used")
	ErrTokenExpired = errors.New("evaluation token has expired")

	// Access ledger errors
	ErrAccessLocked        = errors.New("evaluation access is locked")
	ErrNoAttemptsRemaining = errors.New("no attempts remaining")
	ErrNotEnrolled         = errors.New("student is not enrolled in the course")

	// Evaluation errors
	ErrEvaluationNotFound = errors.New("evaluation not found")
	ErrEvaluationInUse    = errors.New("evaluation cannot be changed - it has attempts")

	// Attempt errors
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotActive     = errors.New("attempt is not active")
	ErrAttemptInProgress    = errors.New("an attempt is already in progress")
	ErrAttemptAlreadyGraded = errors.New("attempt already graded")

	// Version errors
	ErrVersionNotFound       = errors.New("course version not found")
	ErrCourseVersionMismatch = errors.New("pinned course version no longer resolves to this evaluation")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// AccessLockedError carries the unlock time of a locked ledger. It matches
// ErrAccessLocked with errors.Is.
type AccessLockedError struct {
	UnlockTime time.Time         `json:"unlock_time"`
	Reason     models.LockReason `json:"reason"`
}

func (e *AccessLockedError) Error() string {
	return fmt.Sprintf("evaluation access is locked until %s (%s)", e.UnlockTime.Format(time.RFC3339), e.Reason)
}

func (e *AccessLockedError) Is(target error) bool {
	return target == ErrAccessLocked
}

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEvaluationNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrVersionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
		return true
	}
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAttemptInProgress) ||
		errors.Is(err, ErrAttemptAlreadyGraded) ||
		errors.Is(err, ErrAttemptNotActive) ||
		errors.Is(err, ErrEvaluationInUse) ||
		errors.Is(err, ErrCourseVersionMismatch)
}

// IsAccessDenied checks if error blocks a student from attempting
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessLocked) ||
		errors.Is(err, ErrNoAttemptsRemaining) ||
		errors.Is(err, ErrNotEnrolled) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired)
}

func validationFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrValidationFailed, err)
}
