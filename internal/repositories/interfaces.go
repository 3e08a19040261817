package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStaleWrite is returned when an optimistic row version check fails.
	ErrStaleWrite = errors.New("stale write: row was modified concurrently")
)

// IsNotFoundError checks if err is a repository "not found" error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Repository groups every entity repository. Implementations must honour
// Transaction: all calls made through tx observe and commit atomically.
type Repository interface {
	Evaluation() EvaluationRepository
	Version() CourseVersionRepository
	Enrollment() EnrollmentRepository
	Access() AccessRepository
	Token() TokenRepository
	Attempt() AttemptRepository

	// Transaction runs fn in a single transaction. A non-nil error from fn
	// rolls everything back.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}

// ===== SHARED FILTER STRUCTS =====

type AccessFilters struct {
	EvaluationID string `json:"evaluation_id"`
	LockedOnly   bool   `json:"locked_only"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
}

type AttemptFilters struct {
	EvaluationID string               `json:"evaluation_id"`
	StudentID    string               `json:"student_id"`
	Status       models.AttemptStatus `json:"status"`
	DateFrom     *time.Time           `json:"date_from"`
	DateTo       *time.Time           `json:"date_to"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}
