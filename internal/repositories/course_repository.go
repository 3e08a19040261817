package repositories

import (
	"context"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

// EvaluationRepository persists evaluation definitions
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	GetByID(ctx context.Context, id string) (*models.Evaluation, error)
	Update(ctx context.Context, evaluation *models.Evaluation) error
	HasAttempts(ctx context.Context, id string) (bool, error)
}

// CourseVersionRepository persists immutable course snapshots. There is no
// Update: a version is only ever superseded.
type CourseVersionRepository interface {
	Create(ctx context.Context, version *models.CourseVersion) error
	GetByID(ctx context.Context, id string) (*models.CourseVersion, error)
	GetCurrent(ctx context.Context, courseID string) (*models.CourseVersion, error)
	ListByCourse(ctx context.Context, courseID string) ([]*models.CourseVersion, error)
	MaxVersion(ctx context.Context, courseID string) (int, error)
	// LockCourse serializes version creation for courseID within a transaction.
	LockCourse(ctx context.Context, courseID string) error
	ClearCurrent(ctx context.Context, courseID string) error
}

// EnrollmentRepository persists the student's pinned course version
type EnrollmentRepository interface {
	// Create returns ErrDuplicate when the student is already enrolled
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Get(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
}
