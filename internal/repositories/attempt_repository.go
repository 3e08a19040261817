package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

// AccessRepository persists the per (evaluation, student) ledger
type AccessRepository interface {
	// Create returns ErrDuplicate when the (evaluation, student) row exists,
	// leaving any enclosing transaction usable.
	Create(ctx context.Context, access *models.EvaluationAccess) error
	Get(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error)
	// GetForUpdate reads the ledger row and holds a write lock on it until
	// the surrounding transaction ends.
	GetForUpdate(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error)
	GetWithAttempts(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error)
	// Update writes the row if its RowVersion is unchanged and bumps it.
	Update(ctx context.Context, access *models.EvaluationAccess) error
	List(ctx context.Context, filters AccessFilters) ([]*models.EvaluationAccess, int64, error)
}

// TokenRepository persists single-use evaluation tokens
type TokenRepository interface {
	Create(ctx context.Context, token *models.EvaluationToken) error
	GetByToken(ctx context.Context, token string) (*models.EvaluationToken, error)
	// MarkUsed flips is_used only if it is still false; it reports whether
	// this call won.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AttemptRepository persists evaluation attempts
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.EvaluationAttempt) error
	GetByID(ctx context.Context, id string) (*models.EvaluationAttempt, error)
	GetForUpdate(ctx context.Context, id string) (*models.EvaluationAttempt, error)
	Update(ctx context.Context, attempt *models.EvaluationAttempt) error

	// GetActiveByAccess returns the attempt still awaiting a grade, in progress or submitted.
	GetActiveByAccess(ctx context.Context, accessID string) (*models.EvaluationAttempt, error)
	List(ctx context.Context, filters AttemptFilters) ([]*models.EvaluationAttempt, int64, error)
	// ListStale returns in-progress attempts whose last activity is before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.EvaluationAttempt, error)
}
