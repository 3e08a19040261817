package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/google/uuid"
)

// LedgerService loads and persists EvaluationAccess rows. State transitions
// themselves are the pure functions in access_ledger.go.
type LedgerService struct {
	repo   repositories.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewLedgerService(repo repositories.Repository, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		repo:   repo,
		logger: logger,
		now:    defaultNow,
	}
}

func getEvaluation(ctx context.Context, repo repositories.Repository, evaluationID string) (*models.Evaluation, error) {
	evaluation, err := repo.Evaluation().GetByID(ctx, evaluationID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return evaluation, nil
}

// ensureAccess returns the ledger row, creating it with the policy budget
// and the student's pinned course version on first use.
func ensureAccess(ctx context.Context, repo repositories.Repository, evaluation *models.Evaluation, studentID string) (*models.EvaluationAccess, error) {
	access, err := repo.Access().Get(ctx, evaluation.ID, studentID)
	if err == nil {
		return access, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}

	enrollment, err := repo.Enrollment().Get(ctx, evaluation.CourseID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	access = models.NewEvaluationAccess(uuid.NewString(), evaluation, studentID, enrollment.CourseVersionID)
	if err := repo.Access().Create(ctx, access); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return repo.Access().Get(ctx, evaluation.ID, studentID)
		}
		return nil, fmt.Errorf("failed to create access: %w", err)
	}
	return access, nil
}

// lockAccess reads the ledger row for update inside tx, creating it first
// when absent, and persists an elapsed lock as released.
func lockAccess(ctx context.Context, tx repositories.Repository, evaluation *models.Evaluation, studentID string, now time.Time) (*models.EvaluationAccess, error) {
	if _, err := ensureAccess(ctx, tx, evaluation, studentID); err != nil {
		return nil, err
	}

	access, err := tx.Access().GetForUpdate(ctx, evaluation.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock access: %w", err)
	}

	if expireLock(access, now) {
		if err := tx.Access().Update(ctx, access); err != nil {
			return nil, fmt.Errorf("failed to release expired lock: %w", err)
		}
	}
	return access, nil
}

// GetOrCreate returns the ledger with its attempts. An elapsed lock is
// persisted as released before returning.
func (s *LedgerService) GetOrCreate(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	evaluation, err := getEvaluation(ctx, s.repo, evaluationID)
	if err != nil {
		return nil, err
	}

	access, err := ensureAccess(ctx, s.repo, evaluation, studentID)
	if err != nil {
		return nil, err
	}

	if access.IsLocked && !lockActive(access, s.now()) {
		if err := s.Refresh(ctx, evaluation, studentID); err != nil {
			return nil, err
		}
	}

	access, err = s.repo.Access().GetWithAttempts(ctx, evaluationID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	return access, nil
}

// Refresh re-evaluates the lock under a row lock and writes the result.
func (s *LedgerService) Refresh(ctx context.Context, evaluation *models.Evaluation, studentID string) error {
	return s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		access, err := lockAccess(ctx, tx, evaluation, studentID, s.now())
		if err != nil {
			return err
		}
		if !access.IsLocked {
			s.logger.Info("Evaluation access lock expired",
				"access_id", access.ID,
				"evaluation_id", access.EvaluationID,
				"student_id", access.StudentID)
		}
		return nil
	})
}

// Lock applies an administrative or suspicious-activity lock.
func (s *LedgerService) Lock(ctx context.Context, evaluationID, studentID string, reason models.LockReason, duration time.Duration) (*models.EvaluationAccess, error) {
	evaluation, err := getEvaluation(ctx, s.repo, evaluationID)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		duration = evaluation.LockoutPeriod()
	}

	var access *models.EvaluationAccess
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		now := s.now()
		access, err = lockAccess(ctx, tx, evaluation, studentID, now)
		if err != nil {
			return err
		}
		ApplyLock(access, reason, duration, now)
		return tx.Access().Update(ctx, access)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Evaluation access locked",
		"access_id", access.ID,
		"evaluation_id", evaluationID,
		"student_id", studentID,
		"reason", reason,
		"locked_until", access.LockedUntil)

	return access, nil
}

// Unlock releases any lock. The attempt budget is left as it is.
func (s *LedgerService) Unlock(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	var access *models.EvaluationAccess
	err := s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		access, err = tx.Access().GetForUpdate(ctx, evaluationID, studentID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrNotFound
			}
			return err
		}
		if !access.IsLocked {
			return nil
		}
		ReleaseLock(access)
		return tx.Access().Update(ctx, access)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Evaluation access unlocked",
		"access_id", access.ID,
		"evaluation_id", evaluationID,
		"student_id", studentID)

	return access, nil
}
