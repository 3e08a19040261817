package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccessPostgreSQL struct {
	db *gorm.DB
}

func (a *AccessPostgreSQL) Create(ctx context.Context, access *models.EvaluationAccess) error {
	access.MustBeConsistent()
	return createdOrDuplicate(createOnce(a.db.WithContext(ctx).Omit(clause.Associations), access, "evaluation_id", "student_id"))
}

func (a *AccessPostgreSQL) Get(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	var access models.EvaluationAccess
	if err := a.db.WithContext(ctx).
		Where("evaluation_id = ? AND student_id = ?", evaluationID, studentID).
		First(&access).Error; err != nil {
		return nil, translateError(err)
	}
	return &access, nil
}

func (a *AccessPostgreSQL) GetForUpdate(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	var access models.EvaluationAccess
	if err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("evaluation_id = ? AND student_id = ?", evaluationID, studentID).
		First(&access).Error; err != nil {
		return nil, translateError(err)
	}
	return &access, nil
}

func (a *AccessPostgreSQL) GetWithAttempts(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	var access models.EvaluationAccess
	if err := a.db.WithContext(ctx).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("started_at ASC")
		}).
		Where("evaluation_id = ? AND student_id = ?", evaluationID, studentID).
		First(&access).Error; err != nil {
		return nil, translateError(err)
	}
	return &access, nil
}

func (a *AccessPostgreSQL) Update(ctx context.Context, access *models.EvaluationAccess) error {
	access.MustBeConsistent()

	now := time.Now().UTC()
	result := a.db.WithContext(ctx).
		Model(&models.EvaluationAccess{}).
		Where("id = ? AND row_version = ?", access.ID, access.RowVersion).
		Updates(map[string]interface{}{
			"attempts_used":      access.AttemptsUsed,
			"remaining_attempts": access.RemainingAttempts,
			"is_locked":          access.IsLocked,
			"locked_until":       access.LockedUntil,
			"locked_reason":      access.LockedReason,
			"lock_count":         access.LockCount,
			"row_version":        access.RowVersion + 1,
			"updated_at":         now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrStaleWrite
	}

	access.RowVersion++
	access.UpdatedAt = now
	return nil
}

func (a *AccessPostgreSQL) List(ctx context.Context, filters repositories.AccessFilters) ([]*models.EvaluationAccess, int64, error) {
	var rows []*models.EvaluationAccess
	var total int64

	query := a.db.WithContext(ctx).Model(&models.EvaluationAccess{})
	if filters.EvaluationID != "" {
		query = query.Where("evaluation_id = ?", filters.EvaluationID)
	}
	if filters.LockedOnly {
		query = query.Where("is_locked = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query.Order("created_at ASC"), filters.Limit, filters.Offset)
	if err := query.Preload("Attempts").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}
