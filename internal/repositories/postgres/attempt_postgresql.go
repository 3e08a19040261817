package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ===== TOKENS =====

type TokenPostgreSQL struct {
	db *gorm.DB
}

func (t *TokenPostgreSQL) Create(ctx context.Context, token *models.EvaluationToken) error {
	return translateError(t.db.WithContext(ctx).Create(token).Error)
}

func (t *TokenPostgreSQL) GetByToken(ctx context.Context, value string) (*models.EvaluationToken, error) {
	var token models.EvaluationToken
	if err := t.db.WithContext(ctx).Where("token = ?", value).First(&token).Error; err != nil {
		return nil, translateError(err)
	}
	return &token, nil
}

func (t *TokenPostgreSQL) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	result := t.db.WithContext(ctx).
		Model(&models.EvaluationToken{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]interface{}{
			"is_used": true,
			"used_at": usedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (t *TokenPostgreSQL) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := t.db.WithContext(ctx).
		Where("expires_at < ? AND is_used = ?", before, false).
		Delete(&models.EvaluationToken{})
	return result.RowsAffected, result.Error
}

// ===== ATTEMPTS =====

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.EvaluationAttempt) error {
	return translateError(a.db.WithContext(ctx).Create(attempt).Error)
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id string) (*models.EvaluationAttempt, error) {
	var attempt models.EvaluationAttempt
	if err := a.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetForUpdate(ctx context.Context, id string) (*models.EvaluationAttempt, error) {
	var attempt models.EvaluationAttempt
	if err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.EvaluationAttempt) error {
	return translateError(a.db.WithContext(ctx).Save(attempt).Error)
}

func (a *AttemptPostgreSQL) GetActiveByAccess(ctx context.Context, accessID string) (*models.EvaluationAttempt, error) {
	var attempt models.EvaluationAttempt
	if err := a.db.WithContext(ctx).
		Where("access_id = ? AND status IN ?", accessID, []models.AttemptStatus{models.AttemptInProgress, models.AttemptSubmitted}).
		First(&attempt).Error; err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.EvaluationAttempt, int64, error) {
	var attempts []*models.EvaluationAttempt
	var total int64

	// apply filter first
	query := a.db.WithContext(ctx).Model(&models.EvaluationAttempt{})
	if filters.EvaluationID != "" {
		query = query.Where("evaluation_id = ?", filters.EvaluationID)
	}
	if filters.StudentID != "" {
		query = query.Where("student_id = ?", filters.StudentID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = applyPagination(query.Order("started_at ASC"), filters.Limit, filters.Offset)
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.EvaluationAttempt, error) {
	var attempts []*models.EvaluationAttempt
	query := a.db.WithContext(ctx).
		Where("status = ? AND last_activity_at < ?", models.AttemptInProgress, cutoff).
		Order("last_activity_at ASC")
	if err := applyPagination(query, limit, 0).Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
