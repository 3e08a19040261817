package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"gorm.io/gorm"
)

// ===== EVALUATIONS =====

type EvaluationPostgreSQL struct {
	db *gorm.DB
}

func (e *EvaluationPostgreSQL) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return translateError(e.db.WithContext(ctx).Create(evaluation).Error)
}

func (e *EvaluationPostgreSQL) GetByID(ctx context.Context, id string) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := e.db.WithContext(ctx).First(&evaluation, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &evaluation, nil
}

func (e *EvaluationPostgreSQL) Update(ctx context.Context, evaluation *models.Evaluation) error {
	return translateError(e.db.WithContext(ctx).Save(evaluation).Error)
}

func (e *EvaluationPostgreSQL) HasAttempts(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := e.db.WithContext(ctx).
		Model(&models.EvaluationAttempt{}).
		Where("evaluation_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ===== COURSE VERSIONS =====

type CourseVersionPostgreSQL struct {
	db *gorm.DB
}

func (c *CourseVersionPostgreSQL) Create(ctx context.Context, version *models.CourseVersion) error {
	return translateError(c.db.WithContext(ctx).Create(version).Error)
}

func (c *CourseVersionPostgreSQL) GetByID(ctx context.Context, id string) (*models.CourseVersion, error) {
	var version models.CourseVersion
	if err := c.db.WithContext(ctx).First(&version, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &version, nil
}

func (c *CourseVersionPostgreSQL) GetCurrent(ctx context.Context, courseID string) (*models.CourseVersion, error) {
	var versions []models.CourseVersion
	if err := c.db.WithContext(ctx).
		Where("course_id = ? AND is_current_version = ?", courseID, true).
		Limit(2).
		Find(&versions).Error; err != nil {
		return nil, err
	}

	switch len(versions) {
	case 0:
		return nil, repositories.ErrNotFound
	case 1:
		return &versions[0], nil
	default:
		panic(fmt.Sprintf("course %s has more than one current version", courseID))
	}
}

func (c *CourseVersionPostgreSQL) ListByCourse(ctx context.Context, courseID string) ([]*models.CourseVersion, error) {
	var versions []*models.CourseVersion
	if err := c.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("version ASC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (c *CourseVersionPostgreSQL) MaxVersion(ctx context.Context, courseID string) (int, error) {
	var maxVersion int
	if err := c.db.WithContext(ctx).
		Model(&models.CourseVersion{}).
		Where("course_id = ?", courseID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion, nil
}

// LockCourse takes a transaction-scoped advisory lock keyed by course id.
func (c *CourseVersionPostgreSQL) LockCourse(ctx context.Context, courseID string) error {
	return c.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "course_version:"+courseID).Error
}

func (c *CourseVersionPostgreSQL) ClearCurrent(ctx context.Context, courseID string) error {
	return c.db.WithContext(ctx).
		Model(&models.CourseVersion{}).
		Where("course_id = ? AND is_current_version = ?", courseID, true).
		Update("is_current_version", false).Error
}

// ===== ENROLLMENTS =====

type EnrollmentPostgreSQL struct {
	db *gorm.DB
}

func (e *EnrollmentPostgreSQL) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return createdOrDuplicate(createOnce(e.db.WithContext(ctx), enrollment, "course_id", "student_id"))
}

func (e *EnrollmentPostgreSQL) Get(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := e.db.WithContext(ctx).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		First(&enrollment).Error; err != nil {
		return nil, translateError(err)
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) Update(ctx context.Context, enrollment *models.Enrollment) error {
	return translateError(e.db.WithContext(ctx).Save(enrollment).Error)
}
