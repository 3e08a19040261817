package postgres

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed implementation of repositories.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Evaluation() repositories.EvaluationRepository {
	return &EvaluationPostgreSQL{db: r.db}
}

func (r *Repository) Version() repositories.CourseVersionRepository {
	return &CourseVersionPostgreSQL{db: r.db}
}

func (r *Repository) Enrollment() repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{db: r.db}
}

func (r *Repository) Access() repositories.AccessRepository {
	return &AccessPostgreSQL{db: r.db}
}

func (r *Repository) Token() repositories.TokenRepository {
	return &TokenPostgreSQL{db: r.db}
}

func (r *Repository) Attempt() repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: r.db}
}

// Transaction opens a database transaction, or a savepoint when r is
// already bound to one.
func (r *Repository) Transaction(ctx context.Context, fn func(tx repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// translateError maps gorm errors onto repository sentinels
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repositories.ErrDuplicate
	default:
		return err
	}
}

// createOnce inserts value unless a row with the same conflict columns
// exists. The conflict does not abort an enclosing transaction.
func createOnce(db *gorm.DB, value interface{}, columns ...string) *gorm.DB {
	conflict := clause.OnConflict{DoNothing: true}
	for _, name := range columns {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: name})
	}
	return db.Clauses(conflict).Create(value)
}

// createdOrDuplicate reports a skipped createOnce insert as ErrDuplicate
func createdOrDuplicate(result *gorm.DB) error {
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrDuplicate
	}
	return nil
}

// applyPagination applies limit/offset to a query
func applyPagination(query *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
