package memory

import (
	"context"
	"sort"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
)

func cloneAttempt(a models.EvaluationAttempt) models.EvaluationAttempt {
	a.Questions = deepClone(a.Questions)
	a.Answers = cloneAnswers(a.Answers)
	a.SuspiciousActivity = append([]models.SuspiciousActivity(nil), a.SuspiciousActivity...)
	a.ExpiresAt = clonePtr(a.ExpiresAt)
	a.SubmittedAt = clonePtr(a.SubmittedAt)
	a.GradedAt = clonePtr(a.GradedAt)
	a.AbandonedAt = clonePtr(a.AbandonedAt)
	return a
}

func cloneAnswers(answers []models.AttemptAnswer) []models.AttemptAnswer {
	if answers == nil {
		return nil
	}
	out := make([]models.AttemptAnswer, len(answers))
	for i, ans := range answers {
		ans.Value.SelectedOptions = append([]string(nil), ans.Value.SelectedOptions...)
		ans.Value.Boolean = clonePtr(ans.Value.Boolean)
		ans.PointsEarned = clonePtr(ans.PointsEarned)
		out[i] = ans
	}
	return out
}

func attemptsOf(t *tables, accessID string) []models.EvaluationAttempt {
	var out []models.EvaluationAttempt
	for _, a := range t.attempts {
		if a.AccessID == accessID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].AttemptNumber < out[j].AttemptNumber
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ===== ACCESS =====

type accessRepository struct {
	r *Repository
}

func (repo *accessRepository) Create(ctx context.Context, access *models.EvaluationAccess) error {
	access.MustBeConsistent()
	return repo.r.do(func(t *tables) error {
		for _, a := range t.access {
			if a.ID == access.ID || (a.EvaluationID == access.EvaluationID && a.StudentID == access.StudentID) {
				return repositories.ErrDuplicate
			}
		}
		row := *access
		row.Attempts = nil
		if row.RowVersion == 0 {
			row.RowVersion = 1
			access.RowVersion = 1
		}
		t.access[row.ID] = row
		return nil
	})
}

func (repo *accessRepository) find(t *tables, evaluationID, studentID string) (models.EvaluationAccess, bool) {
	for _, a := range t.access {
		if a.EvaluationID == evaluationID && a.StudentID == studentID {
			return a, true
		}
	}
	return models.EvaluationAccess{}, false
}

func (repo *accessRepository) Get(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	var out models.EvaluationAccess
	err := repo.r.do(func(t *tables) error {
		a, ok := repo.find(t, evaluationID, studentID)
		if !ok {
			return repositories.ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate is Get: the store lock held by the transaction already
// excludes other writers.
func (repo *accessRepository) GetForUpdate(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	return repo.Get(ctx, evaluationID, studentID)
}

func (repo *accessRepository) GetWithAttempts(ctx context.Context, evaluationID, studentID string) (*models.EvaluationAccess, error) {
	var out models.EvaluationAccess
	err := repo.r.do(func(t *tables) error {
		a, ok := repo.find(t, evaluationID, studentID)
		if !ok {
			return repositories.ErrNotFound
		}
		a.Attempts = attemptsOf(t, a.ID)
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (repo *accessRepository) Update(ctx context.Context, access *models.EvaluationAccess) error {
	access.MustBeConsistent()
	return repo.r.do(func(t *tables) error {
		stored, ok := t.access[access.ID]
		if !ok {
			return repositories.ErrNotFound
		}
		if stored.RowVersion != access.RowVersion {
			return repositories.ErrStaleWrite
		}
		access.RowVersion++
		access.UpdatedAt = time.Now().UTC()
		row := *access
		row.Attempts = nil
		t.access[row.ID] = row
		return nil
	})
}

func (repo *accessRepository) List(ctx context.Context, filters repositories.AccessFilters) ([]*models.EvaluationAccess, int64, error) {
	var rows []*models.EvaluationAccess
	err := repo.r.do(func(t *tables) error {
		for _, a := range t.access {
			if filters.EvaluationID != "" && a.EvaluationID != filters.EvaluationID {
				continue
			}
			if filters.LockedOnly && !a.IsLocked {
				continue
			}
			row := a
			row.Attempts = attemptsOf(t, a.ID)
			rows = append(rows, &row)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return paginate(rows, filters.Limit, filters.Offset), int64(len(rows)), nil
}

// ===== TOKENS =====

type tokenRepository struct {
	r *Repository
}

func (repo *tokenRepository) Create(ctx context.Context, token *models.EvaluationToken) error {
	return repo.r.do(func(t *tables) error {
		for _, tok := range t.tokens {
			if tok.ID == token.ID || tok.Token == token.Token {
				return repositories.ErrDuplicate
			}
		}
		t.tokens[token.ID] = *token
		return nil
	})
}

func (repo *tokenRepository) GetByToken(ctx context.Context, value string) (*models.EvaluationToken, error) {
	var out *models.EvaluationToken
	err := repo.r.do(func(t *tables) error {
		for _, tok := range t.tokens {
			if tok.Token == value {
				found := tok
				out = &found
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (repo *tokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	var won bool
	err := repo.r.do(func(t *tables) error {
		tok, ok := t.tokens[id]
		if !ok || tok.IsUsed {
			return nil
		}
		tok.IsUsed = true
		tok.UsedAt = &usedAt
		t.tokens[id] = tok
		won = true
		return nil
	})
	return won, err
}

func (repo *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := repo.r.do(func(t *tables) error {
		for id, tok := range t.tokens {
			if !tok.IsUsed && tok.ExpiresAt.Before(before) {
				delete(t.tokens, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// ===== ATTEMPTS =====

type attemptRepository struct {
	r *Repository
}

func (repo *attemptRepository) Create(ctx context.Context, attempt *models.EvaluationAttempt) error {
	return repo.r.do(func(t *tables) error {
		for _, a := range t.attempts {
			if a.ID == attempt.ID || a.TokenID == attempt.TokenID {
				return repositories.ErrDuplicate
			}
		}
		t.attempts[attempt.ID] = cloneAttempt(*attempt)
		return nil
	})
}

func (repo *attemptRepository) GetByID(ctx context.Context, id string) (*models.EvaluationAttempt, error) {
	var out models.EvaluationAttempt
	err := repo.r.do(func(t *tables) error {
		a, ok := t.attempts[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneAttempt(a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (repo *attemptRepository) GetForUpdate(ctx context.Context, id string) (*models.EvaluationAttempt, error) {
	return repo.GetByID(ctx, id)
}

func (repo *attemptRepository) Update(ctx context.Context, attempt *models.EvaluationAttempt) error {
	return repo.r.do(func(t *tables) error {
		if _, ok := t.attempts[attempt.ID]; !ok {
			return repositories.ErrNotFound
		}
		attempt.UpdatedAt = time.Now().UTC()
		t.attempts[attempt.ID] = cloneAttempt(*attempt)
		return nil
	})
}

func (repo *attemptRepository) GetActiveByAccess(ctx context.Context, accessID string) (*models.EvaluationAttempt, error) {
	var out *models.EvaluationAttempt
	err := repo.r.do(func(t *tables) error {
		for _, a := range t.attempts {
			if a.AccessID == accessID && (a.Status == models.AttemptInProgress || a.Status == models.AttemptSubmitted) {
				found := cloneAttempt(a)
				out = &found
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (repo *attemptRepository) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.EvaluationAttempt, int64, error) {
	var rows []*models.EvaluationAttempt
	err := repo.r.do(func(t *tables) error {
		for _, a := range t.attempts {
			if filters.EvaluationID != "" && a.EvaluationID != filters.EvaluationID {
				continue
			}
			if filters.StudentID != "" && a.StudentID != filters.StudentID {
				continue
			}
			if filters.Status != "" && a.Status != filters.Status {
				continue
			}
			if filters.DateFrom != nil && a.StartedAt.Before(*filters.DateFrom) {
				continue
			}
			if filters.DateTo != nil && a.StartedAt.After(*filters.DateTo) {
				continue
			}
			row := cloneAttempt(a)
			rows = append(rows, &row)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartedAt.Before(rows[j].StartedAt) })
	return paginate(rows, filters.Limit, filters.Offset), int64(len(rows)), nil
}

func (repo *attemptRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.EvaluationAttempt, error) {
	var rows []*models.EvaluationAttempt
	err := repo.r.do(func(t *tables) error {
		for _, a := range t.attempts {
			if a.Status == models.AttemptInProgress && a.LastActivityAt.Before(cutoff) {
				row := cloneAttempt(a)
				rows = append(rows, &row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LastActivityAt.Before(rows[j].LastActivityAt) })
	return paginate(rows, limit, 0), nil
}
