package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
)

func cloneEvaluation(e models.Evaluation) models.Evaluation {
	e.LessonID = clonePtr(e.LessonID)
	e.Description = clonePtr(e.Description)
	e.Questions = deepClone(e.Questions)
	return e
}

func cloneVersion(v models.CourseVersion) models.CourseVersion {
	v.Modules = deepClone(v.Modules)
	return v
}

// ===== EVALUATIONS =====

type evaluationRepository struct {
	r *Repository
}

func (repo *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return repo.r.do(func(t *tables) error {
		if _, ok := t.evaluations[evaluation.ID]; ok {
			return repositories.ErrDuplicate
		}
		t.evaluations[evaluation.ID] = cloneEvaluation(*evaluation)
		return nil
	})
}

func (repo *evaluationRepository) GetByID(ctx context.Context, id string) (*models.Evaluation, error) {
	var out models.Evaluation
	err := repo.r.do(func(t *tables) error {
		e, ok := t.evaluations[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneEvaluation(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (repo *evaluationRepository) Update(ctx context.Context, evaluation *models.Evaluation) error {
	return repo.r.do(func(t *tables) error {
		if _, ok := t.evaluations[evaluation.ID]; !ok {
			return repositories.ErrNotFound
		}
		t.evaluations[evaluation.ID] = cloneEvaluation(*evaluation)
		return nil
	})
}

func (repo *evaluationRepository) HasAttempts(ctx context.Context, id string) (bool, error) {
	var found bool
	err := repo.r.do(func(t *tables) error {
		for _, a := range t.attempts {
			if a.EvaluationID == id {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// ===== COURSE VERSIONS =====

type versionRepository struct {
	r *Repository
}

func (repo *versionRepository) Create(ctx context.Context, version *models.CourseVersion) error {
	return repo.r.do(func(t *tables) error {
		for _, v := range t.versions {
			if v.ID == version.ID || (v.CourseID == version.CourseID && v.Version == version.Version) {
				return repositories.ErrDuplicate
			}
			if version.IsCurrentVersion && v.CourseID == version.CourseID && v.IsCurrentVersion {
				return repositories.ErrDuplicate
			}
		}
		t.versions[version.ID] = cloneVersion(*version)
		return nil
	})
}

func (repo *versionRepository) GetByID(ctx context.Context, id string) (*models.CourseVersion, error) {
	var out models.CourseVersion
	err := repo.r.do(func(t *tables) error {
		v, ok := t.versions[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneVersion(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (repo *versionRepository) GetCurrent(ctx context.Context, courseID string) (*models.CourseVersion, error) {
	var current []models.CourseVersion
	err := repo.r.do(func(t *tables) error {
		for _, v := range t.versions {
			if v.CourseID == courseID && v.IsCurrentVersion {
				current = append(current, cloneVersion(v))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch len(current) {
	case 0:
		return nil, repositories.ErrNotFound
	case 1:
		return &current[0], nil
	default:
		panic(fmt.Sprintf("course %s has more than one current version", courseID))
	}
}

func (repo *versionRepository) ListByCourse(ctx context.Context, courseID string) ([]*models.CourseVersion, error) {
	var out []*models.CourseVersion
	err := repo.r.do(func(t *tables) error {
		for _, v := range t.versions {
			if v.CourseID == courseID {
				c := cloneVersion(v)
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, err
}

func (repo *versionRepository) MaxVersion(ctx context.Context, courseID string) (int, error) {
	var maxVersion int
	err := repo.r.do(func(t *tables) error {
		for _, v := range t.versions {
			if v.CourseID == courseID && v.Version > maxVersion {
				maxVersion = v.Version
			}
		}
		return nil
	})
	return maxVersion, err
}

// LockCourse is a no-op: transactions already hold the store lock.
func (repo *versionRepository) LockCourse(ctx context.Context, courseID string) error {
	return nil
}

func (repo *versionRepository) ClearCurrent(ctx context.Context, courseID string) error {
	return repo.r.do(func(t *tables) error {
		for id, v := range t.versions {
			if v.CourseID == courseID && v.IsCurrentVersion {
				v.IsCurrentVersion = false
				t.versions[id] = v
			}
		}
		return nil
	})
}

// ===== ENROLLMENTS =====

type enrollmentRepository struct {
	r *Repository
}

func (repo *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return repo.r.do(func(t *tables) error {
		for _, e := range t.enrollments {
			if e.ID == enrollment.ID || (e.CourseID == enrollment.CourseID && e.StudentID == enrollment.StudentID) {
				return repositories.ErrDuplicate
			}
		}
		t.enrollments[enrollment.ID] = *enrollment
		return nil
	})
}

func (repo *enrollmentRepository) Get(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	var out *models.Enrollment
	err := repo.r.do(func(t *tables) error {
		for _, e := range t.enrollments {
			if e.CourseID == courseID && e.StudentID == studentID {
				found := e
				out = &found
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (repo *enrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	return repo.r.do(func(t *tables) error {
		if _, ok := t.enrollments[enrollment.ID]; !ok {
			return repositories.ErrNotFound
		}
		t.enrollments[enrollment.ID] = *enrollment
		return nil
	})
}
