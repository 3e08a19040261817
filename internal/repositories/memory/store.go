package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/tiendc/go-deepcopy"
)

// deepClone copies a JSON column slice so no nested slice or pointer is
// shared with the stored row.
func deepClone[S ~[]E, E any](src S) S {
	if src == nil {
		return nil
	}
	var out S
	if err := deepcopy.Copy(&out, src); err != nil {
		panic(fmt.Sprintf("memory store: clone %T: %v", src, err))
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type tables struct {
	evaluations map[string]models.Evaluation
	versions    map[string]models.CourseVersion
	enrollments map[string]models.Enrollment
	access      map[string]models.EvaluationAccess
	tokens      map[string]models.EvaluationToken
	attempts    map[string]models.EvaluationAttempt
}

func newTables() *tables {
	return &tables{
		evaluations: make(map[string]models.Evaluation),
		versions:    make(map[string]models.CourseVersion),
		enrollments: make(map[string]models.Enrollment),
		access:      make(map[string]models.EvaluationAccess),
		tokens:      make(map[string]models.EvaluationToken),
		attempts:    make(map[string]models.EvaluationAttempt),
	}
}

// snapshot copies every table. Rows are stored by value and cloned on the
// way in and out, so a map copy is enough to restore them.
func (t *tables) snapshot() *tables {
	return &tables{
		evaluations: copyMap(t.evaluations),
		versions:    copyMap(t.versions),
		enrollments: copyMap(t.enrollments),
		access:      copyMap(t.access),
		tokens:      copyMap(t.tokens),
		attempts:    copyMap(t.attempts),
	}
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// DB is an in-process store. All transactions are serialized by one mutex,
// which gives the same guarantees as the row locks used by postgres.
type DB struct {
	mutex sync.Mutex
	data  *tables
}

func NewDB() *DB {
	return &DB{data: newTables()}
}

// Repository implements repositories.Repository over a DB.
type Repository struct {
	db   *DB
	inTx bool
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) do(fn func(t *tables) error) error {
	if !r.inTx {
		r.db.mutex.Lock()
		defer r.db.mutex.Unlock()
	}
	return fn(r.db.data)
}

// Transaction runs fn holding the store lock. On error, or on panic, the
// tables are restored to their state before fn ran. Nested calls behave as
// savepoints.
func (r *Repository) Transaction(ctx context.Context, fn func(tx repositories.Repository) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.inTx {
		r.db.mutex.Lock()
		defer r.db.mutex.Unlock()
	}

	saved := r.db.data.snapshot()
	defer func() {
		if p := recover(); p != nil {
			r.db.data = saved
			panic(p)
		}
		if err != nil {
			r.db.data = saved
		}
	}()

	return fn(&Repository{db: r.db, inTx: true})
}

func (r *Repository) Evaluation() repositories.EvaluationRepository {
	return &evaluationRepository{r}
}

func (r *Repository) Version() repositories.CourseVersionRepository {
	return &versionRepository{r}
}

func (r *Repository) Enrollment() repositories.EnrollmentRepository {
	return &enrollmentRepository{r}
}

func (r *Repository) Access() repositories.AccessRepository {
	return &accessRepository{r}
}

func (r *Repository) Token() repositories.TokenRepository {
	return &tokenRepository{r}
}

func (r *Repository) Attempt() repositories.AttemptRepository {
	return &attemptRepository{r}
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
