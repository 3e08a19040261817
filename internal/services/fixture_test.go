package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/cache"
	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories/memory"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
	"github.com/stretchr/testify/require"
)

const (
	testCourseID  = "course-1"
	testLessonID  = "lesson-quiz"
	testStudentID = "student-1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx        context.Context
	repo       repositories.Repository
	publisher  *events.MockEventPublisher
	coord      *AccessCoordinator
	clock      *testClock
	version    *models.CourseVersion
	evaluation *models.Evaluation
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleQuestions() []models.EvaluationQuestion {
	return []models.EvaluationQuestion{
		{
			ID:     "q1",
			Type:   models.SingleChoice,
			Prompt: "Which keyword declares a goroutine?",
			Points: 5,
			Order:  1,
			Choice: &models.ChoicePayload{
				Options: []models.QuestionOption{
					{ID: "a", Text: "go"},
					{ID: "b", Text: "async"},
				},
				CorrectOptions: []string{"a"},
			},
		},
		{
			ID:        "q2",
			Type:      models.TrueFalse,
			Prompt:    "Channels can be closed.",
			Points:    5,
			Order:     2,
			TrueFalse: &models.TrueFalsePayload{Answer: true},
		},
	}
}

func sampleModules(quizPrompt string) []models.CourseModule {
	quiz := sampleQuestions()
	quiz[0].Prompt = quizPrompt
	return []models.CourseModule{
		{
			ID:    "m1",
			Title: "Concurrency",
			Order: 1,
			Lessons: []models.CourseLesson{
				{ID: "intro", Title: "Introduction", Type: models.LessonReading, Content: "Goroutines are cheap.", Order: 1},
				{ID: testLessonID, Title: "Checkpoint", Type: models.LessonQuiz, Order: 2, Quiz: quiz},
			},
		},
	}
}

type fixtureOption func(*CreateEvaluationRequest)

func withStrictMode() fixtureOption {
	return func(r *CreateEvaluationRequest) { r.StrictMode = true }
}

func withTimeLimit(minutes int) fixtureOption {
	return func(r *CreateEvaluationRequest) { r.TimeLimitMinutes = minutes }
}

// newFixture wires a coordinator over an in-memory store with one course
// version, one lesson-bound evaluation and one enrolled student.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	logger := testLogger()
	repo := memory.NewRepository(memory.NewDB())
	publisher := events.NewMockEventPublisher(logger)
	clock := newTestClock()

	coord := NewAccessCoordinator(repo, cache.NewNoopCache(), publisher, validator.New(), logger, CoordinatorConfig{
		BaseURL: "https://learn.example.com/",
	})
	coord.SetClock(clock.Now)

	f := &fixture{
		ctx:       context.Background(),
		repo:      repo,
		publisher: publisher,
		coord:     coord,
		clock:     clock,
	}

	var err error
	f.version, err = coord.Versions().CreateVersion(f.ctx, &CreateVersionRequest{
		CourseID:  testCourseID,
		Modules:   sampleModules("Which keyword declares a goroutine?"),
		ChangeLog: "initial content",
		CreatedBy: "instructor-1",
	})
	require.NoError(t, err)

	lessonID := testLessonID
	req := &CreateEvaluationRequest{
		CourseID:     testCourseID,
		LessonID:     &lessonID,
		Title:        "Concurrency checkpoint",
		PassingScore: 60,
		Security: models.SecurityFlags{
			PreventScreenshot: true,
			PreventCopy:       true,
			TrackTabSwitches:  true,
		},
	}
	for _, opt := range opts {
		opt(req)
	}
	f.evaluation, err = coord.CreateEvaluation(f.ctx, req, "instructor-1")
	require.NoError(t, err)

	f.enroll(t, testStudentID)
	publisher.ClearEvents()
	return f
}

func (f *fixture) enroll(t *testing.T, studentID string) *models.Enrollment {
	t.Helper()
	enrollment, err := f.coord.Versions().Enroll(f.ctx, testCourseID, studentID)
	require.NoError(t, err)
	return enrollment
}

func (f *fixture) issue(t *testing.T, studentID string) *IssuedToken {
	t.Helper()
	token, err := f.coord.IssueToken(f.ctx, f.evaluation.ID, studentID, models.ClientFingerprint{
		IPAddress: "10.0.0.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return token
}

func (f *fixture) start(t *testing.T, studentID string) *models.EvaluationAttempt {
	t.Helper()
	token := f.issue(t, studentID)
	attempt, err := f.coord.StartAttempt(f.ctx, &StartAttemptRequest{Token: token.Token}, studentID, models.ClientFingerprint{
		IPAddress: "10.0.0.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return attempt
}

func (f *fixture) complete(t *testing.T, attemptID string, score float64, passed bool) *models.EvaluationAccess {
	t.Helper()
	access, err := f.coord.CompleteAttempt(f.ctx, attemptID, &CompleteAttemptRequest{Score: score, Passed: passed})
	require.NoError(t, err)
	return access
}

func requireBudgetInvariant(t *testing.T, access *models.EvaluationAccess) {
	t.Helper()
	require.Equal(t, access.AttemptsAllowed, access.AttemptsUsed+access.RemainingAttempts)
	require.GreaterOrEqual(t, access.RemainingAttempts, 0)
}
