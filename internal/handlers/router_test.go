package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAP-F-2025/evaluation-access-service/internal/cache"
	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories/memory"
	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	courseID     = "course-1"
	lessonID     = "lesson-quiz"
	studentID    = "student-1"
	instructorID = "instructor-1"
	adminID      = "admin-1"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, parser TokenParser) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository(memory.NewDB())
	coordinator := services.NewAccessCoordinator(
		repo,
		cache.NewNoopCache(),
		events.NewMockEventPublisher(slogger),
		validator.New(),
		slogger,
		services.CoordinatorConfig{BaseURL: "https://learn.example.com"},
	)

	manager := NewHandlerManager(coordinator, services.NewReportService(repo, slogger), utils.NewSlogLogger(slogger), RouterConfig{
		TokenParser: parser,
	})
	return &testServer{t: t, router: manager.NewRouter()}
}

func (s *testServer) do(method, path, userID, role string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	if role != "" {
		req.Header.Set(userRoleHeader, role)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func quizModules() []models.CourseModule {
	return []models.CourseModule{
		{
			ID:    "m1",
			Title: "Concurrency",
			Order: 1,
			Lessons: []models.CourseLesson{
				{ID: "intro", Title: "Introduction", Type: models.LessonReading, Content: "Goroutines are cheap.", Order: 1},
				{
					ID:    lessonID,
					Title: "Checkpoint",
					Type:  models.LessonQuiz,
					Order: 2,
					Quiz: []models.EvaluationQuestion{
						{
							ID:     "q1",
							Type:   models.SingleChoice,
							Prompt: "Which keyword starts a goroutine?",
							Points: 5,
							Choice: &models.ChoicePayload{
								Options:        []models.QuestionOption{{ID: "a", Text: "go"}, {ID: "b", Text: "async"}},
								CorrectOptions: []string{"a"},
							},
						},
					},
				},
			},
		},
	}
}

// seed creates a course version, a lesson-bound evaluation and enrolls the student
func (s *testServer) seed() string {
	s.t.Helper()

	w := s.do(http.MethodPost, "/api/v1/courses/"+courseID+"/versions", instructorID, RoleInstructor, map[string]interface{}{
		"modules":    quizModules(),
		"change_log": "initial",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	lesson := lessonID
	w = s.do(http.MethodPost, "/api/v1/evaluations", instructorID, RoleInstructor, services.CreateEvaluationRequest{
		CourseID:     courseID,
		LessonID:     &lesson,
		Title:        "Checkpoint quiz",
		PassingScore: 60,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	evaluation := decode[models.Evaluation](s.t, w)

	w = s.do(http.MethodPost, "/api/v1/courses/"+courseID+"/enroll", studentID, RoleStudent, nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	return evaluation.ID
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health", "", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(utils.RequestIDHeader))
}

func TestRouter_AttemptFlow(t *testing.T) {
	s := newTestServer(t, nil)
	evaluationID := s.seed()
	base := "/api/v1/evaluations/" + evaluationID

	w := s.do(http.MethodGet, base+"/access", studentID, RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[services.AccessView](t, w)
	assert.True(t, view.Eligibility.CanAttempt)
	assert.Equal(t, 2, view.Access.RemainingAttempts)

	w = s.do(http.MethodPost, base+"/token", studentID, RoleStudent, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[services.IssuedToken](t, w)
	assert.Contains(t, issued.DeepLink, "https://learn.example.com/evaluations/"+evaluationID)
	assert.Equal(t, 1, issued.AttemptNumber)

	w = s.do(http.MethodPost, "/api/v1/attempts/start", studentID, RoleStudent, services.StartAttemptRequest{Token: issued.Token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "correct_options")
	attempt := decode[struct {
		ID        string                   `json:"id"`
		Status    models.AttemptStatus     `json:"status"`
		Questions []models.StudentQuestion `json:"questions"`
	}](t, w)
	assert.Equal(t, models.AttemptInProgress, attempt.Status)
	require.Len(t, attempt.Questions, 1)
	assert.Len(t, attempt.Questions[0].Options, 2)

	w = s.do(http.MethodPost, "/api/v1/attempts/start", studentID, RoleStudent, services.StartAttemptRequest{Token: issued.Token})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, CodeTokenInvalid, decode[ErrorResponse](t, w).Code)

	w = s.do(http.MethodPut, "/api/v1/attempts/"+attempt.ID+"/answers", studentID, RoleStudent, services.RecordAnswerRequest{
		QuestionID: "q1",
		Value:      models.AnswerValue{SelectedOptions: []string{"b"}},
		TimeSpent:  12,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/attempts/"+attempt.ID+"/activity", studentID, RoleStudent, map[string]string{"type": "tab_switch"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode[services.ActivityResult](t, w).Recorded)

	w = s.do(http.MethodPost, "/api/v1/attempts/"+attempt.ID+"/activity", studentID, RoleStudent, "not an object")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = s.do(http.MethodPost, "/api/v1/attempts/"+attempt.ID+"/grade", studentID, RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	graded := decode[GradeResponse](t, w)
	assert.False(t, graded.Result.Passed)
	assert.Equal(t, 1, graded.Access.AttemptsUsed)
	assert.Equal(t, 1, graded.Access.RemainingAttempts)

	w = s.do(http.MethodPost, "/api/v1/attempts/"+attempt.ID+"/grade", studentID, RoleStudent, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeAlreadyGraded, decode[ErrorResponse](t, w).Code)

	w = s.do(http.MethodGet, base+"/access/countdown", studentID, RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[services.Countdown](t, w).TotalSeconds)
}

func TestRouter_LockedAccessReturnsUnlockTime(t *testing.T) {
	s := newTestServer(t, nil)
	evaluationID := s.seed()
	lockPath := "/api/v1/admin/evaluations/" + evaluationID + "/students/" + studentID + "/lock"

	w := s.do(http.MethodPost, lockPath, adminID, RoleAdmin, map[string]interface{}{"reason": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, decode[ErrorResponse](t, w).Code)

	w = s.do(http.MethodPost, lockPath, adminID, RoleAdmin, services.AdminLockRequest{Reason: models.LockAdmin, DurationHours: 24})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/evaluations/"+evaluationID+"/token", studentID, RoleStudent, nil)
	assert.Equal(t, http.StatusLocked, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, CodeLocked, resp.Code)
	details, ok := resp.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(models.LockAdmin), details["reason"])
	assert.NotEmpty(t, details["unlock_time"])

	w = s.do(http.MethodPost, "/api/v1/admin/evaluations/"+evaluationID+"/students/"+studentID+"/unlock", adminID, RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/evaluations/"+evaluationID+"/token", studentID, RoleStudent, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	evaluationID := s.seed()

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		role   string
		status int
		code   string
	}{
		{"missing user", http.MethodGet, "/api/v1/evaluations/" + evaluationID + "/access", "", "", http.StatusUnauthorized, CodeUnauthenticated},
		{"unknown evaluation", http.MethodGet, "/api/v1/evaluations/missing/access", studentID, RoleStudent, http.StatusNotFound, CodeNotFound},
		{"not enrolled", http.MethodPost, "/api/v1/evaluations/" + evaluationID + "/token", "student-2", RoleStudent, http.StatusForbidden, CodeNotEnrolled},
		{"student on admin route", http.MethodGet, "/api/v1/admin/evaluations/" + evaluationID + "/summary", studentID, RoleStudent, http.StatusForbidden, CodeForbidden},
		{"student completes attempt", http.MethodPost, "/api/v1/attempts/a-1/complete", studentID, RoleStudent, http.StatusForbidden, CodeForbidden},
		{"unknown attempt", http.MethodGet, "/api/v1/attempts/missing", studentID, RoleStudent, http.StatusNotFound, CodeNotFound},
		{"updates without version", http.MethodGet, "/api/v1/courses/" + courseID + "/updates", studentID, RoleStudent, http.StatusBadRequest, CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.user, tt.role, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestRouter_StudentEvaluationHidesAnswers(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	w := s.do(http.MethodPost, "/api/v1/evaluations", instructorID, RoleInstructor, services.CreateEvaluationRequest{
		CourseID:     courseID,
		Title:        "Standalone",
		PassingScore: 50,
		Questions:    quizModules()[0].Lessons[1].Quiz,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	evaluation := decode[models.Evaluation](t, w)

	w = s.do(http.MethodGet, "/api/v1/evaluations/"+evaluation.ID, studentID, RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "correct_options")
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, w)["question_count"])

	w = s.do(http.MethodGet, "/api/v1/evaluations/"+evaluation.ID, instructorID, RoleInstructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "correct_options")
}

func TestRouter_StudentCourseContentHidesAnswers(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed()

	w := s.do(http.MethodGet, "/api/v1/courses/"+courseID+"/versions/current", studentID, RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "correct_options")
	assert.Contains(t, w.Body.String(), "Which keyword starts a goroutine?")
	current := decode[models.CourseVersion](t, w)

	w = s.do(http.MethodGet, "/api/v1/courses/"+courseID+"/versions/"+current.ID+"/content-for-student", studentID, RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "correct_options")
	content := decode[services.StudentContent](t, w)
	require.Len(t, content.Modules, 1)
	require.Len(t, content.Modules[0].Lessons[1].Quiz, 1)
	assert.Len(t, content.Modules[0].Lessons[1].Quiz[0].Options, 2)

	w = s.do(http.MethodGet, "/api/v1/courses/"+courseID+"/versions/current", instructorID, RoleInstructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "correct_options")
}

func TestRouter_ExportReport(t *testing.T) {
	s := newTestServer(t, nil)
	evaluationID := s.seed()

	w := s.do(http.MethodGet, "/api/v1/admin/evaluations/"+evaluationID+"/report.xlsx", adminID, RoleAdmin, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), evaluationID)
	assert.NotZero(t, w.Body.Len())
}

type stubParser struct {
	claims *casdoorsdk.Claims
	err    error
}

func (p stubParser) ParseJwtToken(string) (*casdoorsdk.Claims, error) {
	return p.claims, p.err
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	claims := &casdoorsdk.Claims{}
	claims.User.Id = "casdoor-user"
	claims.User.Roles = []*casdoorsdk.Role{{Name: "Instructor"}}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", AuthMiddleware(stubParser{claims: claims}, utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(userIDKey), "role": currentRole(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "casdoor-user", body["user"])
	assert.Equal(t, RoleInstructor, body["role"])

	// headers are ignored once a parser is configured
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(userIDHeader, "spoofed")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
