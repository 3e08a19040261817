package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/cache"
	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
	"github.com/google/uuid"
)

const eligibilityCacheTTL = 30 * time.Second

// ===== REQUEST/RESPONSE TYPES =====

type CreateEvaluationRequest struct {
	CourseID           string                      `json:"course_id" validate:"required"`
	LessonID           *string                     `json:"lesson_id"`
	Title              string                      `json:"title" validate:"required,min=1,max=200"`
	Description        *string                     `json:"description" validate:"omitempty,max=2000"`
	Questions          []models.EvaluationQuestion `json:"questions" validate:"omitempty,dive"`
	TimeLimitMinutes   int                         `json:"time_limit_minutes" validate:"min=0,max=600"`
	PassingScore       int                         `json:"passing_score" validate:"min=0,max=100"`
	Security           models.SecurityFlags        `json:"security"`
	RandomizeQuestions bool                        `json:"randomize_questions"`
	RandomizeOptions   bool                        `json:"randomize_options"`
	StrictMode         bool                        `json:"strict_mode"`
}

type AdminLockRequest struct {
	Reason        models.LockReason `json:"reason" validate:"required,lock_reason"`
	DurationHours int               `json:"duration_hours" validate:"min=0,max=8760"`
}

// AccessView is the ledger as returned to clients
type AccessView struct {
	Access      *models.EvaluationAccess `json:"access"`
	Eligibility Eligibility              `json:"eligibility"`
	Countdown   Countdown                `json:"countdown"`
	State       AccessState              `json:"state"`
}

type IssuedToken struct {
	Token         string    `json:"token"`
	TokenID       string    `json:"token_id"`
	AttemptNumber int       `json:"attempt_number"`
	ExpiresAt     time.Time `json:"expires_at"`
	DeepLink      string    `json:"deep_link"`
}

// AccessCoordinator is the entry point used by handlers. It sequences the
// ledger, tokens, attempts and activity monitor.
type AccessCoordinator struct {
	repo      repositories.Repository
	ledger    *LedgerService
	tokens    *TokenIssuer
	versions  *VersionStore
	recorder  *AttemptRecorder
	monitor   *ActivityMonitor
	cache     cache.CacheService
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *slog.Logger
	audit     *ServiceLogger
	now       func() time.Time
}

type CoordinatorConfig struct {
	TokenTTL            time.Duration
	BaseURL             string
	SuspiciousThreshold int
}

func NewAccessCoordinator(repo repositories.Repository, cacheService cache.CacheService, publisher events.EventPublisher, validator *validator.Validator, logger *slog.Logger, cfg CoordinatorConfig) *AccessCoordinator {
	tokens := NewTokenIssuer(cfg.TokenTTL, cfg.BaseURL, logger)
	audit := NewServiceLogger(logger, LogConfig{
		Service:   "evaluation-access-service",
		Component: "access_coordinator",
	})
	return &AccessCoordinator{
		repo:      repo,
		ledger:    NewLedgerService(repo, logger),
		tokens:    tokens,
		versions:  NewVersionStore(repo, cacheService, publisher, validator, logger),
		recorder:  NewAttemptRecorder(repo, tokens, publisher, validator, logger),
		monitor:   NewActivityMonitor(repo, publisher, validator, cfg.SuspiciousThreshold, logger),
		cache:     cacheService,
		publisher: publisher,
		validator: validator,
		logger:    logger,
		audit:     audit,
		now:       defaultNow,
	}
}

// SetClock replaces the time source of every component.
func (c *AccessCoordinator) SetClock(now func() time.Time) {
	c.now = now
	c.ledger.now = now
	c.tokens.now = now
	c.versions.now = now
	c.recorder.now = now
	c.monitor.now = now
}

func (c *AccessCoordinator) Versions() *VersionStore {
	return c.versions
}

func (c *AccessCoordinator) Recorder() *AttemptRecorder {
	return c.recorder
}

// ===== EVALUATIONS =====

func (c *AccessCoordinator) CreateEvaluation(ctx context.Context, req *CreateEvaluationRequest, creatorID string) (*models.Evaluation, error) {
	if err := c.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.LessonID == nil || len(req.Questions) > 0 {
		if err := c.validator.Question().ValidateBatch(req.Questions); err != nil {
			return nil, validationFailed(err)
		}
	}

	evaluation := &models.Evaluation{
		ID:                 uuid.NewString(),
		CourseID:           req.CourseID,
		LessonID:           req.LessonID,
		Title:              req.Title,
		Description:        req.Description,
		Questions:          req.Questions,
		TimeLimitMinutes:   req.TimeLimitMinutes,
		PassingScore:       req.PassingScore,
		Security:           req.Security,
		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeOptions:   req.RandomizeOptions,
		StrictMode:         req.StrictMode,
		CreatedBy:          creatorID,
	}
	evaluation.ApplyPolicy()

	if err := c.repo.Evaluation().Create(ctx, evaluation); err != nil {
		return nil, fmt.Errorf("failed to create evaluation: %w", err)
	}

	c.logger.Info("Evaluation created",
		"evaluation_id", evaluation.ID,
		"course_id", evaluation.CourseID,
		"created_by", creatorID)

	return evaluation, nil
}

func (c *AccessCoordinator) GetEvaluation(ctx context.Context, evaluationID string) (*models.Evaluation, error) {
	return getEvaluation(ctx, c.repo, evaluationID)
}

// UpdateEvaluation rewrites an evaluation that no attempt references yet.
func (c *AccessCoordinator) UpdateEvaluation(ctx context.Context, evaluationID string, req *CreateEvaluationRequest) (*models.Evaluation, error) {
	if err := c.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.LessonID == nil || len(req.Questions) > 0 {
		if err := c.validator.Question().ValidateBatch(req.Questions); err != nil {
			return nil, validationFailed(err)
		}
	}

	var evaluation *models.Evaluation
	err := c.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		evaluation, err = getEvaluation(ctx, tx, evaluationID)
		if err != nil {
			return err
		}

		inUse, err := tx.Evaluation().HasAttempts(ctx, evaluationID)
		if err != nil {
			return fmt.Errorf("failed to check attempts: %w", err)
		}
		if inUse {
			return ErrEvaluationInUse
		}
		if req.CourseID != evaluation.CourseID {
			return NewBusinessRuleError("course_fixed", "an evaluation cannot move to another course", map[string]interface{}{
				"course_id": evaluation.CourseID,
			})
		}

		evaluation.LessonID = req.LessonID
		evaluation.Title = req.Title
		evaluation.Description = req.Description
		evaluation.Questions = req.Questions
		evaluation.TimeLimitMinutes = req.TimeLimitMinutes
		evaluation.PassingScore = req.PassingScore
		evaluation.Security = req.Security
		evaluation.RandomizeQuestions = req.RandomizeQuestions
		evaluation.RandomizeOptions = req.RandomizeOptions
		evaluation.StrictMode = req.StrictMode
		evaluation.ApplyPolicy()
		return tx.Evaluation().Update(ctx, evaluation)
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.DeletePattern(ctx, cache.EligibilityPattern(evaluationID)); err != nil {
		c.logger.Warn("Failed to invalidate eligibility cache", "evaluation_id", evaluationID, "error", err)
	}
	return evaluation, nil
}

// ===== ACCESS =====

// GetAccess returns the ledger, creating it on first call.
func (c *AccessCoordinator) GetAccess(ctx context.Context, evaluationID, studentID string) (*AccessView, error) {
	access, err := c.ledger.GetOrCreate(ctx, evaluationID, studentID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	return &AccessView{
		Access:      access,
		Eligibility: CanAttempt(access, now),
		Countdown:   TimeUntilUnlock(access.LockedUntil, now),
		State:       State(access, now),
	}, nil
}

// CanAttempt answers from a short-lived cached snapshot. Mutations always
// re-check inside their own transaction.
func (c *AccessCoordinator) CanAttempt(ctx context.Context, evaluationID, studentID string) (Eligibility, error) {
	key := cache.EligibilityKey(evaluationID, studentID)

	var cached Eligibility
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		if cached.UnlockTime == nil || c.now().Before(*cached.UnlockTime) {
			return cached, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Eligibility cache read failed", "key", key, "error", err)
	}

	access, err := c.ledger.GetOrCreate(ctx, evaluationID, studentID)
	if err != nil {
		return Eligibility{}, err
	}

	eligibility := CanAttempt(access, c.now())
	if err := c.cache.Set(ctx, key, eligibility, eligibilityCacheTTL); err != nil {
		c.logger.Warn("Failed to cache eligibility", "key", key, "error", err)
	}
	return eligibility, nil
}

func (c *AccessCoordinator) TimeUntilUnlock(ctx context.Context, evaluationID, studentID string) (Countdown, error) {
	access, err := c.ledger.GetOrCreate(ctx, evaluationID, studentID)
	if err != nil {
		return Countdown{}, err
	}
	return TimeUntilUnlock(access.LockedUntil, c.now()), nil
}

func (c *AccessCoordinator) invalidateEligibility(ctx context.Context, evaluationID, studentID string) {
	if err := c.cache.Delete(ctx, cache.EligibilityKey(evaluationID, studentID)); err != nil {
		c.logger.Warn("Failed to invalidate eligibility cache",
			"evaluation_id", evaluationID,
			"student_id", studentID,
			"error", err)
	}
}

// ===== TOKENS & ATTEMPTS =====

// IssueToken mints a token for the student's next attempt slot. It is
// refused while the student cannot attempt or already has an open attempt.
func (c *AccessCoordinator) IssueToken(ctx context.Context, evaluationID, studentID string, fp models.ClientFingerprint) (*IssuedToken, error) {
	evaluation, err := getEvaluation(ctx, c.repo, evaluationID)
	if err != nil {
		return nil, err
	}

	var token *models.EvaluationToken
	err = c.repo.Transaction(ctx, func(tx repositories.Repository) error {
		now := c.now()
		access, err := lockAccess(ctx, tx, evaluation, studentID, now)
		if err != nil {
			return err
		}

		if e := CanAttempt(access, now); !e.CanAttempt {
			return eligibilityError(access, e)
		}

		if _, err := tx.Attempt().GetActiveByAccess(ctx, access.ID); err == nil {
			return ErrAttemptInProgress
		} else if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to check active attempt: %w", err)
		}

		token, err = c.tokens.Issue(ctx, tx, evaluationID, studentID, access.AttemptsUsed+1, fp)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &IssuedToken{
		Token:         token.Token,
		TokenID:       token.ID,
		AttemptNumber: token.AttemptNumber,
		ExpiresAt:     token.ExpiresAt,
		DeepLink:      c.tokens.DeepLink(evaluationID, token.Token),
	}, nil
}

func (c *AccessCoordinator) StartAttempt(ctx context.Context, req *StartAttemptRequest, studentID string, fp models.ClientFingerprint) (*models.EvaluationAttempt, error) {
	op := c.audit.WithOperation(ctx, "start_attempt", studentID)
	attempt, err := c.recorder.Start(ctx, req, studentID, fp)
	if err != nil {
		op.LogResult("", "evaluation_attempt", err)
		if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) {
			op.LogSecurity(SecurityEventInvalidToken, SecuritySeverityMedium, "Attempt start refused for token", map[string]interface{}{
				"reason": err.Error(),
			})
		}
		return nil, err
	}
	op.LogResult(attempt.ID, "evaluation_attempt", nil)
	c.invalidateEligibility(ctx, attempt.EvaluationID, studentID)
	return attempt, nil
}

func (c *AccessCoordinator) GetAttempt(ctx context.Context, attemptID, studentID string) (*models.EvaluationAttempt, error) {
	return c.recorder.GetAttempt(ctx, attemptID, studentID)
}

func (c *AccessCoordinator) RecordAnswer(ctx context.Context, attemptID, studentID string, req *RecordAnswerRequest) (*models.EvaluationAttempt, error) {
	return c.recorder.RecordAnswer(ctx, attemptID, studentID, req)
}

// ReportActivity never fails; see ActivityMonitor.Report.
func (c *AccessCoordinator) ReportActivity(ctx context.Context, attemptID, studentID string, report ActivityReport) ActivityResult {
	result := c.monitor.Report(ctx, attemptID, studentID, report)
	if result.TerminateSession {
		if attempt, err := c.repo.Attempt().GetByID(ctx, attemptID); err == nil {
			c.invalidateEligibility(ctx, attempt.EvaluationID, attempt.StudentID)
		}
		c.audit.WithOperation(ctx, "report_activity", studentID).LogSecurity(
			SecurityEventSuspiciousActivity, SecuritySeverityHigh, "Session termination requested",
			map[string]interface{}{
				"attempt_id":  attemptID,
				"event_count": result.EventCount,
			})
	}
	return result
}

func (c *AccessCoordinator) SubmitAttempt(ctx context.Context, attemptID, studentID string) (*models.EvaluationAttempt, error) {
	return c.recorder.Submit(ctx, attemptID, studentID)
}

// CompleteAttempt finalizes an attempt with an externally decided result
// and returns the updated ledger.
func (c *AccessCoordinator) CompleteAttempt(ctx context.Context, attemptID string, req *CompleteAttemptRequest) (*models.EvaluationAccess, error) {
	access, attempt, err := c.recorder.Complete(ctx, attemptID, req)
	if err != nil {
		return nil, err
	}
	c.invalidateEligibility(ctx, attempt.EvaluationID, attempt.StudentID)
	return c.withAttempts(ctx, access)
}

// GradeAttempt auto-grades an attempt and returns the updated ledger.
func (c *AccessCoordinator) GradeAttempt(ctx context.Context, attemptID, studentID string) (*models.EvaluationAccess, *GradeResult, error) {
	access, attempt, result, err := c.recorder.Grade(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	c.invalidateEligibility(ctx, attempt.EvaluationID, attempt.StudentID)

	access, err = c.withAttempts(ctx, access)
	if err != nil {
		return nil, nil, err
	}
	return access, result, nil
}

func (c *AccessCoordinator) withAttempts(ctx context.Context, access *models.EvaluationAccess) (*models.EvaluationAccess, error) {
	full, err := c.repo.Access().GetWithAttempts(ctx, access.EvaluationID, access.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload access: %w", err)
	}
	return full, nil
}

// ===== ADMIN =====

func (c *AccessCoordinator) AdminLock(ctx context.Context, evaluationID, studentID string, req *AdminLockRequest, adminID string) (*models.EvaluationAccess, error) {
	if err := c.validator.Validate(req); err != nil {
		return nil, err
	}

	op := c.audit.WithOperation(ctx, "admin_lock", adminID)
	access, err := c.ledger.Lock(ctx, evaluationID, studentID, req.Reason, time.Duration(req.DurationHours)*time.Hour)
	op.LogResult(evaluationID, "evaluation_access", err)
	if err != nil {
		return nil, err
	}
	c.invalidateEligibility(ctx, evaluationID, studentID)

	op.LogSecurity(SecurityEventAdminOverride, SecuritySeverityLow, "Administrative lock applied", map[string]interface{}{
		"student_id":   studentID,
		"reason":       string(req.Reason),
		"locked_until": access.LockedUntil,
	})

	publishEvent(ctx, c.publisher, c.logger, events.NewAccessLockedEvent(access))
	return access, nil
}

func (c *AccessCoordinator) AdminUnlock(ctx context.Context, evaluationID, studentID, adminID string) (*models.EvaluationAccess, error) {
	op := c.audit.WithOperation(ctx, "admin_unlock", adminID)
	access, err := c.ledger.Unlock(ctx, evaluationID, studentID)
	op.LogResult(evaluationID, "evaluation_access", err)
	if err != nil {
		return nil, err
	}
	c.invalidateEligibility(ctx, evaluationID, studentID)
	op.LogSecurity(SecurityEventAdminOverride, SecuritySeverityLow, "Administrative unlock applied", map[string]interface{}{
		"student_id": studentID,
	})

	publishEvent(ctx, c.publisher, c.logger, events.NewEvent(events.EventAccessUnlocked, events.AccessUnlockedEvent{
		AccessID:     access.ID,
		EvaluationID: evaluationID,
		StudentID:    studentID,
		UnlockedBy:   adminID,
		UnlockedAt:   c.now(),
	}))
	return access, nil
}

// ===== MAINTENANCE =====

// AbandonStale is called by the background sweeper.
func (c *AccessCoordinator) AbandonStale(ctx context.Context, idleFor time.Duration, limit int) (int, error) {
	return c.recorder.AbandonStale(ctx, c.now().Add(-idleFor), limit)
}

// PurgeExpiredTokens removes unused tokens that expired before olderThan ago.
func (c *AccessCoordinator) PurgeExpiredTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	return c.repo.Token().DeleteExpired(ctx, c.now().Add(-olderThan))
}
