package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
	"github.com/google/uuid"
)

type StartAttemptRequest struct {
	Token string `json:"token" validate:"required,max=64"`
}

type RecordAnswerRequest struct {
	QuestionID string             `json:"question_id" validate:"required"`
	Value      models.AnswerValue `json:"value"`
	TimeSpent  int                `json:"time_spent" validate:"min=0,max=86400"`
}

type CompleteAttemptRequest struct {
	Score  float64 `json:"score" validate:"min=0"`
	Passed bool    `json:"passed"`
}

// AttemptRecorder owns the attempt lifecycle. Complete is the only path
// that moves the attempt budget.
type AttemptRecorder struct {
	repo      repositories.Repository
	tokens    *TokenIssuer
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *slog.Logger
	now       func() time.Time
}

func NewAttemptRecorder(repo repositories.Repository, tokens *TokenIssuer, publisher events.EventPublisher, validator *validator.Validator, logger *slog.Logger) *AttemptRecorder {
	return &AttemptRecorder{
		repo:      repo,
		tokens:    tokens,
		publisher: publisher,
		validator: validator,
		logger:    logger,
		now:       defaultNow,
	}
}

// ===== START =====

// Start redeems a token and opens an attempt. Token consumption, the
// eligibility re-check and the attempt insert share one transaction.
func (r *AttemptRecorder) Start(ctx context.Context, req *StartAttemptRequest, studentID string, fp models.ClientFingerprint) (*models.EvaluationAttempt, error) {
	if err := r.validator.Validate(req); err != nil {
		return nil, err
	}

	var attempt *models.EvaluationAttempt
	err := r.repo.Transaction(ctx, func(tx repositories.Repository) error {
		now := r.now()

		token, err := tx.Token().GetByToken(ctx, req.Token)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTokenInvalid
			}
			return fmt.Errorf("failed to get token: %w", err)
		}
		if err := r.tokens.checkOwner(token, studentID); err != nil {
			return err
		}

		evaluation, err := getEvaluation(ctx, tx, token.EvaluationID)
		if err != nil {
			return err
		}

		access, err := lockAccess(ctx, tx, evaluation, studentID, now)
		if err != nil {
			return err
		}

		if _, err := r.tokens.Consume(ctx, tx, req.Token, studentID, now); err != nil {
			return err
		}

		if e := CanAttempt(access, now); !e.CanAttempt {
			return eligibilityError(access, e)
		}

		if token.AttemptNumber != access.AttemptsUsed+1 {
			r.logger.Warn("Token issued for another attempt slot",
				"token_id", token.ID,
				"token_attempt", token.AttemptNumber,
				"attempts_used", access.AttemptsUsed)
			return ErrTokenInvalid
		}

		if _, err := tx.Attempt().GetActiveByAccess(ctx, access.ID); err == nil {
			return ErrAttemptInProgress
		} else if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to check active attempt: %w", err)
		}

		questions, err := resolveQuestions(ctx, tx, evaluation, access.CourseVersionID)
		if err != nil {
			return err
		}
		if evaluation.RandomizeQuestions {
			shuffleQuestions(questions)
		}
		if evaluation.RandomizeOptions {
			shuffleOptions(questions)
		}

		attempt = &models.EvaluationAttempt{
			ID:              uuid.NewString(),
			AccessID:        access.ID,
			EvaluationID:    evaluation.ID,
			StudentID:       studentID,
			CourseVersionID: access.CourseVersionID,
			AttemptNumber:   access.AttemptsUsed + 1,
			TokenID:         token.ID,
			Status:          models.AttemptInProgress,
			StartedAt:       now,
			LastActivityAt:  now,
			MaxScore:        models.TotalPoints(questions),
			PassingScore:    evaluation.PassingScore,
			Questions:       questions,
			IPAddress:       fp.IPPtr(),
			UserAgent:       fp.UserAgentPtr(),
		}
		if evaluation.TimeLimitMinutes > 0 {
			expires := now.Add(time.Duration(evaluation.TimeLimitMinutes) * time.Minute)
			attempt.ExpiresAt = &expires
		}

		return tx.Attempt().Create(ctx, attempt)
	})
	if err != nil {
		r.logger.Warn("Failed to start attempt", "student_id", studentID, "error", err)
		return nil, err
	}

	r.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"evaluation_id", attempt.EvaluationID,
		"student_id", studentID,
		"attempt_number", attempt.AttemptNumber,
		"course_version_id", attempt.CourseVersionID)

	publishEvent(ctx, r.publisher, r.logger, events.NewAttemptStartedEvent(attempt))
	return attempt, nil
}

func shuffleQuestions(questions []models.EvaluationQuestion) {
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	for i := range questions {
		questions[i].Order = i + 1
	}
}

func shuffleOptions(questions []models.EvaluationQuestion) {
	for i := range questions {
		if questions[i].Choice == nil {
			continue
		}
		opts := questions[i].Choice.Options
		rand.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
	}
}

// ===== ANSWERS =====

// ownedAttempt loads an attempt for update and checks its owner.
func ownedAttempt(ctx context.Context, tx repositories.Repository, attemptID, studentID string) (*models.EvaluationAttempt, error) {
	attempt, err := tx.Attempt().GetForUpdate(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if studentID != "" && attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", "access", "attempt belongs to another student")
	}
	return attempt, nil
}

func (r *AttemptRecorder) GetAttempt(ctx context.Context, attemptID, studentID string) (*models.EvaluationAttempt, error) {
	return ownedAttempt(ctx, r.repo, attemptID, studentID)
}

// RecordAnswer stores or overwrites the answer to one question.
func (r *AttemptRecorder) RecordAnswer(ctx context.Context, attemptID, studentID string, req *RecordAnswerRequest) (*models.EvaluationAttempt, error) {
	if err := r.validator.Validate(req); err != nil {
		return nil, err
	}

	var attempt *models.EvaluationAttempt
	err := r.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		attempt, err = ownedAttempt(ctx, tx, attemptID, studentID)
		if err != nil {
			return err
		}

		now := r.now()
		if attempt.Status != models.AttemptInProgress || attempt.TerminationRequested {
			return ErrAttemptNotActive
		}
		if attempt.ExpiresAt != nil && now.After(*attempt.ExpiresAt) {
			return ErrAttemptNotActive
		}
		if _, ok := attempt.FindQuestion(req.QuestionID); !ok {
			return ValidationErrors{*NewValidationError("question_id", "question is not part of this attempt", req.QuestionID)}
		}

		attempt.UpsertAnswer(models.AttemptAnswer{
			QuestionID: req.QuestionID,
			Value:      req.Value,
			TimeSpent:  req.TimeSpent,
			AnsweredAt: now,
		})
		attempt.LastActivityAt = now
		return tx.Attempt().Update(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Answer recorded",
		"attempt_id", attemptID,
		"question_id", req.QuestionID)

	return attempt, nil
}

// Submit closes an attempt for answers. Grading happens in Complete.
func (r *AttemptRecorder) Submit(ctx context.Context, attemptID, studentID string) (*models.EvaluationAttempt, error) {
	var attempt *models.EvaluationAttempt
	err := r.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		attempt, err = ownedAttempt(ctx, tx, attemptID, studentID)
		if err != nil {
			return err
		}
		if attempt.Status != models.AttemptInProgress || attempt.TerminationRequested {
			return ErrAttemptNotActive
		}

		now := r.now()
		attempt.Status = models.AttemptSubmitted
		attempt.SubmittedAt = &now
		attempt.LastActivityAt = now
		return tx.Attempt().Update(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Attempt submitted", "attempt_id", attemptID, "student_id", attempt.StudentID)

	publishEvent(ctx, r.publisher, r.logger, events.NewEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:    attempt.ID,
		EvaluationID: attempt.EvaluationID,
		StudentID:    attempt.StudentID,
		SubmittedAt:  *attempt.SubmittedAt,
	}))
	return attempt, nil
}

// ===== COMPLETION =====

// scoreOutcome is what a scorer decided for one attempt. Pending leaves the
// attempt submitted for a reviewer with no ledger transition.
type scoreOutcome struct {
	Score   float64
	Passed  bool
	Pending bool
}

// scorer computes the final score of an attempt inside the completion
// transaction. It may also annotate the attempt's answers.
type scorer func(attempt *models.EvaluationAttempt) (scoreOutcome, error)

// Complete finalizes an attempt with an externally decided result.
func (r *AttemptRecorder) Complete(ctx context.Context, attemptID string, req *CompleteAttemptRequest) (*models.EvaluationAccess, *models.EvaluationAttempt, error) {
	if err := r.validator.Validate(req); err != nil {
		return nil, nil, err
	}
	return r.finalize(ctx, attemptID, "", func(attempt *models.EvaluationAttempt) (scoreOutcome, error) {
		if attempt.MaxScore > 0 && req.Score > float64(attempt.MaxScore) {
			return scoreOutcome{}, ValidationErrors{*NewValidationError("score", "score exceeds the attempt's max score", req.Score)}
		}
		return scoreOutcome{Score: req.Score, Passed: req.Passed}, nil
	})
}

// finalize grades the attempt and applies the matching ledger transition
// in one transaction. A non-empty studentID restricts it to the owner.
func (r *AttemptRecorder) finalize(ctx context.Context, attemptID, studentID string, score scorer) (*models.EvaluationAccess, *models.EvaluationAttempt, error) {
	var (
		access  *models.EvaluationAccess
		attempt *models.EvaluationAttempt
		pending bool
	)

	err := r.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		attempt, err = ownedAttempt(ctx, tx, attemptID, studentID)
		if err != nil {
			return err
		}

		switch attempt.Status {
		case models.AttemptGraded:
			return ErrAttemptAlreadyGraded
		case models.AttemptAbandoned:
			return ErrAttemptNotActive
		}

		evaluation, err := getEvaluation(ctx, tx, attempt.EvaluationID)
		if err != nil {
			return err
		}

		now := r.now()
		access, err = lockAccess(ctx, tx, evaluation, attempt.StudentID, now)
		if err != nil {
			return err
		}

		outcome, err := score(attempt)
		if err != nil {
			return err
		}

		attempt.LastActivityAt = now
		if attempt.SubmittedAt == nil {
			attempt.SubmittedAt = &now
		}
		if outcome.Pending {
			pending = true
			attempt.Status = models.AttemptSubmitted
			attempt.Score = outcome.Score
			return tx.Attempt().Update(ctx, attempt)
		}

		attempt.Status = models.AttemptGraded
		attempt.Score = outcome.Score
		attempt.Passed = outcome.Passed
		attempt.GradedAt = &now

		if outcome.Passed {
			AfterPassedAttempt(access)
		} else {
			AfterFailedAttempt(access, evaluation.LockoutPeriod(), now)
		}

		if err := tx.Access().Update(ctx, access); err != nil {
			return fmt.Errorf("failed to update access: %w", err)
		}
		return tx.Attempt().Update(ctx, attempt)
	})
	if err != nil {
		return nil, nil, err
	}

	if pending {
		r.logger.Info("Attempt awaiting manual review",
			"attempt_id", attempt.ID,
			"evaluation_id", attempt.EvaluationID,
			"student_id", attempt.StudentID,
			"provisional_score", attempt.Score)
		return access, attempt, nil
	}

	r.logger.Info("Attempt graded",
		"attempt_id", attempt.ID,
		"evaluation_id", attempt.EvaluationID,
		"student_id", attempt.StudentID,
		"score", attempt.Score,
		"passed", attempt.Passed,
		"remaining_attempts", access.RemainingAttempts,
		"is_locked", access.IsLocked)

	publishEvent(ctx, r.publisher, r.logger, events.NewAttemptGradedEvent(attempt, access))
	if !attempt.Passed && access.IsLocked {
		publishEvent(ctx, r.publisher, r.logger, events.NewAccessLockedEvent(access))
	}

	return access, attempt, nil
}

// ===== ABANDONMENT =====

// AbandonStale marks in-progress attempts idle since before cutoff as
// abandoned. Abandoned attempts do not consume budget.
func (r *AttemptRecorder) AbandonStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := r.repo.Attempt().ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale attempts: %w", err)
	}

	abandoned := 0
	for _, candidate := range stale {
		var changed *models.EvaluationAttempt
		err := r.repo.Transaction(ctx, func(tx repositories.Repository) error {
			attempt, err := tx.Attempt().GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// activity may have arrived since the list was read
			if attempt.Status != models.AttemptInProgress || !attempt.LastActivityAt.Before(cutoff) {
				return nil
			}

			now := r.now()
			attempt.Status = models.AttemptAbandoned
			attempt.AbandonedAt = &now
			changed = attempt
			return tx.Attempt().Update(ctx, attempt)
		})
		if err != nil {
			r.logger.Error("Failed to abandon attempt", "attempt_id", candidate.ID, "error", err)
			continue
		}
		if changed == nil {
			continue
		}

		abandoned++
		r.logger.Info("Attempt abandoned",
			"attempt_id", changed.ID,
			"student_id", changed.StudentID,
			"last_activity_at", changed.LastActivityAt)

		publishEvent(ctx, r.publisher, r.logger, events.NewEvent(events.EventAttemptAbandoned, events.AttemptAbandonedEvent{
			AttemptID:    changed.ID,
			EvaluationID: changed.EvaluationID,
			StudentID:    changed.StudentID,
			AbandonedAt:  *changed.AbandonedAt,
		}))
	}

	return abandoned, nil
}
