package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
)

const DefaultSuspiciousThreshold = 5

// maxActivityDetails bounds the stored free-text detail
const maxActivityDetails = 500

type ActivityReport struct {
	Type      models.ActivityType `json:"type" validate:"required,activity_type"`
	Timestamp time.Time           `json:"timestamp"`
	Details   string              `json:"details"`
}

type ActivityResult struct {
	Recorded         bool `json:"recorded"`
	TerminateSession bool `json:"terminate_session"`
	EventCount       int  `json:"event_count"`
}

// errActivityIgnored marks a report that is dropped without failing
var errActivityIgnored = errors.New("activity ignored")

// ActivityMonitor ingests client anti-cheat signals. It never fails the
// caller; bad input is logged and dropped.
type ActivityMonitor struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	validator *validator.Validator
	threshold int
	logger    *slog.Logger
	now       func() time.Time
}

func NewActivityMonitor(repo repositories.Repository, publisher events.EventPublisher, validator *validator.Validator, threshold int, logger *slog.Logger) *ActivityMonitor {
	if threshold <= 0 {
		threshold = DefaultSuspiciousThreshold
	}
	return &ActivityMonitor{
		repo:      repo,
		publisher: publisher,
		validator: validator,
		threshold: threshold,
		logger:    logger,
		now:       defaultNow,
	}
}

func isDuplicateActivity(attempt *models.EvaluationAttempt, report ActivityReport) bool {
	for _, a := range attempt.SuspiciousActivity {
		if a.Type == report.Type && a.Timestamp.Equal(report.Timestamp) && a.Details == report.Details {
			return true
		}
	}
	return false
}

func countActivity(attempt *models.EvaluationAttempt, activityType models.ActivityType) int {
	switch activityType {
	case models.ActivityScreenshot:
		attempt.ScreenshotAttempts++
		return attempt.ScreenshotAttempts
	case models.ActivityCopy:
		attempt.CopyAttempts++
		return attempt.CopyAttempts
	case models.ActivityTabSwitch:
		attempt.TabSwitches++
		return attempt.TabSwitches
	case models.ActivityWindowBlur:
		attempt.WindowBlurs++
		return attempt.WindowBlurs
	}

	count := 1
	for _, a := range attempt.SuspiciousActivity {
		if a.Type == activityType {
			count++
		}
	}
	return count
}

// Report records one activity event on an attempt.
func (m *ActivityMonitor) Report(ctx context.Context, attemptID, studentID string, report ActivityReport) ActivityResult {
	log := m.logger.With("attempt_id", attemptID, "activity_type", report.Type)

	if err := m.validator.Validate(&report); err != nil {
		log.Warn("Ignoring malformed activity report", "error", err)
		return ActivityResult{}
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = m.now()
	}
	if len(report.Details) > maxActivityDetails {
		report.Details = report.Details[:maxActivityDetails]
	}

	var (
		result  ActivityResult
		attempt *models.EvaluationAttempt
		access  *models.EvaluationAccess
		newLock bool
	)

	err := m.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		attempt, err = ownedAttempt(ctx, tx, attemptID, studentID)
		if err != nil {
			return err
		}
		if attempt.Status != models.AttemptInProgress {
			return errActivityIgnored
		}
		if isDuplicateActivity(attempt, report) {
			return errActivityIgnored
		}

		count := countActivity(attempt, report.Type)
		attempt.SuspiciousActivity = append(attempt.SuspiciousActivity, models.SuspiciousActivity{
			Type:      report.Type,
			Timestamp: report.Timestamp,
			Details:   report.Details,
			Count:     count,
		})
		now := m.now()
		attempt.LastActivityAt = now
		result.Recorded = true
		result.EventCount = len(attempt.SuspiciousActivity)

		evaluation, err := getEvaluation(ctx, tx, attempt.EvaluationID)
		if err != nil {
			return err
		}

		if evaluation.StrictMode && result.EventCount >= m.threshold {
			result.TerminateSession = true
			if !attempt.TerminationRequested {
				attempt.TerminationRequested = true
				access, err = lockAccess(ctx, tx, evaluation, attempt.StudentID, now)
				if err != nil {
					return err
				}
				ApplyLock(access, models.LockSuspiciousActivity, evaluation.LockoutPeriod(), now)
				if err := tx.Access().Update(ctx, access); err != nil {
					return err
				}
				newLock = true
			}
		}

		return tx.Attempt().Update(ctx, attempt)
	})

	if err != nil {
		if errors.Is(err, errActivityIgnored) {
			log.Info("Ignoring activity report", "reason", "duplicate or attempt not in progress")
		} else {
			log.Warn("Dropping activity report", "error", err)
		}
		return ActivityResult{}
	}

	log.Info("Suspicious activity recorded",
		"student_id", attempt.StudentID,
		"event_count", result.EventCount,
		"terminate_session", result.TerminateSession)

	if newLock {
		log.Warn("Suspicious activity threshold reached, access locked",
			"student_id", attempt.StudentID,
			"threshold", m.threshold,
			"locked_until", access.LockedUntil)

		publishEvent(ctx, m.publisher, m.logger, events.NewEvent(events.EventActivityThresholdReached, events.ActivityThresholdReachedEvent{
			AttemptID:    attempt.ID,
			EvaluationID: attempt.EvaluationID,
			StudentID:    attempt.StudentID,
			EventCount:   result.EventCount,
			Threshold:    m.threshold,
		}))
		publishEvent(ctx, m.publisher, m.logger, events.NewAccessLockedEvent(access))
	}

	return result
}
