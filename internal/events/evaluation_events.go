package events

import (
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents the kinds of domain events this service emits
type EventType string

const (
	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptGraded    EventType = "attempt.graded"
	EventAttemptAbandoned EventType = "attempt.abandoned"

	// Ledger events
	EventAccessLocked   EventType = "access.locked"
	EventAccessUnlocked EventType = "access.unlocked"

	// Anti-cheat events
	EventActivityThresholdReached EventType = "activity.threshold_reached"

	// Content events
	EventCourseVersionPublished EventType = "course_version.published"
)

const (
	eventSource  = "evaluation-access-service"
	eventVersion = "1.0"
)

// Event is the envelope published for every domain event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Event payloads

type AttemptStartedEvent struct {
	AttemptID       string    `json:"attempt_id"`
	EvaluationID    string    `json:"evaluation_id"`
	StudentID       string    `json:"student_id"`
	AttemptNumber   int       `json:"attempt_number"`
	CourseVersionID string    `json:"course_version_id"`
	StartedAt       time.Time `json:"started_at"`
}

type AttemptSubmittedEvent struct {
	AttemptID    string    `json:"attempt_id"`
	EvaluationID string    `json:"evaluation_id"`
	StudentID    string    `json:"student_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type AttemptGradedEvent struct {
	AttemptID         string    `json:"attempt_id"`
	EvaluationID      string    `json:"evaluation_id"`
	StudentID         string    `json:"student_id"`
	AttemptNumber     int       `json:"attempt_number"`
	Score             float64   `json:"score"`
	Passed            bool      `json:"passed"`
	RemainingAttempts int       `json:"remaining_attempts"`
	GradedAt          time.Time `json:"graded_at"`
}

type AttemptAbandonedEvent struct {
	AttemptID    string    `json:"attempt_id"`
	EvaluationID string    `json:"evaluation_id"`
	StudentID    string    `json:"student_id"`
	AbandonedAt  time.Time `json:"abandoned_at"`
}

type AccessLockedEvent struct {
	AccessID     string            `json:"access_id"`
	EvaluationID string            `json:"evaluation_id"`
	StudentID    string            `json:"student_id"`
	Reason       models.LockReason `json:"reason"`
	LockedUntil  time.Time         `json:"locked_until"`
}

type AccessUnlockedEvent struct {
	AccessID     string    `json:"access_id"`
	EvaluationID string    `json:"evaluation_id"`
	StudentID    string    `json:"student_id"`
	UnlockedBy   string    `json:"unlocked_by"`
	UnlockedAt   time.Time `json:"unlocked_at"`
}

type ActivityThresholdReachedEvent struct {
	AttemptID    string `json:"attempt_id"`
	EvaluationID string `json:"evaluation_id"`
	StudentID    string `json:"student_id"`
	EventCount   int    `json:"event_count"`
	Threshold    int    `json:"threshold"`
}

type CourseVersionPublishedEvent struct {
	CourseID  string `json:"course_id"`
	VersionID string `json:"version_id"`
	Version   int    `json:"version"`
	ChangeLog string `json:"change_log,omitempty"`
	CreatedBy string `json:"created_by"`
}

// NewEvent wraps a payload in the standard envelope
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

func NewAttemptStartedEvent(attempt *models.EvaluationAttempt) *Event {
	return NewEvent(EventAttemptStarted, AttemptStartedEvent{
		AttemptID:       attempt.ID,
		EvaluationID:    attempt.EvaluationID,
		StudentID:       attempt.StudentID,
		AttemptNumber:   attempt.AttemptNumber,
		CourseVersionID: attempt.CourseVersionID,
		StartedAt:       attempt.StartedAt,
	})
}

func NewAttemptGradedEvent(attempt *models.EvaluationAttempt, access *models.EvaluationAccess) *Event {
	var gradedAt time.Time
	if attempt.GradedAt != nil {
		gradedAt = *attempt.GradedAt
	}
	return NewEvent(EventAttemptGraded, AttemptGradedEvent{
		AttemptID:         attempt.ID,
		EvaluationID:      attempt.EvaluationID,
		StudentID:         attempt.StudentID,
		AttemptNumber:     attempt.AttemptNumber,
		Score:             attempt.Score,
		Passed:            attempt.Passed,
		RemainingAttempts: access.RemainingAttempts,
		GradedAt:          gradedAt,
	})
}

// NewAccessLockedEvent returns nil when access is not locked
func NewAccessLockedEvent(access *models.EvaluationAccess) *Event {
	if !access.IsLocked || access.LockedUntil == nil || access.LockedReason == nil {
		return nil
	}
	return NewEvent(EventAccessLocked, AccessLockedEvent{
		AccessID:     access.ID,
		EvaluationID: access.EvaluationID,
		StudentID:    access.StudentID,
		Reason:       *access.LockedReason,
		LockedUntil:  *access.LockedUntil,
	})
}

// GenerateEventID returns a unique event id
func GenerateEventID() string {
	return uuid.NewString()
}
