package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// AnswerValue carries the student's response; which field is read depends on
// the question type.
type AnswerValue struct {
	SelectedOptions []string `json:"selected_options,omitempty"`
	Boolean         *bool    `json:"boolean,omitempty"`
	Text            string   `json:"text,omitempty"`
}

type AttemptAnswer struct {
	QuestionID   string      `json:"question_id"`
	Value        AnswerValue `json:"value"`
	TimeSpent    int         `json:"time_spent"` // seconds
	AnsweredAt   time.Time   `json:"answered_at"`
	Revisions    int         `json:"revisions"`
	PointsEarned *int        `json:"points_earned,omitempty"`
}

type EvaluationAttempt struct {
	ID              string        `json:"id" gorm:"primaryKey;size:36"`
	AccessID        string        `json:"access_id" gorm:"not null;size:36;index"`
	EvaluationID    string        `json:"evaluation_id" gorm:"not null;size:36;index"`
	StudentID       string        `json:"student_id" gorm:"not null;size:255;index"`
	CourseVersionID string        `json:"course_version_id" gorm:"not null;size:36"`
	AttemptNumber   int           `json:"attempt_number" gorm:"not null"`
	TokenID         string        `json:"token_id" gorm:"not null;size:36;uniqueIndex"`
	Status          AttemptStatus `json:"status" gorm:"not null;default:in_progress;index"`

	// Timing
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at" gorm:"index"`
	ExpiresAt      *time.Time `json:"expires_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	GradedAt       *time.Time `json:"graded_at"`
	AbandonedAt    *time.Time `json:"abandoned_at"`

	// Scoring
	Score        float64 `json:"score"`
	MaxScore     int     `json:"max_score"`
	PassingScore int     `json:"passing_score"`
	Passed       bool    `json:"passed"`

	Questions datatypes.JSONSlice[EvaluationQuestion] `json:"-" gorm:"type:jsonb"`
	Answers   datatypes.JSONSlice[AttemptAnswer]      `json:"answers" gorm:"type:jsonb"`

	// Security telemetry
	ScreenshotAttempts   int                                     `json:"screenshot_attempts"`
	CopyAttempts         int                                     `json:"copy_attempts"`
	TabSwitches          int                                     `json:"tab_switches"`
	WindowBlurs          int                                     `json:"window_blurs"`
	SuspiciousActivity   datatypes.JSONSlice[SuspiciousActivity] `json:"suspicious_activity" gorm:"type:jsonb"`
	TerminationRequested bool                                    `json:"termination_requested"`

	IPAddress *string `json:"ip_address" gorm:"size:45"`
	UserAgent *string `json:"user_agent" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EvaluationAttempt) TableName() string {
	return "evaluation_attempts"
}

// FindQuestion looks up a question in the pinned question set.
func (a *EvaluationAttempt) FindQuestion(questionID string) (*EvaluationQuestion, bool) {
	for i := range a.Questions {
		if a.Questions[i].ID == questionID {
			return &a.Questions[i], true
		}
	}
	return nil, false
}

// UpsertAnswer overwrites the answer for the same question or appends a new one.
func (a *EvaluationAttempt) UpsertAnswer(answer AttemptAnswer) {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == answer.QuestionID {
			answer.Revisions = a.Answers[i].Revisions + 1
			answer.TimeSpent += a.Answers[i].TimeSpent
			a.Answers[i] = answer
			return
		}
	}
	a.Answers = append(a.Answers, answer)
}

func (a *EvaluationAttempt) IsFinal() bool {
	return a.Status == AttemptGraded || a.Status == AttemptAbandoned
}
