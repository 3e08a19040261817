package models

import (
	"fmt"
	"time"
)

type LockReason string

const (
	LockMaxAttempts        LockReason = "max_attempts"
	LockSuspiciousActivity LockReason = "suspicious_activity"
	LockAdmin              LockReason = "admin_lock"
)

// EvaluationAccess is the per (evaluation, student) attempt ledger.
type EvaluationAccess struct {
	ID              string `json:"id" gorm:"primaryKey;size:36"`
	EvaluationID    string `json:"evaluation_id" gorm:"not null;size:36;uniqueIndex:idx_access_evaluation_student"`
	StudentID       string `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_access_evaluation_student"`
	CourseID        string `json:"course_id" gorm:"not null;size:36;index"`
	CourseVersionID string `json:"course_version_id" gorm:"not null;size:36"`

	AttemptsAllowed   int `json:"attempts_allowed" gorm:"not null"`
	AttemptsUsed      int `json:"attempts_used" gorm:"not null;default:0"`
	RemainingAttempts int `json:"remaining_attempts" gorm:"not null"`

	IsLocked     bool        `json:"is_locked" gorm:"not null;default:false"`
	LockedUntil  *time.Time  `json:"locked_until"`
	LockedReason *LockReason `json:"locked_reason" gorm:"size:32"`
	LockCount    int         `json:"lock_count" gorm:"not null;default:0"`

	// RowVersion backs the optimistic check on every ledger write.
	RowVersion int `json:"-" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attempts []EvaluationAttempt `json:"attempts" gorm:"foreignKey:AccessID"`
}

func (EvaluationAccess) TableName() string {
	return "evaluation_access"
}

// NewEvaluationAccess builds a fresh ledger row with the fixed policy budget.
func NewEvaluationAccess(id string, evaluation *Evaluation, studentID, courseVersionID string) *EvaluationAccess {
	allowed := evaluation.AttemptsAllowed
	if allowed <= 0 {
		allowed = DefaultAttemptsAllowed
	}
	return &EvaluationAccess{
		ID:                id,
		EvaluationID:      evaluation.ID,
		StudentID:         studentID,
		CourseID:          evaluation.CourseID,
		CourseVersionID:   courseVersionID,
		AttemptsAllowed:   allowed,
		RemainingAttempts: allowed,
		RowVersion:        1,
	}
}

// MustBeConsistent panics when the budget invariant is broken. Storage calls
// it before every write; a violation is a programming error.
func (a *EvaluationAccess) MustBeConsistent() {
	if a.RemainingAttempts < 0 || a.AttemptsUsed < 0 || a.AttemptsUsed+a.RemainingAttempts != a.AttemptsAllowed {
		panic(fmt.Sprintf("evaluation access %s: inconsistent budget allowed=%d used=%d remaining=%d",
			a.ID, a.AttemptsAllowed, a.AttemptsUsed, a.RemainingAttempts))
	}
	if a.IsLocked && a.LockedUntil == nil {
		panic(fmt.Sprintf("evaluation access %s: locked without lockedUntil", a.ID))
	}
}
