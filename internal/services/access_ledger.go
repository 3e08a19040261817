package services

import (
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

// Eligibility reasons returned by CanAttempt
const (
	ReasonLocked     = "locked"
	ReasonNoAttempts = "no_attempts"
)

// AccessState is the derived state of a ledger row
type AccessState string

const (
	AccessFresh     AccessState = "fresh"
	AccessActive    AccessState = "active"
	AccessLocked    AccessState = "locked"
	AccessUnlocked  AccessState = "unlocked"
	AccessExhausted AccessState = "exhausted"
)

type Eligibility struct {
	CanAttempt        bool       `json:"can_attempt"`
	Reason            string     `json:"reason,omitempty"`
	UnlockTime        *time.Time `json:"unlock_time,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts"`
}

// Countdown is the time left until a lock expires, clamped at zero.
type Countdown struct {
	Hours        int64 `json:"hours"`
	Minutes      int64 `json:"minutes"`
	Seconds      int64 `json:"seconds"`
	TotalSeconds int64 `json:"total_seconds"`
}

// lockActive reports whether the lock on access still holds at now. The
// stored isLocked flag is not trusted on its own: an elapsed timer means
// unlocked.
func lockActive(access *models.EvaluationAccess, now time.Time) bool {
	return access.IsLocked && access.LockedUntil != nil && now.Before(*access.LockedUntil)
}

// CanAttempt decides whether a new attempt may start. A lock wins over an
// empty budget.
func CanAttempt(access *models.EvaluationAccess, now time.Time) Eligibility {
	if access == nil {
		return Eligibility{CanAttempt: true, RemainingAttempts: models.DefaultAttemptsAllowed}
	}

	if lockActive(access, now) {
		unlock := *access.LockedUntil
		return Eligibility{
			CanAttempt:        false,
			Reason:            ReasonLocked,
			UnlockTime:        &unlock,
			RemainingAttempts: access.RemainingAttempts,
		}
	}

	if access.RemainingAttempts <= 0 {
		return Eligibility{CanAttempt: false, Reason: ReasonNoAttempts}
	}

	return Eligibility{CanAttempt: true, RemainingAttempts: access.RemainingAttempts}
}

// eligibilityError converts a negative decision into the matching error
func eligibilityError(access *models.EvaluationAccess, e Eligibility) error {
	switch e.Reason {
	case ReasonLocked:
		reason := models.LockMaxAttempts
		if access != nil && access.LockedReason != nil {
			reason = *access.LockedReason
		}
		return &AccessLockedError{UnlockTime: *e.UnlockTime, Reason: reason}
	case ReasonNoAttempts:
		return ErrNoAttemptsRemaining
	}
	return nil
}

func consumeAttempt(access *models.EvaluationAccess) {
	if access.RemainingAttempts <= 0 {
		panic("evaluation access: attempt recorded with no remaining budget")
	}
	access.AttemptsUsed++
	access.RemainingAttempts = access.AttemptsAllowed - access.AttemptsUsed
}

// AfterFailedAttempt consumes one attempt; exhausting the budget locks the
// ledger for lockout.
func AfterFailedAttempt(access *models.EvaluationAccess, lockout time.Duration, now time.Time) {
	consumeAttempt(access)
	if access.RemainingAttempts == 0 {
		ApplyLock(access, models.LockMaxAttempts, lockout, now)
	}
}

// AfterPassedAttempt consumes one attempt and never locks.
func AfterPassedAttempt(access *models.EvaluationAccess) {
	consumeAttempt(access)
}

// ApplyLock locks the ledger without touching the attempt budget.
func ApplyLock(access *models.EvaluationAccess, reason models.LockReason, lockout time.Duration, now time.Time) {
	until := now.Add(lockout)
	access.IsLocked = true
	access.LockedUntil = &until
	access.LockedReason = &reason
	access.LockCount++
}

// ReleaseLock clears any lock. Attempts already used stay used.
func ReleaseLock(access *models.EvaluationAccess) {
	access.IsLocked = false
	access.LockedUntil = nil
	access.LockedReason = nil
}

// expireLock clears a lock whose timer has elapsed; it reports whether the
// row changed.
func expireLock(access *models.EvaluationAccess, now time.Time) bool {
	if access.IsLocked && !lockActive(access, now) {
		ReleaseLock(access)
		return true
	}
	return false
}

// TimeUntilUnlock returns the countdown to lockedUntil. Past or nil times
// give zero.
func TimeUntilUnlock(lockedUntil *time.Time, now time.Time) Countdown {
	if lockedUntil == nil || !now.Before(*lockedUntil) {
		return Countdown{}
	}
	total := int64(lockedUntil.Sub(now) / time.Second)
	return Countdown{
		Hours:        total / 3600,
		Minutes:      (total % 3600) / 60,
		Seconds:      total % 60,
		TotalSeconds: total,
	}
}

// State derives the lifecycle state of a ledger row.
func State(access *models.EvaluationAccess, now time.Time) AccessState {
	switch {
	case access == nil:
		return AccessFresh
	case lockActive(access, now):
		return AccessLocked
	case access.IsLocked:
		return AccessUnlocked
	case access.RemainingAttempts == 0:
		return AccessExhausted
	case access.AttemptsUsed == 0:
		return AccessFresh
	default:
		return AccessActive
	}
}

func defaultNow() time.Time {
	return time.Now().UTC()
}
