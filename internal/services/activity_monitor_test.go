package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tabSwitch(at time.Time, n int) ActivityReport {
	return ActivityReport{
		Type:      models.ActivityTabSwitch,
		Timestamp: at,
		Details:   fmt.Sprintf("switch %d", n),
	}
}

func TestReportActivity_StrictModeThresholdLocks(t *testing.T) {
	f := newFixture(t, withStrictMode())
	attempt := f.start(t, testStudentID)

	var result ActivityResult
	for i := 1; i <= DefaultSuspiciousThreshold; i++ {
		f.clock.Advance(time.Second)
		result = f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(f.clock.Now(), i))
		require.True(t, result.Recorded)
		assert.Equal(t, i, result.EventCount)
		if i < DefaultSuspiciousThreshold {
			assert.False(t, result.TerminateSession)
		}
	}
	assert.True(t, result.TerminateSession)

	eligibility, err := f.coord.CanAttempt(f.ctx, f.evaluation.ID, testStudentID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanAttempt)
	assert.Equal(t, ReasonLocked, eligibility.Reason)
	assert.Equal(t, 2, eligibility.RemainingAttempts)

	view, err := f.coord.GetAccess(f.ctx, f.evaluation.ID, testStudentID)
	require.NoError(t, err)
	requireBudgetInvariant(t, view.Access)
	require.NotNil(t, view.Access.LockedReason)
	assert.Equal(t, models.LockSuspiciousActivity, *view.Access.LockedReason)

	got, err := f.coord.GetAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSuspiciousThreshold, got.TabSwitches)
	assert.True(t, got.TerminationRequested)
	assert.Len(t, got.SuspiciousActivity, DefaultSuspiciousThreshold)
	assert.Equal(t, DefaultSuspiciousThreshold, got.SuspiciousActivity[DefaultSuspiciousThreshold-1].Count)

	assert.Len(t, f.publisher.EventsOfType(events.EventActivityThresholdReached), 1)
	assert.Len(t, f.publisher.EventsOfType(events.EventAccessLocked), 1)

	// further reports keep terminating but do not lock twice
	f.clock.Advance(time.Second)
	result = f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(f.clock.Now(), 99))
	assert.True(t, result.TerminateSession)
	assert.Len(t, f.publisher.EventsOfType(events.EventAccessLocked), 1)

	view, err = f.coord.GetAccess(f.ctx, f.evaluation.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Access.LockCount)
}

func TestReportActivity_LenientModeOnlyRecords(t *testing.T) {
	f := newFixture(t)
	attempt := f.start(t, testStudentID)

	for i := 1; i <= DefaultSuspiciousThreshold+2; i++ {
		f.clock.Advance(time.Second)
		result := f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(f.clock.Now(), i))
		assert.True(t, result.Recorded)
		assert.False(t, result.TerminateSession)
	}

	eligibility, err := f.coord.CanAttempt(f.ctx, f.evaluation.ID, testStudentID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanAttempt)
}

func TestReportActivity_DropsBadInput(t *testing.T) {
	f := newFixture(t)
	attempt := f.start(t, testStudentID)
	at := f.clock.Now()

	assert.Equal(t, ActivityResult{}, f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, ActivityReport{Type: "keylogger"}))
	assert.Equal(t, ActivityResult{}, f.coord.ReportActivity(f.ctx, "missing", testStudentID, tabSwitch(at, 1)))
	assert.Equal(t, ActivityResult{}, f.coord.ReportActivity(f.ctx, attempt.ID, "student-2", tabSwitch(at, 1)))

	first := f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(at, 1))
	assert.True(t, first.Recorded)
	duplicate := f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(at, 1))
	assert.False(t, duplicate.Recorded)

	got, err := f.coord.GetAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TabSwitches)
	assert.Len(t, got.SuspiciousActivity, 1)
}

func TestReportActivity_IgnoredAfterSubmit(t *testing.T) {
	f := newFixture(t)
	attempt := f.start(t, testStudentID)
	_, err := f.coord.SubmitAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)

	result := f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(f.clock.Now(), 1))
	assert.False(t, result.Recorded)
}

func TestReportActivity_CountsPerType(t *testing.T) {
	f := newFixture(t)
	attempt := f.start(t, testStudentID)
	at := f.clock.Now()

	reports := []ActivityReport{
		{Type: models.ActivityCopy, Timestamp: at},
		{Type: models.ActivityScreenshot, Timestamp: at},
		{Type: models.ActivityWindowBlur, Timestamp: at},
		{Type: models.ActivityDevTools, Timestamp: at},
		{Type: models.ActivityDevTools, Timestamp: at.Add(time.Second)},
		{Type: models.ActivityPaste, Details: strings.Repeat("x", 2*maxActivityDetails)},
	}
	for _, r := range reports {
		require.True(t, f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, r).Recorded)
	}

	got, err := f.coord.GetAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CopyAttempts)
	assert.Equal(t, 1, got.ScreenshotAttempts)
	assert.Equal(t, 1, got.WindowBlurs)
	assert.Equal(t, 2, got.SuspiciousActivity[4].Count)
	last := got.SuspiciousActivity[5]
	assert.Len(t, last.Details, maxActivityDetails)
	assert.Equal(t, f.clock.Now(), last.Timestamp)
}

func TestTerminatedAttempt_RejectsStudentActions(t *testing.T) {
	f := newFixture(t, withStrictMode())
	attempt := f.start(t, testStudentID)

	var result ActivityResult
	for i := 1; i <= DefaultSuspiciousThreshold; i++ {
		f.clock.Advance(time.Second)
		result = f.coord.ReportActivity(f.ctx, attempt.ID, testStudentID, tabSwitch(f.clock.Now(), i))
	}
	require.True(t, result.TerminateSession)

	_, err := f.coord.RecordAnswer(f.ctx, attempt.ID, testStudentID, &RecordAnswerRequest{
		QuestionID: "q1",
		Value:      models.AnswerValue{SelectedOptions: []string{"a"}},
	})
	assert.ErrorIs(t, err, ErrAttemptNotActive)

	_, err = f.coord.SubmitAttempt(f.ctx, attempt.ID, testStudentID)
	assert.ErrorIs(t, err, ErrAttemptNotActive)

	_, _, err = f.coord.GradeAttempt(f.ctx, attempt.ID, testStudentID)
	assert.ErrorIs(t, err, ErrAttemptNotActive)

	view, err := f.coord.GetAccess(f.ctx, f.evaluation.ID, testStudentID)
	require.NoError(t, err)
	assert.Zero(t, view.Access.AttemptsUsed)

	// an instructor can still close it out
	access := f.complete(t, attempt.ID, 0, false)
	assert.Equal(t, 1, access.AttemptsUsed)
	assert.True(t, access.IsLocked)
	requireBudgetInvariant(t, access)
}
