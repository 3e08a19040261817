package services

import (
	"testing"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAttempt(t *testing.T) {
	yes := true
	questions := append(sampleQuestions(),
		models.EvaluationQuestion{
			ID:          "q3",
			Type:        models.ShortAnswer,
			Prompt:      "Name the race detector flag.",
			Points:      4,
			ShortAnswer: &models.ShortAnswerPayload{AcceptedAnswers: []string{"-race"}},
		},
		models.EvaluationQuestion{
			ID:     "q4",
			Type:   models.Essay,
			Prompt: "Explain happens-before.",
			Points: 6,
			Essay:  &models.EssayPayload{MinWords: 50},
		},
	)

	attempt := &models.EvaluationAttempt{
		MaxScore:     models.TotalPoints(questions),
		PassingScore: 50,
		Questions:    questions,
		Answers: []models.AttemptAnswer{
			{QuestionID: "q1", Value: models.AnswerValue{SelectedOptions: []string{"b"}}},
			{QuestionID: "q2", Value: models.AnswerValue{Boolean: &yes}},
			{QuestionID: "q3", Value: models.AnswerValue{Text: " -RACE "}},
			{QuestionID: "q4", Value: models.AnswerValue{Text: "Memory model..."}},
			{QuestionID: "unknown"},
		},
	}

	result := scoreAttempt(attempt)

	assert.Equal(t, 9.0, result.Score)
	assert.Equal(t, 20, result.MaxScore)
	assert.InDelta(t, 45.0, result.Percentage, 0.001)
	assert.False(t, result.Passed)
	assert.Equal(t, 1, result.PendingEssay)

	require.NotNil(t, attempt.Answers[0].PointsEarned)
	assert.Equal(t, 0, *attempt.Answers[0].PointsEarned)
	assert.Equal(t, 5, *attempt.Answers[1].PointsEarned)
	assert.Equal(t, 4, *attempt.Answers[2].PointsEarned)
	assert.Nil(t, attempt.Answers[3].PointsEarned)
	assert.Nil(t, attempt.Answers[4].PointsEarned)
}

func TestScoreAttempt_NoAnswers(t *testing.T) {
	attempt := &models.EvaluationAttempt{MaxScore: 10, PassingScore: 0, Questions: sampleQuestions()}

	result := scoreAttempt(attempt)

	assert.Zero(t, result.Score)
	assert.True(t, result.Passed)
}

func TestGrade_PassingAttempt(t *testing.T) {
	f := newFixture(t)
	attempt := f.start(t, testStudentID)
	yes := true

	for _, req := range []*RecordAnswerRequest{
		{QuestionID: "q1", Value: models.AnswerValue{SelectedOptions: []string{"a"}}},
		{QuestionID: "q2", Value: models.AnswerValue{Boolean: &yes}},
	} {
		_, err := f.coord.RecordAnswer(f.ctx, attempt.ID, testStudentID, req)
		require.NoError(t, err)
	}

	access, result, err := f.coord.GradeAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 10.0, result.Score)
	assert.False(t, access.IsLocked)
	assert.Equal(t, 1, access.RemainingAttempts)

	_, _, err = f.coord.GradeAttempt(f.ctx, attempt.ID, testStudentID)
	assert.ErrorIs(t, err, ErrAttemptAlreadyGraded)
}

func essayQuestion() models.EvaluationQuestion {
	return models.EvaluationQuestion{
		ID:     "q3",
		Type:   models.Essay,
		Prompt: "Explain happens-before.",
		Points: 10,
		Order:  3,
		Essay:  &models.EssayPayload{MaxWords: 300},
	}
}

// useEssayEvaluation points the fixture at a standalone evaluation whose
// question set includes an essay worth half the points.
func useEssayEvaluation(t *testing.T, f *fixture) {
	t.Helper()
	evaluation, err := f.coord.CreateEvaluation(f.ctx, &CreateEvaluationRequest{
		CourseID:     testCourseID,
		Title:        "Essay checkpoint",
		PassingScore: 50,
		Questions:    append(sampleQuestions(), essayQuestion()),
	}, "instructor-1")
	require.NoError(t, err)
	f.evaluation = evaluation
}

func answerObjective(t *testing.T, f *fixture, attemptID string) {
	t.Helper()
	yes := true
	for _, req := range []*RecordAnswerRequest{
		{QuestionID: "q1", Value: models.AnswerValue{SelectedOptions: []string{"a"}}},
		{QuestionID: "q2", Value: models.AnswerValue{Boolean: &yes}},
	} {
		_, err := f.coord.RecordAnswer(f.ctx, attemptID, testStudentID, req)
		require.NoError(t, err)
	}
}

func TestGrade_AnsweredEssayWaitsForReview(t *testing.T) {
	f := newFixture(t)
	useEssayEvaluation(t, f)
	attempt := f.start(t, testStudentID)
	answerObjective(t, f, attempt.ID)
	_, err := f.coord.RecordAnswer(f.ctx, attempt.ID, testStudentID, &RecordAnswerRequest{
		QuestionID: "q3",
		Value:      models.AnswerValue{Text: "Writes before an unlock are visible after the next lock."},
	})
	require.NoError(t, err)

	access, result, err := f.coord.GradeAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.True(t, result.PendingReview)
	assert.Equal(t, 1, result.PendingEssay)
	assert.Equal(t, 10.0, result.Score)
	assert.False(t, result.Passed)
	assert.Zero(t, access.AttemptsUsed)
	assert.Equal(t, 2, access.RemainingAttempts)
	assert.False(t, access.IsLocked)

	pending, err := f.coord.GetAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, pending.Status)
	assert.Nil(t, pending.GradedAt)

	// still open, so no second attempt can start meanwhile
	_, err = f.coord.IssueToken(f.ctx, f.evaluation.ID, testStudentID, models.ClientFingerprint{})
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	access = f.complete(t, attempt.ID, 18, true)
	assert.Equal(t, 1, access.AttemptsUsed)
	requireBudgetInvariant(t, access)

	graded, err := f.coord.GetAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptGraded, graded.Status)
	assert.True(t, graded.Passed)
}

func TestGrade_UnansweredEssayScoresImmediately(t *testing.T) {
	f := newFixture(t)
	useEssayEvaluation(t, f)
	attempt := f.start(t, testStudentID)
	answerObjective(t, f, attempt.ID)

	access, result, err := f.coord.GradeAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.False(t, result.PendingReview)
	assert.Equal(t, 20, result.MaxScore)
	assert.InDelta(t, 50.0, result.Percentage, 0.001)
	assert.True(t, result.Passed)
	assert.Equal(t, 1, access.AttemptsUsed)
}
