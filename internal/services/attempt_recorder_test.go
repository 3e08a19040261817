package services

import (
	"testing"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffleQuestions_KeepsSetAndRenumbers(t *testing.T) {
	questions := sampleQuestions()
	questions = append(questions, models.EvaluationQuestion{ID: "q3", Type: models.TrueFalse, Points: 1, Order: 3})

	shuffleQuestions(questions)

	ids := make([]string, 0, len(questions))
	for i, q := range questions {
		assert.Equal(t, i+1, q.Order)
		ids = append(ids, q.ID)
	}
	assert.ElementsMatch(t, []string{"q1", "q2", "q3"}, ids)
}

func TestShuffleOptions_KeepsAnswerKey(t *testing.T) {
	questions := sampleQuestions()

	shuffleOptions(questions)

	require.NotNil(t, questions[0].Choice)
	assert.Len(t, questions[0].Choice.Options, 2)
	assert.Equal(t, []string{"a"}, questions[0].Choice.CorrectOptions)
	assert.Nil(t, questions[1].Choice)
}

func TestGetAttempt_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	attempt := f.start(t, testStudentID)

	got, err := f.coord.GetAttempt(f.ctx, attempt.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, got.ID)

	_, err = f.coord.GetAttempt(f.ctx, attempt.ID, "student-2")
	assert.True(t, IsUnauthorized(err))

	_, err = f.coord.GetAttempt(f.ctx, "missing", testStudentID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
