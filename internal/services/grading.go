package services

import (
	"context"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

// GradeResult summarizes auto-grading of one attempt. With PendingReview set
// Score covers objective answers only and Passed is not decided yet.
type GradeResult struct {
	Score         float64 `json:"score"`
	MaxScore      int     `json:"max_score"`
	Percentage    float64 `json:"percentage"`
	Passed        bool    `json:"passed"`
	PendingEssay  int     `json:"pending_essay"`
	PendingReview bool    `json:"pending_review"`
}

// scoreAttempt grades every answer against the attempt's pinned question
// set and writes the points back onto the answers.
func scoreAttempt(attempt *models.EvaluationAttempt) GradeResult {
	result := GradeResult{MaxScore: attempt.MaxScore}

	earned := 0
	for i := range attempt.Answers {
		answer := &attempt.Answers[i]
		question, ok := attempt.FindQuestion(answer.QuestionID)
		if !ok {
			continue
		}
		if !question.IsAutoGradable() {
			result.PendingEssay++
			continue
		}
		points := question.Score(answer.Value)
		answer.PointsEarned = &points
		earned += points
	}

	result.Score = float64(earned)
	if attempt.MaxScore > 0 {
		result.Percentage = result.Score / float64(attempt.MaxScore) * 100
	}
	result.Passed = result.Percentage >= float64(attempt.PassingScore)
	return result
}

// Grade auto-scores an attempt and completes it. A non-empty studentID
// restricts grading to the attempt's owner. Answered essays leave the
// attempt submitted for an instructor to Complete, and an attempt the
// monitor asked to terminate can only be completed by an instructor.
func (r *AttemptRecorder) Grade(ctx context.Context, attemptID, studentID string) (*models.EvaluationAccess, *models.EvaluationAttempt, *GradeResult, error) {
	var result GradeResult
	access, attempt, err := r.finalize(ctx, attemptID, studentID, func(attempt *models.EvaluationAttempt) (scoreOutcome, error) {
		if attempt.TerminationRequested {
			return scoreOutcome{}, ErrAttemptNotActive
		}
		result = scoreAttempt(attempt)
		result.PendingReview = result.PendingEssay > 0
		if result.PendingReview {
			result.Passed = false
		}
		return scoreOutcome{Score: result.Score, Passed: result.Passed, Pending: result.PendingReview}, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return access, attempt, &result, nil
}
