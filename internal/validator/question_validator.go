package validator

import (
	"fmt"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
)

// QuestionValidator handles question-set validation for evaluations and lesson quizzes
type QuestionValidator struct{}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestion validates a single question and its typed payload
func (v *QuestionValidator) ValidateQuestion(question *models.EvaluationQuestion) error {
	if question.Prompt == "" {
		return fmt.Errorf("question %s: prompt is required", question.ID)
	}

	if question.Points < 1 || question.Points > 100 {
		return fmt.Errorf("question %s: points must be between 1 and 100", question.ID)
	}

	return question.Validate()
}

// ValidateBatch validates a question set; ids must be unique within the set
func (v *QuestionValidator) ValidateBatch(questions []models.EvaluationQuestion) error {
	if len(questions) == 0 {
		return fmt.Errorf("question set cannot be empty")
	}

	seen := make(map[string]struct{}, len(questions))
	for i := range questions {
		if _, dup := seen[questions[i].ID]; dup {
			return fmt.Errorf("duplicate question id %q", questions[i].ID)
		}
		seen[questions[i].ID] = struct{}{}

		if err := v.ValidateQuestion(&questions[i]); err != nil {
			return fmt.Errorf("validation failed for question %d: %w", i+1, err)
		}
	}

	return nil
}

// ValidateModules validates every quiz embedded in a course module tree
func (v *QuestionValidator) ValidateModules(modules []models.CourseModule) error {
	lessonIDs := make(map[string]struct{})
	for _, m := range modules {
		for _, l := range m.Lessons {
			if _, dup := lessonIDs[l.ID]; dup {
				return fmt.Errorf("duplicate lesson id %q", l.ID)
			}
			lessonIDs[l.ID] = struct{}{}

			if l.Type != models.LessonQuiz {
				continue
			}
			if err := v.ValidateBatch(l.Quiz); err != nil {
				return fmt.Errorf("lesson %s: %w", l.ID, err)
			}
		}
	}
	return nil
}
