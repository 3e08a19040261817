package models

import (
	"fmt"
	"strings"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiSelect  QuestionType = "multi_select"
	TrueFalse    QuestionType = "true_false"
	ShortAnswer  QuestionType = "short_answer"
	Essay        QuestionType = "essay"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// QuestionTypes lists every supported question type.
var QuestionTypes = []QuestionType{SingleChoice, MultiSelect, TrueFalse, ShortAnswer, Essay}

type QuestionOption struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// ChoicePayload backs single_choice and multi_select questions.
type ChoicePayload struct {
	Options        []QuestionOption `json:"options"`
	CorrectOptions []string         `json:"correct_options"`
}

type TrueFalsePayload struct {
	Answer bool `json:"answer"`
}

type ShortAnswerPayload struct {
	AcceptedAnswers []string `json:"accepted_answers"`
	CaseSensitive   bool     `json:"case_sensitive"`
}

type EssayPayload struct {
	MinWords int `json:"min_words"`
	MaxWords int `json:"max_words"`
}

// EvaluationQuestion is a tagged variant: exactly the payload matching Type is set.
type EvaluationQuestion struct {
	ID         string          `json:"id" validate:"required"`
	Type       QuestionType    `json:"type" validate:"required,question_type"`
	Prompt     string          `json:"prompt" validate:"required"`
	Points     int             `json:"points" validate:"min=1,max=100"`
	Difficulty DifficultyLevel `json:"difficulty" validate:"omitempty,difficulty_level"`
	Order      int             `json:"order"`

	Choice      *ChoicePayload      `json:"choice,omitempty"`
	TrueFalse   *TrueFalsePayload   `json:"true_false,omitempty"`
	ShortAnswer *ShortAnswerPayload `json:"short_answer,omitempty"`
	Essay       *EssayPayload       `json:"essay,omitempty"`
}

// Validate checks that the payload matches the declared type.
func (q *EvaluationQuestion) Validate() error {
	set := 0
	for _, present := range []bool{q.Choice != nil, q.TrueFalse != nil, q.ShortAnswer != nil, q.Essay != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("question %s: expected exactly one payload, got %d", q.ID, set)
	}

	switch q.Type {
	case SingleChoice, MultiSelect:
		if q.Choice == nil {
			return fmt.Errorf("question %s: %s requires a choice payload", q.ID, q.Type)
		}
		return q.validateChoice()
	case TrueFalse:
		if q.TrueFalse == nil {
			return fmt.Errorf("question %s: true_false requires a true_false payload", q.ID)
		}
	case ShortAnswer:
		if q.ShortAnswer == nil || len(q.ShortAnswer.AcceptedAnswers) == 0 {
			return fmt.Errorf("question %s: short_answer requires accepted answers", q.ID)
		}
	case Essay:
		if q.Essay == nil {
			return fmt.Errorf("question %s: essay requires an essay payload", q.ID)
		}
		if q.Essay.MaxWords > 0 && q.Essay.MinWords > q.Essay.MaxWords {
			return fmt.Errorf("question %s: min_words exceeds max_words", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unsupported question type %q", q.ID, q.Type)
	}
	return nil
}

func (q *EvaluationQuestion) validateChoice() error {
	if len(q.Choice.Options) < 2 {
		return fmt.Errorf("question %s: at least two options required", q.ID)
	}
	ids := make(map[string]struct{}, len(q.Choice.Options))
	for _, opt := range q.Choice.Options {
		if _, dup := ids[opt.ID]; dup {
			return fmt.Errorf("question %s: duplicate option id %q", q.ID, opt.ID)
		}
		ids[opt.ID] = struct{}{}
	}
	if len(q.Choice.CorrectOptions) == 0 {
		return fmt.Errorf("question %s: no correct option", q.ID)
	}
	if q.Type == SingleChoice && len(q.Choice.CorrectOptions) != 1 {
		return fmt.Errorf("question %s: single_choice needs exactly one correct option", q.ID)
	}
	for _, c := range q.Choice.CorrectOptions {
		if _, ok := ids[c]; !ok {
			return fmt.Errorf("question %s: correct option %q is not an option", q.ID, c)
		}
	}
	return nil
}

// IsAutoGradable reports whether the question can be scored without a reviewer.
func (q *EvaluationQuestion) IsAutoGradable() bool {
	return q.Type != Essay
}

// Score returns the points earned by answer. Essays always score zero here.
func (q *EvaluationQuestion) Score(answer AnswerValue) int {
	switch q.Type {
	case SingleChoice, MultiSelect:
		if q.Choice == nil || !sameSet(answer.SelectedOptions, q.Choice.CorrectOptions) {
			return 0
		}
		return q.Points
	case TrueFalse:
		if q.TrueFalse == nil || answer.Boolean == nil || *answer.Boolean != q.TrueFalse.Answer {
			return 0
		}
		return q.Points
	case ShortAnswer:
		if q.ShortAnswer == nil {
			return 0
		}
		given := strings.TrimSpace(answer.Text)
		for _, accepted := range q.ShortAnswer.AcceptedAnswers {
			accepted = strings.TrimSpace(accepted)
			if q.ShortAnswer.CaseSensitive && given == accepted {
				return q.Points
			}
			if !q.ShortAnswer.CaseSensitive && strings.EqualFold(given, accepted) {
				return q.Points
			}
		}
	}
	return 0
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

// TotalPoints sums the point value of a question set.
func TotalPoints(questions []EvaluationQuestion) int {
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	return total
}

// StudentQuestion is a question with its answer key removed.
type StudentQuestion struct {
	ID         string           `json:"id"`
	Type       QuestionType     `json:"type"`
	Prompt     string           `json:"prompt"`
	Points     int              `json:"points"`
	Difficulty DifficultyLevel  `json:"difficulty,omitempty"`
	Options    []QuestionOption `json:"options,omitempty"`
	MinWords   int              `json:"min_words,omitempty"`
	MaxWords   int              `json:"max_words,omitempty"`
}

// ForStudent strips correct options, accepted answers and true/false keys.
func ForStudent(questions []EvaluationQuestion) []StudentQuestion {
	out := make([]StudentQuestion, 0, len(questions))
	for _, q := range questions {
		sq := StudentQuestion{
			ID:         q.ID,
			Type:       q.Type,
			Prompt:     q.Prompt,
			Points:     q.Points,
			Difficulty: q.Difficulty,
		}
		if q.Choice != nil {
			sq.Options = append([]QuestionOption(nil), q.Choice.Options...)
		}
		if q.Essay != nil {
			sq.MinWords = q.Essay.MinWords
			sq.MaxWords = q.Essay.MaxWords
		}
		out = append(out, sq)
	}
	return out
}
