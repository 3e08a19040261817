package errors

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockRequest struct {
	Reason        string `json:"reason" validate:"required,lock_reason"`
	DurationHours int    `json:"duration_hours" validate:"min=0,max=8760"`
}

type evaluationRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	TimeLimitMinutes int    `json:"time_limit_minutes" validate:"min=0,max=600"`
	QuestionType     string `json:"question_type" validate:"required,question_type"`
}

type activityRequest struct {
	Type string `json:"type" validate:"required,activity_type"`
}

// newTestValidator registers the custom tags with fixed accept lists so the
// package stays free of model imports.
func newTestValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	oneOf := func(allowed ...string) validator.Func {
		return func(fl validator.FieldLevel) bool {
			for _, a := range allowed {
				if fl.Field().String() == a {
					return true
				}
			}
			return false
		}
	}
	require.NoError(t, v.RegisterValidation("lock_reason", oneOf("max_attempts", "suspicious_activity", "admin_lock")))
	require.NoError(t, v.RegisterValidation("question_type", oneOf("single_choice", "multi_select", "true_false", "short_answer", "essay")))
	require.NoError(t, v.RegisterValidation("activity_type", oneOf("tab_switch", "copy", "screenshot", "window_blur")))
	return v
}

func ruleMessages(errs ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field+"/"+e.Rule] = e.Message
	}
	return out
}

func TestToValidationErrors_LockRequest(t *testing.T) {
	v := newTestValidator(t)

	errs := ToValidationErrors(v.Struct(lockRequest{Reason: "bored", DurationHours: 9000}))

	require.Len(t, errs, 2)
	msgs := ruleMessages(errs)
	assert.Equal(t, "must be max_attempts, suspicious_activity or admin_lock", msgs["reason/lock_reason"])
	assert.Equal(t, "must be at most 8760 hours", msgs["duration_hours/max"])
	assert.Equal(t, "validation failed: 2 field errors (reason, duration_hours)", errs.Error())
}

func TestToValidationErrors_EvaluationRequest(t *testing.T) {
	v := newTestValidator(t)

	errs := ToValidationErrors(v.Struct(evaluationRequest{TimeLimitMinutes: 601, QuestionType: "matching"}))

	msgs := ruleMessages(errs)
	assert.Equal(t, "is required", msgs["title/required"])
	assert.Equal(t, "must be at most 600 minutes", msgs["time_limit_minutes/max"])
	assert.Contains(t, msgs["question_type/question_type"], "single_choice")

	errs = ToValidationErrors(v.Struct(evaluationRequest{Title: strings.Repeat("x", 201), QuestionType: "essay"}))
	require.Len(t, errs, 1)
	assert.Equal(t, "must be at most 200 characters", errs[0].Message)
}

func TestToValidationErrors_ActivityType(t *testing.T) {
	v := newTestValidator(t)

	errs := ToValidationErrors(v.Struct(activityRequest{Type: "devtools_hack"}))

	require.Len(t, errs, 1)
	assert.Equal(t, "type", errs[0].Field)
	assert.Equal(t, "activity_type", errs[0].Rule)
	assert.Equal(t, "devtools_hack", errs[0].Value)
	assert.Equal(t, "validation failed: type must be a known suspicious activity type", errs.Error())

	assert.Empty(t, ToValidationErrors(v.Struct(activityRequest{Type: "tab_switch"})))
}

func TestToValidationErrors_IgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, ToValidationErrors(fmt.Errorf("boom")))
	assert.Nil(t, ToValidationErrors(nil))
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("question_id", "question is not part of this attempt", "q9")

	assert.Equal(t, "validation error on field 'question_id': question is not part of this attempt", err.Error())
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
}
