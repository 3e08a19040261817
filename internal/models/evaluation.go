package models

import (
	"time"

	"gorm.io/datatypes"
)

// Access policy is fixed and never supplied by clients.
const (
	DefaultAttemptsAllowed = 2
	DefaultLockoutPeriod   = 48 * time.Hour
)

type SecurityFlags struct {
	PreventScreenshot bool `json:"prevent_screenshot" gorm:"default:true"`
	PreventCopy       bool `json:"prevent_copy" gorm:"default:true"`
	PreventPrint      bool `json:"prevent_print" gorm:"default:true"`
	TrackTabSwitches  bool `json:"track_tab_switches" gorm:"default:true"`
}

type Evaluation struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	CourseID string `json:"course_id" gorm:"not null;index;size:36"`
	// LessonID points at the lesson quiz inside the course content. When set,
	// the question set is resolved from the student's pinned course version.
	LessonID    *string `json:"lesson_id" gorm:"size:64"`
	Title       string  `json:"title" gorm:"not null;size:200"`
	Description *string `json:"description" gorm:"type:text"`

	Questions datatypes.JSONSlice[EvaluationQuestion] `json:"questions" gorm:"type:jsonb"`

	TimeLimitMinutes int `json:"time_limit_minutes" gorm:"not null"`
	PassingScore     int `json:"passing_score" gorm:"not null"` // percent
	AttemptsAllowed  int `json:"attempts_allowed" gorm:"not null;default:2"`
	LockoutHours     int `json:"lockout_hours" gorm:"not null;default:48"`

	Security           SecurityFlags `json:"security" gorm:"embedded;embeddedPrefix:security_"`
	RandomizeQuestions bool          `json:"randomize_questions" gorm:"default:false"`
	RandomizeOptions   bool          `json:"randomize_options" gorm:"default:false"`
	StrictMode         bool          `json:"strict_mode" gorm:"default:false"`

	CreatedBy string    `json:"created_by" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}

// LockoutPeriod returns the configured lockout, falling back to the policy default.
func (e *Evaluation) LockoutPeriod() time.Duration {
	if e.LockoutHours <= 0 {
		return DefaultLockoutPeriod
	}
	return time.Duration(e.LockoutHours) * time.Hour
}

// ApplyPolicy overwrites the budget and lockout with the fixed policy values.
func (e *Evaluation) ApplyPolicy() {
	e.AttemptsAllowed = DefaultAttemptsAllowed
	e.LockoutHours = int(DefaultLockoutPeriod / time.Hour)
}
