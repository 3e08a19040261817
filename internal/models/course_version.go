package models

import (
	"time"

	"gorm.io/datatypes"
)

type LessonType string

const (
	LessonVideo   LessonType = "video"
	LessonReading LessonType = "reading"
	LessonQuiz    LessonType = "quiz"
)

type CourseLesson struct {
	ID              string               `json:"id" validate:"required"`
	Title           string               `json:"title" validate:"required"`
	Type            LessonType           `json:"type" validate:"required,oneof=video reading quiz"`
	Content         string               `json:"content,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Order           int                  `json:"order"`
	Quiz            []EvaluationQuestion `json:"quiz,omitempty" validate:"omitempty,dive"`
}

type CourseModule struct {
	ID      string         `json:"id" validate:"required"`
	Title   string         `json:"title" validate:"required"`
	Order   int            `json:"order"`
	Lessons []CourseLesson `json:"lessons" validate:"dive"`
}

// CourseVersion is an immutable snapshot of a course's module tree.
type CourseVersion struct {
	ID               string                            `json:"id" gorm:"primaryKey;size:36"`
	CourseID         string                            `json:"course_id" gorm:"not null;size:36;uniqueIndex:idx_course_version_number;uniqueIndex:idx_course_current_version,where:is_current_version = true"`
	Version          int                               `json:"version" gorm:"not null;uniqueIndex:idx_course_version_number"`
	IsCurrentVersion bool                              `json:"is_current_version" gorm:"not null;default:false"`
	Modules          datatypes.JSONSlice[CourseModule] `json:"modules" gorm:"type:jsonb;not null"`
	ChangeLog        string                            `json:"change_log" gorm:"type:text"`
	CreatedBy        string                            `json:"created_by" gorm:"size:255"`
	CreatedAt        time.Time                         `json:"created_at"`
}

func (CourseVersion) TableName() string {
	return "course_versions"
}

// FindLessonQuiz returns the quiz of lessonID in this snapshot.
func (v *CourseVersion) FindLessonQuiz(lessonID string) ([]EvaluationQuestion, bool) {
	for _, m := range v.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return l.Quiz, len(l.Quiz) > 0
			}
		}
	}
	return nil, false
}

// Enrollment pins a student to the course version current at enrollment time.
type Enrollment struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	CourseID        string     `json:"course_id" gorm:"not null;size:36;uniqueIndex:idx_enrollment_course_student"`
	StudentID       string     `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_enrollment_course_student"`
	CourseVersionID string     `json:"course_version_id" gorm:"not null;size:36"`
	EnrolledAt      time.Time  `json:"enrolled_at"`
	UpgradedAt      *time.Time `json:"upgraded_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

type StudentLesson struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Type            LessonType        `json:"type"`
	Content         string            `json:"content,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	Order           int               `json:"order"`
	Quiz            []StudentQuestion `json:"quiz,omitempty"`
}

type StudentModule struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Order   int             `json:"order"`
	Lessons []StudentLesson `json:"lessons"`
}

// ModulesForStudent copies a module tree with every lesson quiz passed
// through ForStudent.
func ModulesForStudent(modules []CourseModule) []StudentModule {
	out := make([]StudentModule, 0, len(modules))
	for _, m := range modules {
		sm := StudentModule{
			ID:      m.ID,
			Title:   m.Title,
			Order:   m.Order,
			Lessons: make([]StudentLesson, 0, len(m.Lessons)),
		}
		for _, l := range m.Lessons {
			lesson := StudentLesson{
				ID:              l.ID,
				Title:           l.Title,
				Type:            l.Type,
				Content:         l.Content,
				DurationMinutes: l.DurationMinutes,
				Order:           l.Order,
			}
			if len(l.Quiz) > 0 {
				lesson.Quiz = ForStudent(l.Quiz)
			}
			sm.Lessons = append(sm.Lessons, lesson)
		}
		out = append(out, sm)
	}
	return out
}
