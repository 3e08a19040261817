package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/cache"
	"github.com/SAP-F-2025/evaluation-access-service/internal/events"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/SAP-F-2025/evaluation-access-service/internal/validator"
	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
)

const currentVersionCacheTTL = 10 * time.Minute

type CreateVersionRequest struct {
	CourseID  string                `json:"course_id" validate:"required"`
	Modules   []models.CourseModule `json:"modules" validate:"required,min=1,dive"`
	ChangeLog string                `json:"change_log" validate:"max=2000"`
	CreatedBy string                `json:"-"`
}

// StudentContent is the module tree a student sees for their pinned version
type StudentContent struct {
	CourseID        string                 `json:"course_id"`
	VersionID       string                 `json:"version_id"`
	Version         int                    `json:"version"`
	Modules         []models.StudentModule `json:"modules"`
	IsLatestVersion bool                   `json:"is_latest_version"`
}

type VersionChange struct {
	Version   int       `json:"version"`
	ChangeLog string    `json:"change_log"`
	CreatedAt time.Time `json:"created_at"`
}

type UpdateCheck struct {
	HasUpdate      bool            `json:"has_update"`
	CurrentVersion int             `json:"current_version"`
	LatestVersion  int             `json:"latest_version"`
	LatestID       string          `json:"latest_version_id"`
	Changes        []VersionChange `json:"changes"`
}

// VersionStore owns immutable course content snapshots and student pins.
type VersionStore struct {
	repo      repositories.Repository
	cache     cache.CacheService
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *slog.Logger
	now       func() time.Time
}

func NewVersionStore(repo repositories.Repository, cacheService cache.CacheService, publisher events.EventPublisher, validator *validator.Validator, logger *slog.Logger) *VersionStore {
	return &VersionStore{
		repo:      repo,
		cache:     cacheService,
		publisher: publisher,
		validator: validator,
		logger:    logger,
		now:       defaultNow,
	}
}

func cloneModules(modules []models.CourseModule) ([]models.CourseModule, error) {
	var out []models.CourseModule
	if err := deepcopy.Copy(&out, modules); err != nil {
		return nil, fmt.Errorf("failed to clone modules: %w", err)
	}
	return out, nil
}

func (s *VersionStore) validateModules(req *CreateVersionRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if err := s.validator.Question().ValidateModules(req.Modules); err != nil {
		return validationFailed(err)
	}
	return nil
}

// CreateVersion publishes a new current version of a course.
func (s *VersionStore) CreateVersion(ctx context.Context, req *CreateVersionRequest) (*models.CourseVersion, error) {
	if err := s.validateModules(req); err != nil {
		return nil, err
	}

	modules, err := cloneModules(req.Modules)
	if err != nil {
		return nil, err
	}

	var version *models.CourseVersion
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Version().LockCourse(ctx, req.CourseID); err != nil {
			return fmt.Errorf("failed to lock course versions: %w", err)
		}

		maxVersion, err := tx.Version().MaxVersion(ctx, req.CourseID)
		if err != nil {
			return fmt.Errorf("failed to read latest version: %w", err)
		}

		if err := tx.Version().ClearCurrent(ctx, req.CourseID); err != nil {
			return fmt.Errorf("failed to clear current version: %w", err)
		}

		version = &models.CourseVersion{
			ID:               uuid.NewString(),
			CourseID:         req.CourseID,
			Version:          maxVersion + 1,
			IsCurrentVersion: true,
			Modules:          modules,
			ChangeLog:        req.ChangeLog,
			CreatedBy:        req.CreatedBy,
			CreatedAt:        s.now(),
		}
		return tx.Version().Create(ctx, version)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create course version: %w", err)
	}

	if err := s.cache.Delete(ctx, cache.CurrentVersionKey(req.CourseID)); err != nil {
		s.logger.Warn("Failed to invalidate current version cache", "course_id", req.CourseID, "error", err)
	}

	s.publish(ctx, events.NewEvent(events.EventCourseVersionPublished, events.CourseVersionPublishedEvent{
		CourseID:  version.CourseID,
		VersionID: version.ID,
		Version:   version.Version,
		ChangeLog: version.ChangeLog,
		CreatedBy: version.CreatedBy,
	}))

	s.logger.Info("Course version created",
		"course_id", version.CourseID,
		"version_id", version.ID,
		"version", version.Version)

	return version, nil
}

// SaveModules creates a version only when modules differ from the current
// one. The bool reports whether a version was created.
func (s *VersionStore) SaveModules(ctx context.Context, req *CreateVersionRequest) (*models.CourseVersion, bool, error) {
	current, err := s.repo.Version().GetCurrent(ctx, req.CourseID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, false, fmt.Errorf("failed to get current version: %w", err)
	}

	if current != nil {
		same, err := sameModules(current.Modules, req.Modules)
		if err != nil {
			return nil, false, err
		}
		if same {
			return current, false, nil
		}
	}

	version, err := s.CreateVersion(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return version, true, nil
}

func sameModules(a, b []models.CourseModule) (bool, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(left, right), nil
}

// GetCurrent returns the current version, served from cache when possible.
func (s *VersionStore) GetCurrent(ctx context.Context, courseID string) (*models.CourseVersion, error) {
	var cached models.CourseVersion
	if err := s.cache.Get(ctx, cache.CurrentVersionKey(courseID), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Current version cache read failed", "course_id", courseID, "error", err)
	}

	version, err := s.repo.Version().GetCurrent(ctx, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	if err := s.cache.Set(ctx, cache.CurrentVersionKey(courseID), version, currentVersionCacheTTL); err != nil {
		s.logger.Warn("Failed to cache current version", "course_id", courseID, "error", err)
	}
	return version, nil
}

func (s *VersionStore) GetVersion(ctx context.Context, versionID string) (*models.CourseVersion, error) {
	return getVersion(ctx, s.repo, versionID)
}

func getVersion(ctx context.Context, repo repositories.Repository, versionID string) (*models.CourseVersion, error) {
	version, err := repo.Version().GetByID(ctx, versionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get course version: %w", err)
	}
	return version, nil
}

// GetContentForStudent returns the modules of versionID with quiz answer
// keys removed.
func (s *VersionStore) GetContentForStudent(ctx context.Context, courseID, versionID string) (*StudentContent, error) {
	version, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.CourseID != courseID {
		return nil, ErrVersionNotFound
	}

	return &StudentContent{
		CourseID:        courseID,
		VersionID:       version.ID,
		Version:         version.Version,
		Modules:         models.ModulesForStudent(version.Modules),
		IsLatestVersion: version.IsCurrentVersion,
	}, nil
}

// CheckForUpdates compares a student's pinned version with the current one.
func (s *VersionStore) CheckForUpdates(ctx context.Context, courseID, studentVersionID string) (*UpdateCheck, error) {
	pinned, err := s.GetVersion(ctx, studentVersionID)
	if err != nil {
		return nil, err
	}
	if pinned.CourseID != courseID {
		return nil, ErrVersionNotFound
	}

	versions, err := s.repo.Version().ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course versions: %w", err)
	}

	check := &UpdateCheck{
		CurrentVersion: pinned.Version,
		LatestVersion:  pinned.Version,
		LatestID:       pinned.ID,
		Changes:        []VersionChange{},
	}
	for _, v := range versions {
		if v.IsCurrentVersion {
			check.LatestVersion = v.Version
			check.LatestID = v.ID
		}
		if v.Version > pinned.Version {
			check.Changes = append(check.Changes, VersionChange{
				Version:   v.Version,
				ChangeLog: v.ChangeLog,
				CreatedAt: v.CreatedAt,
			})
		}
	}
	check.HasUpdate = check.LatestID != pinned.ID

	return check, nil
}

// Enroll pins studentID to the current version. Enrolling twice returns the
// existing pin unchanged.
func (s *VersionStore) Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	existing, err := s.repo.Enrollment().Get(ctx, courseID, studentID)
	if err == nil {
		return existing, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	current, err := s.repo.Version().GetCurrent(ctx, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	enrollment := &models.Enrollment{
		ID:              uuid.NewString(),
		CourseID:        courseID,
		StudentID:       studentID,
		CourseVersionID: current.ID,
		EnrolledAt:      s.now(),
	}
	if err := s.repo.Enrollment().Create(ctx, enrollment); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return s.repo.Enrollment().Get(ctx, courseID, studentID)
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	s.logger.Info("Student enrolled",
		"course_id", courseID,
		"student_id", studentID,
		"course_version_id", current.ID,
		"version", current.Version)

	return enrollment, nil
}

// UpgradeEnrollment moves the student's pin to the current version. It is
// only ever called on the student's explicit request.
func (s *VersionStore) UpgradeEnrollment(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		enrollment, err = tx.Enrollment().Get(ctx, courseID, studentID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrNotEnrolled
			}
			return err
		}

		current, err := tx.Version().GetCurrent(ctx, courseID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrVersionNotFound
			}
			return err
		}
		if current.ID == enrollment.CourseVersionID {
			return nil
		}

		now := s.now()
		enrollment.CourseVersionID = current.ID
		enrollment.UpgradedAt = &now
		return tx.Enrollment().Update(ctx, enrollment)
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// resolveQuestions returns the question set an evaluation uses for a given
// pinned version. Evaluations bound to a lesson read the lesson quiz from
// that version; others use their own question set.
func resolveQuestions(ctx context.Context, repo repositories.Repository, evaluation *models.Evaluation, versionID string) ([]models.EvaluationQuestion, error) {
	version, err := getVersion(ctx, repo, versionID)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return nil, ErrCourseVersionMismatch
		}
		return nil, err
	}
	if version.CourseID != evaluation.CourseID {
		return nil, ErrCourseVersionMismatch
	}

	var questions []models.EvaluationQuestion
	if evaluation.LessonID != nil {
		quiz, ok := version.FindLessonQuiz(*evaluation.LessonID)
		if !ok {
			return nil, ErrCourseVersionMismatch
		}
		questions = quiz
	} else {
		questions = evaluation.Questions
	}

	var out []models.EvaluationQuestion
	if err := deepcopy.Copy(&out, questions); err != nil {
		return nil, fmt.Errorf("failed to clone questions: %w", err)
	}
	return out, nil
}

func (s *VersionStore) publish(ctx context.Context, event *events.Event) {
	publishEvent(ctx, s.publisher, s.logger, event)
}

// publishEvent never fails the caller: events are best effort after commit.
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event *events.Event) {
	if publisher == nil || event == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event", "event_type", event.Type, "error", err)
	}
}
