package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"github.com/SAP-F-2025/evaluation-access-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// reportPageSize bounds each page read while building a report
const reportPageSize = 500

// LedgerSummary aggregates the ledger of one evaluation
type LedgerSummary struct {
	EvaluationID    string                       `json:"evaluation_id"`
	Students        int                          `json:"students"`
	States          map[AccessState]int          `json:"states"`
	Attempts        int                          `json:"attempts"`
	AttemptStatuses map[models.AttemptStatus]int `json:"attempt_statuses"`
	Passed          int                          `json:"passed"`
	PassRate        float64                      `json:"pass_rate"`
	AverageScore    float64                      `json:"average_score"`
	SuspiciousLocks int                          `json:"suspicious_locks"`
}

type ReportService struct {
	repo   repositories.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewReportService(repo repositories.Repository, logger *slog.Logger) *ReportService {
	return &ReportService{
		repo:   repo,
		logger: logger,
		now:    defaultNow,
	}
}

func (s *ReportService) loadLedger(ctx context.Context, evaluationID string) ([]*models.EvaluationAccess, error) {
	var all []*models.EvaluationAccess
	for offset := 0; ; offset += reportPageSize {
		page, total, err := s.repo.Access().List(ctx, repositories.AccessFilters{
			EvaluationID: evaluationID,
			Limit:        reportPageSize,
			Offset:       offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list access: %w", err)
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			return all, nil
		}
	}
}

// Summary counts ledger states and attempt outcomes for an evaluation.
func (s *ReportService) Summary(ctx context.Context, evaluationID string) (*LedgerSummary, error) {
	if _, err := getEvaluation(ctx, s.repo, evaluationID); err != nil {
		return nil, err
	}

	ledger, err := s.loadLedger(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &LedgerSummary{
		EvaluationID:    evaluationID,
		Students:        len(ledger),
		States:          make(map[AccessState]int),
		AttemptStatuses: make(map[models.AttemptStatus]int),
	}

	var scored int
	var scoreSum float64
	for _, access := range ledger {
		summary.States[State(access, now)]++
		if lockActive(access, now) && access.LockedReason != nil && *access.LockedReason == models.LockSuspiciousActivity {
			summary.SuspiciousLocks++
		}
		for _, attempt := range access.Attempts {
			summary.Attempts++
			summary.AttemptStatuses[attempt.Status]++
			if attempt.Status != models.AttemptGraded {
				continue
			}
			scored++
			scoreSum += attempt.Score
			if attempt.Passed {
				summary.Passed++
			}
		}
	}

	if scored > 0 {
		summary.PassRate = float64(summary.Passed) / float64(scored) * 100
		summary.AverageScore = scoreSum / float64(scored)
	}
	return summary, nil
}

// ExportLedger renders the ledger and every attempt of an evaluation as an
// xlsx workbook.
func (s *ReportService) ExportLedger(ctx context.Context, evaluationID string) ([]byte, error) {
	evaluation, err := getEvaluation(ctx, s.repo, evaluationID)
	if err != nil {
		return nil, err
	}

	ledger, err := s.loadLedger(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const ledgerSheet = "Ledger"
	const attemptSheet = "Attempts"

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	if _, err := f.NewSheet(attemptSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	now := s.now()
	ledgerRows := [][]interface{}{{
		"Student ID", "Course Version", "Attempts Allowed", "Attempts Used", "Remaining",
		"State", "Locked Until", "Lock Reason", "Lock Count",
	}}
	attemptRows := [][]interface{}{{
		"Student ID", "Attempt", "Status", "Started At", "Submitted At",
		"Score", "Max Score", "Passed", "Tab Switches", "Suspicious Events",
	}}

	for _, access := range ledger {
		lockedUntil, reason := "", ""
		if access.LockedUntil != nil && lockActive(access, now) {
			lockedUntil = access.LockedUntil.Format(reportTimeLayout)
		}
		if access.LockedReason != nil {
			reason = string(*access.LockedReason)
		}
		ledgerRows = append(ledgerRows, []interface{}{
			access.StudentID,
			access.CourseVersionID,
			access.AttemptsAllowed,
			access.AttemptsUsed,
			access.RemainingAttempts,
			string(State(access, now)),
			lockedUntil,
			reason,
			access.LockCount,
		})

		for _, attempt := range access.Attempts {
			submitted := ""
			if attempt.SubmittedAt != nil {
				submitted = attempt.SubmittedAt.Format(reportTimeLayout)
			}
			passed := "Fail"
			if attempt.Passed {
				passed = "Pass"
			}
			attemptRows = append(attemptRows, []interface{}{
				attempt.StudentID,
				attempt.AttemptNumber,
				string(attempt.Status),
				attempt.StartedAt.Format(reportTimeLayout),
				submitted,
				attempt.Score,
				attempt.MaxScore,
				passed,
				attempt.TabSwitches,
				len(attempt.SuspiciousActivity),
			})
		}
	}

	if err := writeRows(f, ledgerSheet, ledgerRows); err != nil {
		return nil, err
	}
	if err := writeRows(f, attemptSheet, attemptRows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Ledger exported",
		"evaluation_id", evaluation.ID,
		"students", len(ledger))

	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}
