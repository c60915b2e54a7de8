package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

type ReportStore struct {
	db DB
}

func NewReportStore(db DB) *ReportStore {
	if db == nil {
		return nil
	}
	return &ReportStore{db: db}
}

func (s *ReportStore) CreateReport(ctx context.Context, report domain.EvaluationReport) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("report store not initialized")
	}
	if err := report.Validate(); err != nil {
		return err
	}
	overallJSON, err := encodeJSON(report.Overall)
	if err != nil {
		return fmt.Errorf("encode overall: %w", err)
	}
	perClassJSON, err := json.Marshal(report.PerClass)
	if err != nil {
		return fmt.Errorf("encode per_class: %w", err)
	}
	slicesJSON, err := encodeJSON(report.Slices)
	if err != nil {
		return fmt.Errorf("encode slices: %w", err)
	}
	thresholdsJSON, err := encodeJSON(report.Thresholds)
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	failuresJSON, err := json.Marshal(report.Failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO evaluation_reports (
			report_id,
			run_id,
			dataset_loc,
			evaluated_at,
			evaluated_by,
			overall,
			per_class,
			slices,
			thresholds,
			passed,
			failures,
			object_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		strings.TrimSpace(report.ID),
		strings.TrimSpace(report.RunID),
		strings.TrimSpace(report.DatasetLoc),
		report.EvaluatedAt.UTC(),
		strings.TrimSpace(report.EvaluatedBy),
		overallJSON,
		perClassJSON,
		slicesJSON,
		thresholdsJSON,
		report.Passed,
		failuresJSON,
		nullIfEmpty(report.ObjectKey),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

const reportColumns = `report_id, run_id, dataset_loc, evaluated_at, evaluated_by, overall, per_class, slices, thresholds, passed, failures, object_key`

func (s *ReportStore) GetReport(ctx context.Context, id string) (domain.EvaluationReport, error) {
	if s == nil || s.db == nil {
		return domain.EvaluationReport{}, fmt.Errorf("report store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.EvaluationReport{}, fmt.Errorf("report id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reportColumns+` FROM evaluation_reports WHERE report_id = $1`,
		id,
	)
	report, err := scanReport(row)
	if err != nil {
		return domain.EvaluationReport{}, handleNotFound(err)
	}
	return report, nil
}

func (s *ReportStore) ListReportsForRun(ctx context.Context, runID string, limit int) ([]domain.EvaluationReport, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("report store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reportColumns+`
		 FROM evaluation_reports
		 WHERE run_id = $1
		 ORDER BY evaluated_at DESC
		 LIMIT $2`,
		runID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []domain.EvaluationReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

func (s *ReportStore) LatestReportForRun(ctx context.Context, runID string) (domain.EvaluationReport, error) {
	reports, err := s.ListReportsForRun(ctx, runID, 1)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	if len(reports) == 0 {
		return domain.EvaluationReport{}, repo.ErrNotFound
	}
	return reports[0], nil
}

func scanReport(row rowScanner) (domain.EvaluationReport, error) {
	var (
		report        domain.EvaluationReport
		overallRaw    []byte
		perClassRaw   []byte
		slicesRaw     []byte
		thresholdsRaw []byte
		failuresRaw   []byte
		objectKey     sql.NullString
	)
	err := row.Scan(
		&report.ID,
		&report.RunID,
		&report.DatasetLoc,
		&report.EvaluatedAt,
		&report.EvaluatedBy,
		&overallRaw,
		&perClassRaw,
		&slicesRaw,
		&thresholdsRaw,
		&report.Passed,
		&failuresRaw,
		&objectKey,
	)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	if err := json.Unmarshal(overallRaw, &report.Overall); err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("decode overall: %w", err)
	}
	if len(perClassRaw) > 0 {
		if err := json.Unmarshal(perClassRaw, &report.PerClass); err != nil {
			return domain.EvaluationReport{}, fmt.Errorf("decode per_class: %w", err)
		}
	}
	if len(slicesRaw) > 0 {
		if err := json.Unmarshal(slicesRaw, &report.Slices); err != nil {
			return domain.EvaluationReport{}, fmt.Errorf("decode slices: %w", err)
		}
	}
	if len(thresholdsRaw) > 0 {
		if err := json.Unmarshal(thresholdsRaw, &report.Thresholds); err != nil {
			return domain.EvaluationReport{}, fmt.Errorf("decode thresholds: %w", err)
		}
	}
	if len(failuresRaw) > 0 {
		if err := json.Unmarshal(failuresRaw, &report.Failures); err != nil {
			return domain.EvaluationReport{}, fmt.Errorf("decode failures: %w", err)
		}
	}
	report.ObjectKey = objectKey.String
	return report, nil
}
