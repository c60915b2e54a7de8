package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeJSON(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	resourcesJSON, err := encodeJSON(run.Resources)
	if err != nil {
		return fmt.Errorf("encode resources: %w", err)
	}
	var endedAt sql.NullTime
	if run.EndedAt != nil {
		endedAt = sql.NullTime{Time: run.EndedAt.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO training_runs (
			run_id,
			experiment,
			status,
			params,
			resources,
			dataset_loc,
			artifact_key,
			fail_reason,
			created_at,
			ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.Experiment),
		string(run.Status),
		paramsJSON,
		resourcesJSON,
		nullIfEmpty(run.DatasetLoc),
		nullIfEmpty(run.ArtifactKey),
		nullIfEmpty(run.FailReason),
		normalizeTime(run.CreatedAt),
		endedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `run_id, experiment, status, params, resources, dataset_loc, artifact_key, fail_reason, created_at, ended_at`

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runColumns+` FROM training_runs WHERE run_id = $1`,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	metrics, err := s.loadMetrics(ctx, []string{run.ID})
	if err != nil {
		return domain.Run{}, err
	}
	run.Metrics = metrics[run.ID]
	return run, nil
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}

	query := `SELECT ` + runColumns + ` FROM training_runs`
	var (
		conds []string
		args  []any
	)
	if strings.TrimSpace(filter.Experiment) != "" {
		args = append(args, strings.TrimSpace(filter.Experiment))
		conds = append(conds, fmt.Sprintf("experiment = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, run_id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	var ids []string
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
		ids = append(ids, run.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		metrics, err := s.loadMetrics(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].Metrics = metrics[out[i].ID]
		}
	}
	return out, nil
}

func (s *RunStore) AppendMetrics(ctx context.Context, runID string, snapshot domain.MetricSnapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	valuesJSON, err := encodeJSON(snapshot.Values)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	// The insert is guarded so metric history freezes at a terminal status.
	result, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_metrics (run_id, epoch, recorded_at, metrics)
		 SELECT $1, $2, $3, $4
		 WHERE EXISTS (
			SELECT 1 FROM training_runs WHERE run_id = $1 AND status = $5
		 )`,
		runID,
		snapshot.Epoch,
		normalizeTime(snapshot.RecordedAt),
		valuesJSON,
		string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetRun(ctx, runID); err != nil {
			return err
		}
		return fmt.Errorf("%w: run %s is not RUNNING; metrics are frozen", repo.ErrConflict, runID)
	}
	return nil
}

func (s *RunStore) CompleteRun(ctx context.Context, runID string, artifactKey string, endedAt time.Time) error {
	if strings.TrimSpace(artifactKey) == "" {
		return fmt.Errorf("artifact key is required to complete run %s", runID)
	}
	return s.transition(ctx, runID, domain.RunStatusCompleted, artifactKey, "", endedAt)
}

func (s *RunStore) FailRun(ctx context.Context, runID string, reason string, endedAt time.Time) error {
	return s.transition(ctx, runID, domain.RunStatusFailed, "", reason, endedAt)
}

func (s *RunStore) transition(ctx context.Context, runID string, to domain.RunStatus, artifactKey, reason string, endedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	result, err := s.db.ExecContext(
		ctx,
		`UPDATE training_runs
		 SET status = $2, artifact_key = COALESCE($3, artifact_key), fail_reason = $4, ended_at = $5
		 WHERE run_id = $1 AND status = $6`,
		runID,
		string(to),
		nullIfEmpty(artifactKey),
		nullIfEmpty(reason),
		normalizeTime(endedAt),
		string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if affected == 0 {
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if err := domain.ValidateRunTransition(run.Status, to); err != nil {
			return fmt.Errorf("%w: %v", repo.ErrConflict, err)
		}
		return nil
	}
	return nil
}

func (s *RunStore) loadMetrics(ctx context.Context, runIDs []string) (map[string][]domain.MetricSnapshot, error) {
	placeholders := make([]string, len(runIDs))
	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, epoch, recorded_at, metrics
		 FROM run_metrics
		 WHERE run_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY run_id, epoch`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.MetricSnapshot, len(runIDs))
	for rows.Next() {
		var (
			runID      string
			epoch      int
			recordedAt time.Time
			raw        []byte
		)
		if err := rows.Scan(&runID, &epoch, &recordedAt, &raw); err != nil {
			return nil, err
		}
		values := map[string]float64{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, fmt.Errorf("decode metrics for run %s: %w", runID, err)
			}
		}
		out[runID] = append(out[runID], domain.MetricSnapshot{
			Epoch:      epoch,
			RecordedAt: recordedAt,
			Values:     values,
		})
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		run         domain.Run
		status      string
		paramsRaw   []byte
		resourceRaw []byte
		datasetLoc  sql.NullString
		artifactKey sql.NullString
		failReason  sql.NullString
		endedAt     sql.NullTime
	)
	err := row.Scan(
		&run.ID,
		&run.Experiment,
		&status,
		&paramsRaw,
		&resourceRaw,
		&datasetLoc,
		&artifactKey,
		&failReason,
		&run.CreatedAt,
		&endedAt,
	)
	if err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.RunStatus(status)
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &run.Params); err != nil {
			return domain.Run{}, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(resourceRaw) > 0 {
		if err := json.Unmarshal(resourceRaw, &run.Resources); err != nil {
			return domain.Run{}, fmt.Errorf("decode resources: %w", err)
		}
	}
	run.DatasetLoc = datasetLoc.String
	run.ArtifactKey = artifactKey.String
	run.FailReason = failReason.String
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		run.EndedAt = &t
	}
	return run, nil
}
