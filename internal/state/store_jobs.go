package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"clipcut/internal/core"
)

// JobRecord pairs a persisted spec with its latest status.
type JobRecord struct {
	Spec   core.JobSpec
	Status core.JobStatus
}

// EnqueueJob persists a new job with a pending status. Jobs are dequeued in
// insertion (FIFO) order.
func (s *Store) EnqueueJob(ctx context.Context, spec core.JobSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}
	statusJSON, err := json.Marshal(core.NewJobStatus(spec))
	if err != nil {
		return fmt.Errorf("encode job status: %w", err)
	}
	now := nowStamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, spec_json, status_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		spec.JobID, string(specJSON), string(statusJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", spec.JobID, err)
	}
	return nil
}

// DequeueNextJob returns the oldest pending job, or ok=false when the queue
// is drained. The caller is responsible for transitioning it to running.
func (s *Store) DequeueNextJob(ctx context.Context) (core.JobSpec, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT spec_json, status_json FROM jobs ORDER BY seq`)
	if err != nil {
		return core.JobSpec{}, false, fmt.Errorf("scan job queue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var specJSON, statusJSON string
		if err := rows.Scan(&specJSON, &statusJSON); err != nil {
			return core.JobSpec{}, false, err
		}
		var status core.JobStatus
		if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
			return core.JobSpec{}, false, fmt.Errorf("decode job status: %w", err)
		}
		if status.State != core.StatePending {
			continue
		}
		var spec core.JobSpec
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			return core.JobSpec{}, false, fmt.Errorf("decode job spec: %w", err)
		}
		return spec, true, nil
	}
	return core.JobSpec{}, false, rows.Err()
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (JobRecord, error) {
	var specJSON, statusJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT spec_json, status_json FROM jobs WHERE job_id = ?`, jobID,
	).Scan(&specJSON, &statusJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return decodeJobRecord(specJSON, statusJSON)
}

// ListJobs returns all jobs in queue order.
func (s *Store) ListJobs(ctx context.Context) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT spec_json, status_json FROM jobs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var specJSON, statusJSON string
		if err := rows.Scan(&specJSON, &statusJSON); err != nil {
			return nil, err
		}
		rec, err := decodeJobRecord(specJSON, statusJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateJobStatus persists the full status record for a job.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status core.JobStatus) error {
	b, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode job status: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status_json = ?, updated_at = ? WHERE job_id = ?`,
		string(b), nowStamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

func decodeJobRecord(specJSON, statusJSON string) (JobRecord, error) {
	var rec JobRecord
	if err := json.Unmarshal([]byte(specJSON), &rec.Spec); err != nil {
		return JobRecord{}, fmt.Errorf("decode job spec: %w", err)
	}
	if err := json.Unmarshal([]byte(statusJSON), &rec.Status); err != nil {
		return JobRecord{}, fmt.Errorf("decode job status: %w", err)
	}
	return rec, nil
}
