package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on top of audited SQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Insert stores job and returns the assigned id.
func (r *JobRepositoryPG) Insert(ctx context.Context, job *domain.Job) (int64, error) {
	score, err := marshalNullable(job.Score)
	if err != nil {
		return 0, fmt.Errorf("encode score: %w", err)
	}
	images, err := marshalNullable(job.Images)
	if err != nil {
		return 0, fmt.Errorf("encode images: %w", err)
	}
	logs, err := marshalLogs(job.Logs)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.Subject,
		string(job.Status),
		job.ScheduledAt,
		job.GeneratedAt,
		job.PublishedAt,
		job.PostID,
		score,
		images,
		logs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Update applies the set fields of u. It reports false when no row matched.
func (r *JobRepositoryPG) Update(ctx context.Context, id int64, u domain.JobUpdate) (bool, error) {
	if u.Empty() {
		return true, nil
	}
	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}
	score, err := marshalNullable(u.Score)
	if err != nil {
		return false, fmt.Errorf("encode score: %w", err)
	}
	images, err := marshalNullable(u.Images)
	if err != nil {
		return false, fmt.Errorf("encode images: %w", err)
	}
	var logs []byte
	if u.Logs != nil {
		if logs, err = marshalLogs(u.Logs); err != nil {
			return false, err
		}
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJob,
		id,
		u.Status != nil, status,
		u.GeneratedAt != nil, u.GeneratedAt,
		u.PublishedAt != nil, u.PublishedAt,
		u.PostID != nil, u.PostID,
		u.Score != nil, score,
		u.Images != nil, images,
		u.Logs != nil, logs,
	)
	if err != nil {
		return false, fmt.Errorf("update job %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// ListRecent returns up to limit jobs, newest first.
func (r *JobRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListDue returns scheduled jobs whose scheduled_at is not after now.
func (r *JobRepositoryPG) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListDueJobs, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	return collectJobs(rows)
}

// Purge deletes every job row and returns how many were removed.
func (r *JobRepositoryPG) Purge(ctx context.Context) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QPurgeJobs)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                 domain.Job
		status              string
		score, images, logs []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Subject,
		&status,
		&job.ScheduledAt,
		&job.GeneratedAt,
		&job.PublishedAt,
		&job.PostID,
		&score,
		&images,
		&logs,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if len(score) > 0 && string(score) != "null" {
		job.Score = &domain.ScoreBreakdown{}
		if err := json.Unmarshal(score, job.Score); err != nil {
			return nil, fmt.Errorf("decode score for job %d: %w", job.ID, err)
		}
	}
	if len(images) > 0 && string(images) != "null" {
		job.Images = &domain.ImageDiagnostics{}
		if err := json.Unmarshal(images, job.Images); err != nil {
			return nil, fmt.Errorf("decode images for job %d: %w", job.ID, err)
		}
	}
	job.Logs = []domain.LogEntry{}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &job.Logs); err != nil {
			return nil, fmt.Errorf("decode logs for job %d: %w", job.ID, err)
		}
		if job.Logs == nil {
			job.Logs = []domain.LogEntry{}
		}
	}
	return &job, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func marshalLogs(logs []domain.LogEntry) ([]byte, error) {
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	raw, err := json.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}
	return raw, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
