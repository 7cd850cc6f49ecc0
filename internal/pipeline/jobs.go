package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/metrics"
)

const defaultListLimit = 50

var errSkipped = errors.New("pipeline: job no longer due")

// ApproveResult reports the outcome of a manual publish.
type ApproveResult struct {
	JobID            int64  `json:"job_id"`
	PostID           int64  `json:"post_id"`
	AlreadyPublished bool   `json:"already_published"`
	Message          string `json:"message"`
}

// ScheduleJob records a job for subject that the worker runs once
// scheduledAt has passed.
func (p *Pipeline) ScheduleJob(ctx context.Context, subject string, scheduledAt time.Time) (int64, error) {
	return p.insertJob(ctx, subject, domain.JobStatusScheduled, scheduledAt)
}

// Accept records a pending job for subject so a caller can hand the run to a
// background queue and return the id immediately.
func (p *Pipeline) Accept(ctx context.Context, subject string) (int64, error) {
	return p.insertJob(ctx, subject, domain.JobStatusPending, p.now())
}

// Reject fails an accepted job that never reached a worker.
func (p *Pipeline) Reject(ctx context.Context, id int64, reason string) error {
	status := domain.JobStatusError
	logs := []domain.LogEntry{{
		Time:    p.now().UTC(),
		Source:  domain.LogSourcePipeline,
		Stage:   "queue",
		Message: reason,
	}}
	ok, err := p.jobs.Update(ctx, id, domain.JobUpdate{Status: &status, Logs: logs})
	if err != nil {
		return fmt.Errorf("pipeline: reject job %d: %w", id, err)
	}
	if !ok {
		return &domain.Error{Kind: domain.ErrNotFound, Message: "Job not found.", JobID: id}
	}
	p.metrics.Increment(metrics.JobsFailed)
	return nil
}

func (p *Pipeline) insertJob(ctx context.Context, subject string, status domain.JobStatus, at time.Time) (int64, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, &domain.Error{Kind: domain.ErrInvalidSubject, Message: "Subject is required."}
	}
	at = at.UTC()
	id, err := p.jobs.Insert(ctx, &domain.Job{
		Subject:     subject,
		Status:      status,
		ScheduledAt: &at,
		Logs:        []domain.LogEntry{},
	})
	if err != nil {
		return 0, fmt.Errorf("pipeline: insert job: %w", err)
	}
	return id, nil
}

// Job returns a single job.
func (p *Pipeline) Job(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.Error{Kind: domain.ErrNotFound, Message: "Job not found.", JobID: id}
		}
		return nil, err
	}
	return job, nil
}

// RecentJobs lists the newest jobs first. A non-positive limit means 50.
func (p *Pipeline) RecentJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return p.jobs.ListRecent(ctx, limit)
}

// RunJob re-runs a stored job with its subject and no request overrides.
// The result is never published automatically.
func (p *Pipeline) RunJob(ctx context.Context, id int64) (*Result, error) {
	job, err := p.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.GenerateOnce(ctx, Params{Subject: job.Subject}, false, id)
}

// ApproveJob publishes the post linked to a job. Approving an already
// published post succeeds without changing anything.
func (p *Pipeline) ApproveJob(ctx context.Context, id int64) (*ApproveResult, error) {
	job, err := p.jobs.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if job == nil || job.PostID == nil {
		return nil, &domain.Error{Kind: domain.ErrNotFound, Message: "Job or associated post not found.", JobID: id}
	}
	postID := *job.PostID
	post, err := p.posts.Get(ctx, postID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.Error{Kind: domain.ErrNotFound, Message: "Post not found.", JobID: id}
		}
		return nil, err
	}

	if post.Status == domain.PostStatusPublish {
		if job.Status != domain.JobStatusPublished {
			p.markPublished(ctx, job, "Post was already published.")
		}
		return &ApproveResult{JobID: id, PostID: postID, AlreadyPublished: true, Message: "Post already published."}, nil
	}

	status := domain.PostStatusPublish
	if err := p.posts.Update(ctx, postID, domain.PostUpdate{Status: &status}); err != nil {
		return nil, fmt.Errorf("pipeline: publish post %d: %w", postID, err)
	}
	p.markPublished(ctx, job, "Post published.")
	p.metrics.Increment(metrics.JobsPublished)
	p.logger.Info().Int64("job_id", id).Int64("post_id", postID).Msg("pipeline: job approved")
	return &ApproveResult{JobID: id, PostID: postID, Message: "Post published."}, nil
}

func (p *Pipeline) markPublished(ctx context.Context, job *domain.Job, message string) {
	now := p.now().UTC()
	status := domain.JobStatusPublished
	logs := append(append([]domain.LogEntry(nil), job.Logs...), domain.LogEntry{
		Time:    now,
		Source:  domain.LogSourceApprove,
		Message: message,
	})
	update := domain.JobUpdate{Status: &status, PublishedAt: &now, Logs: logs}
	if _, err := p.jobs.Update(ctx, job.ID, update); err != nil {
		p.logger.Error().Err(err).Int64("job_id", job.ID).Msg("pipeline: job update failed")
	}
}

// RunScheduledCampaign generates one article for the configured default
// subject. It does nothing when no default subject is set.
func (p *Pipeline) RunScheduledCampaign(ctx context.Context) (*Result, error) {
	subject := p.settings.Content.DefaultSubject
	if subject == "" {
		p.logger.Debug().Msg("pipeline: no default subject, campaign skipped")
		return nil, nil
	}
	params := Params{
		Subject:           subject,
		PrimaryKeyword:    p.settings.Content.KeywordPrimary,
		SecondaryKeywords: p.settings.Content.KeywordSecondary,
	}
	return p.GenerateOnce(ctx, params, p.settings.Publish.AutoPublish, 0)
}

// RunDueJobs runs scheduled jobs whose time has come, oldest first. Jobs
// that another run holds or already finished are skipped. It returns the
// number of jobs run.
func (p *Pipeline) RunDueJobs(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	due, err := p.jobs.ListDue(ctx, now.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("pipeline: list due jobs: %w", err)
	}
	ran := 0
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		job, unlock, err := p.resumeJob(ctx, candidate.ID, stillDue(now))
		if err != nil {
			if errors.Is(err, errSkipped) || errors.Is(err, domain.ErrJobBusy) {
				p.logger.Debug().Int64("job_id", candidate.ID).Msg("pipeline: due job skipped")
				continue
			}
			p.logger.Error().Err(err).Int64("job_id", candidate.ID).Msg("pipeline: due job not started")
			continue
		}
		_, err = p.run(ctx, job, Params{Subject: job.Subject}, false)
		unlock()
		ran++
		if err != nil {
			p.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("pipeline: due job failed")
		}
	}
	return ran, nil
}

func stillDue(now time.Time) func(*domain.Job) bool {
	return func(j *domain.Job) bool {
		return j.Status == domain.JobStatusScheduled && j.ScheduledAt != nil && !j.ScheduledAt.After(now)
	}
}

// NextDailyRun returns the next occurrence of the HH:MM clock time in now's
// location: today if it is still ahead, otherwise tomorrow.
func NextDailyRun(now time.Time, daily string) (time.Time, error) {
	h, m, err := config.ParseDailyTime(daily)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
