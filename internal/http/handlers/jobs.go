package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"contentengine/internal/domain"
	"contentengine/internal/middleware"
	"contentengine/internal/pipeline"
)

const maxListLimit = 200

type generateRequest struct {
	Subject           string   `json:"subject"`
	PrimaryKeyword    string   `json:"primary_keyword"`
	SecondaryKeywords []string `json:"secondary_keywords"`
	Audience          string   `json:"audience"`
	Intent            string   `json:"intent"`
}

type scheduleRequest struct {
	Subject     string `json:"subject"`
	ScheduledAt string `json:"scheduled_at"`
}

type acceptedResponse struct {
	JobID  int64            `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// Generate accepts a draft generation run.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	a.enqueueGeneration(w, r, false)
}

// GenerateAndPublish accepts a run that publishes when no guardrail trips.
func (a *App) GenerateAndPublish(w http.ResponseWriter, r *http.Request) {
	a.enqueueGeneration(w, r, true)
}

func (a *App) enqueueGeneration(w http.ResponseWriter, r *http.Request, publish bool) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	id, err := a.Jobs.Accept(r.Context(), req.Subject)
	if err != nil {
		a.domainError(w, err)
		return
	}
	task := pipeline.Task{
		JobID:   id,
		Publish: publish,
		Params: pipeline.Params{
			Subject:           req.Subject,
			PrimaryKeyword:    req.PrimaryKeyword,
			SecondaryKeywords: req.SecondaryKeywords,
			Audience:          req.Audience,
			Intent:            req.Intent,
		},
	}
	if !a.submit(w, r, task) {
		if err := a.Jobs.Reject(context.WithoutCancel(r.Context()), id, "Run was not queued: the queue is full or closed."); err != nil {
			a.Logger.Error().Err(err).Int64("job_id", id).Msg("api: rejected job not updated")
		}
		return
	}
	a.json(w, http.StatusAccepted, acceptedResponse{JobID: id, Status: domain.JobStatusPending})
}

func (a *App) submit(w http.ResponseWriter, r *http.Request, task pipeline.Task) bool {
	if err := a.Queue.Submit(task); err != nil {
		a.Logger.Warn().Err(err).
			Int64("job_id", task.JobID).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("api: run not queued")
		if errors.Is(err, pipeline.ErrQueueFull) {
			a.error(w, http.StatusServiceUnavailable, "queue_full", "too many runs in progress, retry later")
			return false
		}
		a.error(w, http.StatusServiceUnavailable, "unavailable", "runs are not accepted right now")
		return false
	}
	return true
}

// CreateJob schedules a job for the worker.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	at := a.now()
	if v := strings.TrimSpace(req.ScheduledAt); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "scheduled_at must be RFC 3339")
			return
		}
		at = parsed
	}
	id, err := a.Jobs.ScheduleJob(r.Context(), req.Subject, at)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, acceptedResponse{JobID: id, Status: domain.JobStatusScheduled})
}

// ListJobs returns recent jobs, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	jobs, err := a.Jobs.RecentJobs(r.Context(), limit)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GetJob returns one job with its score, image diagnostics and logs.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := a.jobID(w, r)
	if !ok {
		return
	}
	job, err := a.Jobs.Job(r.Context(), id)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// RunJob queues a re-run of a stored job.
func (a *App) RunJob(w http.ResponseWriter, r *http.Request) {
	id, ok := a.jobID(w, r)
	if !ok {
		return
	}
	job, err := a.Jobs.Job(r.Context(), id)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if !a.submit(w, r, pipeline.Task{JobID: id, Params: pipeline.Params{Subject: job.Subject}}) {
		return
	}
	a.json(w, http.StatusAccepted, acceptedResponse{JobID: id, Status: job.Status})
}

// ApproveJob publishes the post linked to a job.
func (a *App) ApproveJob(w http.ResponseWriter, r *http.Request) {
	id, ok := a.jobID(w, r)
	if !ok {
		return
	}
	res, err := a.Jobs.ApproveJob(r.Context(), id)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid job id")
		return 0, false
	}
	return id, true
}
