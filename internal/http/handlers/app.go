package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/metrics"
	"contentengine/internal/pipeline"
	"contentengine/internal/providers/generation"
)

// JobService is the pipeline surface the API exposes.
type JobService interface {
	Accept(ctx context.Context, subject string) (int64, error)
	Reject(ctx context.Context, id int64, reason string) error
	ScheduleJob(ctx context.Context, subject string, scheduledAt time.Time) (int64, error)
	Job(ctx context.Context, id int64) (*domain.Job, error)
	RecentJobs(ctx context.Context, limit int) ([]domain.Job, error)
	ApproveJob(ctx context.Context, id int64) (*pipeline.ApproveResult, error)
}

// TaskQueue accepts runs that execute off the request goroutine.
type TaskQueue interface {
	Submit(t pipeline.Task) error
}

// ModelLister lists models offered by the configured provider.
type ModelLister interface {
	Models(ctx context.Context, apiBase, apiKey string) []string
}

// App carries the dependencies shared by every handler.
type App struct {
	Settings config.Settings
	Jobs     JobService
	Queue    TaskQueue
	Models   ModelLister
	Errors   *generation.ErrorCache
	Metrics  *metrics.Registry
	Endpoint string
	Version  string
	Logger   zerolog.Logger
	Now      func() time.Time

	// GenerateLimit caps generation requests per client IP per minute; zero
	// disables the cap.
	GenerateLimit int
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// domainError maps pipeline errors onto HTTP responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSubject):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrJobBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrGenerationFailed):
		status = http.StatusBadGateway
	}
	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	} else {
		a.Logger.Error().Err(err).Msg("api: request failed")
	}
	a.error(w, status, domain.Code(err), message)
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
