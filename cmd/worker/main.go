package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contentengine/internal/bootstrap"
	"contentengine/internal/infra"
	"contentengine/internal/pipeline"
)

const dueBatchSize = 10

type jobWorker struct {
	pipeline *pipeline.Pipeline
	logger   infra.Logger
	poll     time.Duration
	daily    string
	now      func() time.Time
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: startup failed")
	}
	defer engine.Close()

	poll := time.Duration(cfg.WorkerPollSeconds) * time.Second
	if poll <= 0 {
		poll = 30 * time.Second
	}
	worker := &jobWorker{
		pipeline: engine.Pipeline,
		logger:   logger,
		poll:     poll,
		daily:    engine.Settings.Content.DailyTime,
		now:      time.Now,
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run polls for due jobs and fires the daily campaign until ctx ends.
func (w *jobWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll", w.poll).Str("daily_time", w.daily).Msg("worker: started")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	campaign, next := w.scheduleCampaign()
	defer func() { stopTimer(campaign) }()

	w.runDue(ctx)
	for {
		var fire <-chan time.Time
		if campaign != nil {
			fire = campaign.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runDue(ctx)
		case <-fire:
			w.runCampaign(ctx, next)
			campaign, next = w.scheduleCampaign()
		}
	}
}

func (w *jobWorker) runDue(ctx context.Context) {
	ran, err := w.pipeline.RunDueJobs(ctx, w.now(), dueBatchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("worker: due jobs failed")
		}
		return
	}
	if ran > 0 {
		w.logger.Info().Int("ran", ran).Msg("worker: due jobs processed")
	}
}

func (w *jobWorker) runCampaign(ctx context.Context, scheduled time.Time) {
	res, err := w.pipeline.RunScheduledCampaign(ctx)
	switch {
	case err != nil:
		w.logger.Error().Err(err).Time("scheduled", scheduled).Msg("worker: campaign failed")
	case res == nil:
		w.logger.Debug().Msg("worker: campaign skipped, no default subject")
	default:
		w.logger.Info().
			Int64("job_id", res.JobID).
			Int64("post_id", res.PostID).
			Str("post_status", string(res.PostStatus)).
			Msg("worker: campaign run finished")
	}
}

// scheduleCampaign arms a timer for the next daily run. A nil timer means the
// daily time is unset or invalid.
func (w *jobWorker) scheduleCampaign() (*time.Timer, time.Time) {
	if w.daily == "" {
		return nil, time.Time{}
	}
	now := w.now()
	next, err := pipeline.NextDailyRun(now, w.daily)
	if err != nil {
		w.logger.Warn().Err(err).Str("daily_time", w.daily).Msg("worker: daily campaign disabled")
		return nil, time.Time{}
	}
	w.logger.Debug().Time("next", next).Msg("worker: campaign scheduled")
	return time.NewTimer(next.Sub(now)), next
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
