// Package pipeline sequences one article job: generation, post creation,
// image ingestion, SEO metadata, scoring, guardrails and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
	"contentengine/internal/infra"
	"contentengine/internal/media"
	"contentengine/internal/metrics"
	"contentengine/internal/scoring"
)

const (
	titleWords   = 12
	excerptWords = 40
)

// ImageService is the image ingestion surface the pipeline drives.
type ImageService interface {
	SetFeaturedImage(ctx context.Context, postID int64, rawURL, alt string) (int64, error)
	SetOGImage(ctx context.Context, postID int64, rawURL, alt string) (int64, error)
	LinkOGImage(ctx context.Context, postID, attachmentID int64, fallbackURL string) error
	ImportInlineImages(ctx context.Context, postID int64, images []domain.InlineImage) media.InlineResult
}

// Options configures a Pipeline.
type Options struct {
	Settings  config.Settings
	Jobs      domain.JobRepository
	Locker    domain.JobLocker
	Posts     domain.PostRepository
	Images    ImageService
	Providers []domain.GenerationProvider
	Logger    *infra.Logger
	Metrics   *metrics.Registry
	Now       func() time.Time
}

// Pipeline runs generation jobs. It is the only writer of job rows.
type Pipeline struct {
	settings  config.Settings
	jobs      domain.JobRepository
	locker    domain.JobLocker
	posts     domain.PostRepository
	images    ImageService
	providers []domain.GenerationProvider
	logger    *infra.Logger
	metrics   *metrics.Registry
	now       func() time.Time
}

// Params are the per-request inputs of a generation run. Empty keyword
// fields fall back to the configured keywords.
type Params struct {
	Subject           string   `json:"subject"`
	PrimaryKeyword    string   `json:"primary_keyword,omitempty"`
	SecondaryKeywords []string `json:"secondary_keywords,omitempty"`
	Audience          string   `json:"audience,omitempty"`
	Intent            string   `json:"intent,omitempty"`
}

// Result is the structured outcome of a successful run.
type Result struct {
	JobID      int64                   `json:"job_id"`
	PostID     int64                   `json:"post_id"`
	PostStatus domain.PostStatus       `json:"post_status"`
	JobStatus  domain.JobStatus        `json:"job_status"`
	Score      domain.ScoreBreakdown   `json:"score"`
	Images     domain.ImageDiagnostics `json:"images"`
	Guardrails []string                `json:"guardrails"`
	Warnings   []string                `json:"warnings,omitempty"`
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Jobs == nil {
		return nil, errors.New("pipeline: job repository is required")
	}
	if opts.Posts == nil {
		return nil, errors.New("pipeline: post repository is required")
	}
	if opts.Images == nil {
		return nil, errors.New("pipeline: image service is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		settings:  opts.Settings,
		jobs:      opts.Jobs,
		locker:    opts.Locker,
		posts:     opts.Posts,
		images:    opts.Images,
		providers: opts.Providers,
		logger:    infra.LoggerOrDiscard(opts.Logger),
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// Settings returns the configuration the pipeline was built with.
func (p *Pipeline) Settings() config.Settings { return p.settings }

// GenerateOnce runs a single generation attempt. jobID 0 records a new job;
// otherwise the run is attached to that job and holds its lock throughout.
func (p *Pipeline) GenerateOnce(ctx context.Context, params Params, publish bool, jobID int64) (*Result, error) {
	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		return nil, &domain.Error{Kind: domain.ErrInvalidSubject, Message: "Subject is required."}
	}

	var (
		job    *domain.Job
		unlock func()
		err    error
	)
	if jobID == 0 {
		job, unlock, err = p.startJob(ctx, subject)
	} else {
		job, unlock, err = p.resumeJob(ctx, jobID, nil)
	}
	if err != nil {
		return nil, err
	}
	defer unlock()
	return p.run(ctx, job, params, publish)
}

// startJob inserts a new scheduled job and locks it.
func (p *Pipeline) startJob(ctx context.Context, subject string) (*domain.Job, func(), error) {
	now := p.now().UTC()
	job := &domain.Job{
		Subject:     subject,
		Status:      domain.JobStatusScheduled,
		ScheduledAt: &now,
		Logs:        []domain.LogEntry{},
	}
	id, err := p.jobs.Insert(ctx, job)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: insert job: %w", err)
	}
	job.ID = id
	unlock, ok, err := p.lock(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &domain.Error{Kind: domain.ErrJobBusy, Message: "Job is already running.", JobID: id}
	}
	return job, unlock, nil
}

// resumeJob locks an existing job, reloads it and moves it back to
// scheduled. accept, when set, may veto the run after the lock is held.
func (p *Pipeline) resumeJob(ctx context.Context, id int64, accept func(*domain.Job) bool) (*domain.Job, func(), error) {
	unlock, ok, err := p.lock(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &domain.Error{Kind: domain.ErrJobBusy, Message: "Job is already running.", JobID: id}
	}
	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		unlock()
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, &domain.Error{Kind: domain.ErrNotFound, Message: "Job not found.", JobID: id}
		}
		return nil, nil, err
	}
	if accept != nil && !accept(job) {
		unlock()
		return nil, nil, errSkipped
	}
	if job.Status != domain.JobStatusScheduled {
		status := domain.JobStatusScheduled
		if _, err := p.jobs.Update(ctx, id, domain.JobUpdate{Status: &status}); err != nil {
			unlock()
			return nil, nil, err
		}
		job.Status = status
		job.PublishedAt = nil
	}
	return job, unlock, nil
}

func (p *Pipeline) lock(ctx context.Context, id int64) (func(), bool, error) {
	if p.locker == nil {
		return func() {}, true, nil
	}
	unlock, ok, err := p.locker.TryLock(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (p *Pipeline) run(ctx context.Context, job *domain.Job, params Params, publish bool) (*Result, error) {
	started := p.now()
	defer func() { p.metrics.Time(metrics.GenerateLatency, p.now().Sub(started)) }()

	logs := append([]domain.LogEntry(nil), job.Logs...)
	logs = append(logs, domain.LogEntry{Time: p.now().UTC(), Source: domain.LogSourcePipeline, Message: "run started"})

	gc := p.generationContext(job.Subject, params)
	payload, warnings, perr := p.generate(ctx, gc)
	for _, w := range warnings {
		logs = append(logs, domain.LogEntry{Time: p.now().UTC(), Source: domain.LogSourceSanitizer, Message: w})
	}
	if perr != nil {
		logs = append(logs, domain.LogEntry{
			Time:      p.now().UTC(),
			Source:    domain.LogSourceProvider,
			Message:   perr.Message,
			ErrorCode: perr.Code,
			Meta:      providerLogMeta(perr),
		})
		p.failJob(ctx, job.ID, logs)
		p.logger.Warn().Int64("job_id", job.ID).Str("provider", perr.Provider).Str("code", perr.Code).Msg("pipeline: generation failed")
		return nil, &domain.Error{Kind: domain.ErrGenerationFailed, Message: "Content generation failed.", JobID: job.ID, Provider: perr}
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = htmltext.TrimWords(job.Subject, titleWords)
	}
	content := assembleContent(payload)
	excerpt := strings.TrimSpace(payload.Excerpt)
	if excerpt == "" {
		excerpt = htmltext.TrimWords(htmltext.StripTags(content), excerptWords)
	}

	postID, err := p.posts.Create(ctx, domain.PostDraft{
		Title:   title,
		Content: content,
		Excerpt: excerpt,
		Status:  domain.PostStatusDraft,
	})
	if err != nil {
		logs = append(logs, domain.LogEntry{
			Time:      p.now().UTC(),
			Source:    domain.LogSourcePostStore,
			Message:   htmltext.Snippet(err.Error(), 300),
			ErrorCode: domain.Code(domain.ErrPostInsertFailed),
		})
		p.failJob(ctx, job.ID, logs)
		p.logger.Error().Err(err).Int64("job_id", job.ID).Msg("pipeline: post insert failed")
		return nil, &domain.Error{Kind: domain.ErrPostInsertFailed, Message: "Could not create post.", JobID: job.ID, Err: err}
	}

	p.assignTerms(ctx, postID, domain.TaxonomyCategory, p.settings.Content.TargetCategories)
	p.assignTerms(ctx, postID, domain.TaxonomyTag, p.settings.Content.TargetTags)

	diag := domain.ImageDiagnostics{Errors: []domain.ImageFailure{}}
	rec := &recorder{now: p.now, logs: logs, diag: &diag}

	p.applyFeaturedImage(ctx, postID, title, payload, rec)
	p.applySEOMeta(ctx, postID, title, payload, rec)
	content = p.applyInlineImages(ctx, postID, content, payload.InlineImages, rec)

	scored := content
	if post, err := p.posts.Get(ctx, postID); err == nil && post.Content != "" {
		scored = post.Content
	}
	score := scoring.Score(scoring.Input{
		Title:         title,
		Content:       scored,
		Keywords:      gc.Keywords,
		InternalLinks: len(payload.InternalLinks),
		ExternalLinks: len(payload.ExternalLinks),
	})

	if len(payload.SchemaJSONLD) > 0 {
		if err := p.posts.SetMeta(ctx, postID, MetaSchema, string(payload.SchemaJSONLD)); err != nil {
			p.logger.Warn().Err(err).Int64("post_id", postID).Msg("pipeline: schema meta not stored")
		}
	}

	guardrails := p.evaluateGuardrails(score, title, content, diag)
	postStatus := domain.PostStatusDraft
	if publish && !p.settings.Publish.DraftOnly && len(guardrails) == 0 {
		publishStatus := domain.PostStatusPublish
		if err := p.posts.Update(ctx, postID, domain.PostUpdate{Status: &publishStatus}); err != nil {
			p.logger.Error().Err(err).Int64("post_id", postID).Msg("pipeline: publish failed")
			rec.log(domain.LogEntry{Source: domain.LogSourcePostStore, Message: "Post could not be published."})
		} else {
			postStatus = publishStatus
		}
	}
	if len(guardrails) > 0 {
		p.metrics.Increment(metrics.GuardrailTripped)
		rec.log(domain.LogEntry{
			Source:  domain.LogSourceGuardrail,
			Message: "Held as draft: " + strings.Join(guardrails, ", "),
			Meta:    map[string]any{"reasons": guardrails},
		})
	}

	now := p.now().UTC()
	jobStatus := domain.JobStatusGenerated
	update := domain.JobUpdate{
		Status:      &jobStatus,
		GeneratedAt: &now,
		PostID:      &postID,
		Score:       &score,
		Images:      &diag,
		Logs:        rec.logs,
	}
	if postStatus == domain.PostStatusPublish {
		jobStatus = domain.JobStatusPublished
		update.PublishedAt = &now
	}
	if _, err := p.jobs.Update(ctx, job.ID, update); err != nil {
		p.logger.Error().Err(err).Int64("job_id", job.ID).Msg("pipeline: job update failed")
	}

	p.metrics.Increment(metrics.JobsGenerated)
	if jobStatus == domain.JobStatusPublished {
		p.metrics.Increment(metrics.JobsPublished)
	}
	p.logger.Info().
		Int64("job_id", job.ID).
		Int64("post_id", postID).
		Str("status", string(postStatus)).
		Int("score", score.Total).
		Strs("guardrails", guardrails).
		Msg("pipeline: job generated")

	return &Result{
		JobID:      job.ID,
		PostID:     postID,
		PostStatus: postStatus,
		JobStatus:  jobStatus,
		Score:      score,
		Images:     diag,
		Guardrails: guardrails,
		Warnings:   payload.Warnings,
	}, nil
}

// generationContext merges request keywords with the configured defaults.
func (p *Pipeline) generationContext(subject string, params Params) domain.GenerationContext {
	primary := strings.TrimSpace(params.PrimaryKeyword)
	if primary == "" {
		primary = p.settings.Content.KeywordPrimary
	}
	secondary := params.SecondaryKeywords
	if len(secondary) == 0 {
		secondary = p.settings.Content.KeywordSecondary
	}
	return domain.GenerationContext{
		Subject:  subject,
		Keywords: mergeKeywords(primary, secondary),
		Audience: coalesce(params.Audience, p.settings.Content.Audience),
		Intent:   coalesce(params.Intent, p.settings.Content.Intent),
		Tone:     p.settings.Content.Tone,
		Voice:    p.settings.Content.Voice,
		WordRange: domain.WordRange{
			Min: p.settings.Content.WordCountMin,
			Max: p.settings.Content.WordCountMax,
		},
	}
}

// mergeKeywords drops empty entries and case-insensitive duplicates while
// keeping the primary keyword first.
func mergeKeywords(primary string, secondary []string) []string {
	fold := cases.Fold()
	seen := map[string]struct{}{}
	out := []string{}
	for _, k := range append([]string{primary}, secondary...) {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := fold.String(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

// generate walks the provider chain and returns the first payload with
// content. The last provider failure is returned when none succeeds.
func (p *Pipeline) generate(ctx context.Context, gc domain.GenerationContext) (*domain.GenerationPayload, []string, *domain.ProviderError) {
	if len(p.providers) == 0 {
		return nil, nil, &domain.ProviderError{
			Provider: "none",
			Code:     domain.ProviderCodeNotConfigured,
			Message:  "No generation provider is configured.",
		}
	}
	var last *domain.ProviderError
	for _, provider := range p.providers {
		payload, err := provider.Generate(ctx, gc)
		if err != nil {
			var perr *domain.ProviderError
			if !errors.As(err, &perr) {
				perr = &domain.ProviderError{Provider: provider.Name(), Code: domain.ProviderCodeHTTPError, Message: htmltext.Snippet(err.Error(), 400)}
			}
			last = perr
			p.logger.Debug().Str("provider", provider.Name()).Str("code", perr.Code).Msg("pipeline: provider failed, trying next")
			continue
		}
		if payload == nil || strings.TrimSpace(payload.Content) == "" {
			last = &domain.ProviderError{
				Provider: provider.Name(),
				Code:     codeInvalidPayload,
				Message:  "Generation returned an invalid payload.",
			}
			continue
		}
		return payload, payload.Warnings, nil
	}
	return nil, nil, last
}

const codeInvalidPayload = "invalid_generation_payload"

func providerLogMeta(perr *domain.ProviderError) map[string]any {
	meta := map[string]any{"provider": perr.Provider}
	for k, v := range perr.Meta {
		meta[k] = v
	}
	return meta
}

func (p *Pipeline) failJob(ctx context.Context, id int64, logs []domain.LogEntry) {
	status := domain.JobStatusError
	if _, err := p.jobs.Update(ctx, id, domain.JobUpdate{Status: &status, Logs: logs}); err != nil {
		p.logger.Error().Err(err).Int64("job_id", id).Msg("pipeline: job update failed")
	}
	p.metrics.Increment(metrics.JobsFailed)
}

func (p *Pipeline) assignTerms(ctx context.Context, postID int64, taxonomy string, values []string) {
	if len(values) == 0 {
		return
	}
	if err := p.posts.SetTerms(ctx, postID, taxonomy, values); err != nil {
		p.logger.Warn().Err(err).Int64("post_id", postID).Str("taxonomy", taxonomy).Msg("pipeline: terms not assigned")
	}
}

// recorder collects image diagnostics and log entries for one run.
type recorder struct {
	now  func() time.Time
	logs []domain.LogEntry
	diag *domain.ImageDiagnostics
}

func (r *recorder) log(e domain.LogEntry) {
	if e.Time.IsZero() {
		e.Time = r.now().UTC()
	}
	r.logs = append(r.logs, e)
}

// imageFailure records f in the diagnostics and, when logged, as an
// image_service entry.
func (r *recorder) imageFailure(f domain.ImageFailure, logged bool) {
	r.diag.Errors = append(r.diag.Errors, f)
	if !logged {
		return
	}
	fp := f.Fingerprint
	r.log(domain.LogEntry{
		Source:     domain.LogSourceImage,
		Stage:      f.Stage,
		Message:    f.Message,
		ErrorCode:  f.Code,
		ErrorClass: f.ErrorClass,
		SourceMeta: &fp,
	})
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
