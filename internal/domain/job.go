package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusGenerated JobStatus = "generated"
	JobStatusPublished JobStatus = "published"
	JobStatusError     JobStatus = "error"
)

// Valid reports whether s is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusScheduled, JobStatusGenerated, JobStatusPublished, JobStatusError:
		return true
	}
	return false
}

// Log sources recorded on job entries.
const (
	LogSourcePipeline  = "generate_once"
	LogSourceProvider  = "llm_provider"
	LogSourceImage     = "image_service"
	LogSourceSanitizer = "image_sanitizer"
	LogSourcePostStore = "post_store"
	LogSourceGuardrail = "guardrails"
	LogSourceApprove   = "approve_job"
)

// Job is one tracked generation/publish attempt and its outcome history.
type Job struct {
	ID          int64             `json:"id"`
	Subject     string            `json:"subject"`
	Status      JobStatus         `json:"status"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	GeneratedAt *time.Time        `json:"generated_at,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	PostID      *int64            `json:"post_id,omitempty"`
	Score       *ScoreBreakdown   `json:"score,omitempty"`
	Images      *ImageDiagnostics `json:"images,omitempty"`
	Logs        []LogEntry        `json:"logs"`
}

// LogEntry is one structured audit record attached to a job.
type LogEntry struct {
	Time       time.Time          `json:"time"`
	Source     string             `json:"source"`
	Stage      string             `json:"stage,omitempty"`
	Message    string             `json:"message,omitempty"`
	ErrorCode  string             `json:"error_code,omitempty"`
	ErrorClass ErrorClass         `json:"error_class,omitempty"`
	SourceMeta *SourceFingerprint `json:"source_fingerprint,omitempty"`
	Meta       map[string]any     `json:"meta,omitempty"`
}

// JobUpdate carries a partial update. Nil fields are left unchanged.
type JobUpdate struct {
	Status      *JobStatus
	GeneratedAt *time.Time
	PublishedAt *time.Time
	PostID      *int64
	Score       *ScoreBreakdown
	Images      *ImageDiagnostics
	Logs        []LogEntry
}

// Apply copies the set fields onto j. Moving the status away from published
// clears PublishedAt unless the update sets it.
func (u JobUpdate) Apply(j *Job) {
	if u.Status != nil {
		j.Status = *u.Status
		if *u.Status != JobStatusPublished && u.PublishedAt == nil {
			j.PublishedAt = nil
		}
	}
	if u.GeneratedAt != nil {
		j.GeneratedAt = u.GeneratedAt
	}
	if u.PublishedAt != nil {
		j.PublishedAt = u.PublishedAt
	}
	if u.PostID != nil {
		j.PostID = u.PostID
	}
	if u.Score != nil {
		j.Score = u.Score
	}
	if u.Images != nil {
		j.Images = u.Images
	}
	if u.Logs != nil {
		j.Logs = u.Logs
	}
}

// Empty reports whether the update would change nothing.
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.GeneratedAt == nil && u.PublishedAt == nil &&
		u.PostID == nil && u.Score == nil && u.Images == nil && u.Logs == nil
}
