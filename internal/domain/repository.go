package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Insert(ctx context.Context, job *Job) (int64, error)
	Update(ctx context.Context, id int64, update JobUpdate) (bool, error)
	Get(ctx context.Context, id int64) (*Job, error)
	ListRecent(ctx context.Context, limit int) ([]Job, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

// JobLocker serialises work on a single job id.
type JobLocker interface {
	TryLock(ctx context.Context, id int64) (unlock func(), ok bool, err error)
}

// PostRepository stores articles, their terms and metadata.
type PostRepository interface {
	Create(ctx context.Context, draft PostDraft) (int64, error)
	Update(ctx context.Context, id int64, update PostUpdate) error
	Get(ctx context.Context, id int64) (*Post, error)
	SetTerms(ctx context.Context, id int64, taxonomy string, values []string) error
	SetMeta(ctx context.Context, id int64, key, value string) error
	Meta(ctx context.Context, id int64, key string) (string, error)
}

// MediaRepository stores verified image bytes.
type MediaRepository interface {
	StoreBytes(ctx context.Context, file MediaFile, attachTo int64) (int64, error)
	SetAltText(ctx context.Context, id int64, text string) error
	URL(ctx context.Context, id int64, size string) (string, error)
}

// GenerationProvider produces an article payload for a context.
type GenerationProvider interface {
	Name() string
	Generate(ctx context.Context, gc GenerationContext) (*GenerationPayload, error)
}
