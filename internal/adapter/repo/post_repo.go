package repo

import (
	"context"
	"fmt"
	"strings"

	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

// PostRepositoryPG implements domain.PostRepository.
type PostRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewPostRepository(sql infra.SQLExecutor) *PostRepositoryPG {
	return &PostRepositoryPG{sql: sql}
}

// Create inserts a post and returns its id.
func (r *PostRepositoryPG) Create(ctx context.Context, draft domain.PostDraft) (int64, error) {
	status := draft.Status
	if status == "" {
		status = domain.PostStatusDraft
	}
	if strings.TrimSpace(draft.Title) == "" && strings.TrimSpace(draft.Content) == "" {
		return 0, fmt.Errorf("create post: %w", domain.ErrPostInsertFailed)
	}
	var id int64
	if err := r.sql.QueryRow(ctx, sqlinline.QInsertPost, draft.Title, draft.Content, draft.Excerpt, string(status)).Scan(&id); err != nil {
		return 0, fmt.Errorf("create post: %w", err)
	}
	return id, nil
}

// Update changes the set fields of a post.
func (r *PostRepositoryPG) Update(ctx context.Context, id int64, u domain.PostUpdate) error {
	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdatePost, id, u.Title, u.Content, u.Excerpt, status)
	if err != nil {
		return fmt.Errorf("update post %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches a post by id.
func (r *PostRepositoryPG) Get(ctx context.Context, id int64) (*domain.Post, error) {
	var (
		post   domain.Post
		status string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectPost, id).Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.Excerpt,
		&status,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	post.Status = domain.PostStatus(status)
	return &post, nil
}

// SetTerms replaces the post's terms in taxonomy with values.
func (r *PostRepositoryPG) SetTerms(ctx context.Context, id int64, taxonomy string, values []string) error {
	terms := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		terms = append(terms, v)
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QDeletePostTerms, id, taxonomy); err != nil {
		return fmt.Errorf("clear %s terms for post %d: %w", taxonomy, id, err)
	}
	if len(terms) == 0 {
		return nil
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertPostTerms, id, taxonomy, terms); err != nil {
		return fmt.Errorf("set %s terms for post %d: %w", taxonomy, id, err)
	}
	return nil
}

// SetMeta upserts one meta value.
func (r *PostRepositoryPG) SetMeta(ctx context.Context, id int64, key, value string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertPostMeta, id, key, value); err != nil {
		return fmt.Errorf("set meta %s for post %d: %w", key, id, err)
	}
	return nil
}

// Meta returns a meta value, or "" when unset.
func (r *PostRepositoryPG) Meta(ctx context.Context, id int64, key string) (string, error) {
	var value string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectPostMeta, id, key).Scan(&value); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("get meta %s for post %d: %w", key, id, err)
	}
	return value, nil
}

var _ domain.PostRepository = (*PostRepositoryPG)(nil)
