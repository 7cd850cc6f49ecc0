package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

// FileStore is the byte store behind media rows.
type FileStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// MediaRepositoryPG stores media bytes in a FileStore and their metadata in
// PostgreSQL.
type MediaRepositoryPG struct {
	sql   infra.SQLExecutor
	files FileStore
	now   func() time.Time
}

func NewMediaRepository(sql infra.SQLExecutor, files FileStore) *MediaRepositoryPG {
	return &MediaRepositoryPG{sql: sql, files: files, now: time.Now}
}

// StoreBytes writes file under media/YYYY/MM and records it, attached to
// attachTo when non-zero.
func (r *MediaRepositoryPG) StoreBytes(ctx context.Context, file domain.MediaFile, attachTo int64) (int64, error) {
	now := r.now().UTC()
	key := fmt.Sprintf("media/%04d/%02d/%s-%s", now.Year(), int(now.Month()), uuid.NewString()[:8], file.Name)
	key, err := r.files.Write(ctx, key, file.Data)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.sql.QueryRow(ctx, sqlinline.QInsertMedia, attachTo, key, file.Name, file.MIME, int64(len(file.Data))).Scan(&id)
	if err != nil {
		_ = r.files.Delete(ctx, key)
		return 0, fmt.Errorf("record media: %w", err)
	}
	return id, nil
}

// SetAltText sets the attachment's alt text.
func (r *MediaRepositoryPG) SetAltText(ctx context.Context, id int64, text string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateMediaAlt, id, text)
	if err != nil {
		return fmt.Errorf("set alt text for media %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// URL returns the public address of the attachment. Only the original size
// is stored, so size is ignored.
func (r *MediaRepositoryPG) URL(ctx context.Context, id int64, size string) (string, error) {
	var key string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectMediaKey, id).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("get media %d: %w", id, err)
	}
	return r.files.URL(key), nil
}

var _ domain.MediaRepository = (*MediaRepositoryPG)(nil)
