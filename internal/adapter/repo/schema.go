package repo

import (
	"context"
	"fmt"

	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

// Migrate creates any missing engine tables and indexes.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QCreateSchema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
