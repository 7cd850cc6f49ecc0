package repo

import (
	"context"
	"fmt"

	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

// JobLockerPG serialises runs of the same job with session advisory locks.
// Each held lock pins one pooled connection until unlock is called.
type JobLockerPG struct {
	acquire func(ctx context.Context) (infra.SQLExecutor, func(), error)
	logger  *infra.Logger
}

func NewJobLocker(runner *infra.SQLRunner, logger *infra.Logger) *JobLockerPG {
	return &JobLockerPG{
		acquire: func(ctx context.Context) (infra.SQLExecutor, func(), error) {
			conn, release, err := runner.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			return conn, release, nil
		},
		logger: infra.LoggerOrDiscard(logger),
	}
}

// TryLock takes the lock for id without waiting. ok is false when another
// session holds it.
func (l *JobLockerPG) TryLock(ctx context.Context, id int64) (func(), bool, error) {
	conn, release, err := l.acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, sqlinline.QTryJobLock, id).Scan(&locked); err != nil {
		release()
		return nil, false, fmt.Errorf("lock job %d: %w", id, err)
	}
	if !locked {
		release()
		return nil, false, nil
	}
	unlock := func() {
		var released bool
		if err := conn.QueryRow(context.Background(), sqlinline.QReleaseJobLock, id).Scan(&released); err != nil || !released {
			l.logger.Warn().Err(err).Int64("job_id", id).Msg("repo: advisory unlock failed")
		}
		release()
	}
	return unlock, true, nil
}

var _ domain.JobLocker = (*JobLockerPG)(nil)
