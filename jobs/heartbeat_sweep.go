package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/fleetgate/fleetgate/internal/jobs"
)

// HeartbeatSweeper marks devices inactive after a silence window. Trackers
// that stop reporting are usually unplugged or out of coverage; flipping the
// status keeps listings honest without deleting anything.
type HeartbeatSweeper struct {
	pool    *pgxpool.Pool
	silence time.Duration
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewHeartbeatSweeper constructs the sweep handler.
func NewHeartbeatSweeper(pool *pgxpool.Pool, silence time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *HeartbeatSweeper {
	if silence <= 0 {
		silence = 24 * time.Hour
	}
	return &HeartbeatSweeper{pool: pool, silence: silence, logger: logger, metrics: metrics}
}

// Handle processes TaskHeartbeatSweep tasks.
func (s *HeartbeatSweeper) Handle(ctx context.Context, t *asynq.Task) error {
	var payload HeartbeatSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track("heartbeat_sweep")
	cutoff := time.Now().Add(-s.silence)
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices SET status = 'INACTIVE', updated_at = NOW()
		WHERE status = 'ACTIVE' AND last_heartbeat IS NOT NULL AND last_heartbeat < $1`, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("heartbeat sweep",
			slog.Int64("marked_inactive", tag.RowsAffected()),
			slog.Time("cutoff", cutoff),
		)
	}
	return tracker.End(nil)
}
