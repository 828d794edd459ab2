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

// AuditPurger deletes audit rows older than the retention window.
type AuditPurger struct {
	pool      *pgxpool.Pool
	retention time.Duration
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewAuditPurger constructs the purge handler.
func NewAuditPurger(pool *pgxpool.Pool, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPurger {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &AuditPurger{pool: pool, retention: retention, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditPurge tasks.
func (p *AuditPurger) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := p.metrics.Track("audit_purge")
	cutoff := time.Now().Add(-p.retention)
	tag, err := p.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	p.logger.Info("audit purge",
		slog.Int64("deleted", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return tracker.End(nil)
}
