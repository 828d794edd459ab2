package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPurge trims audit rows past the retention window.
	TaskAuditPurge = "audit:purge"
	// TaskHeartbeatSweep marks silent devices inactive.
	TaskHeartbeatSweep = "devices:heartbeat_sweep"
)

// AuditPurgePayload carries scheduling metadata for the purge run.
type AuditPurgePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewAuditPurgeTask constructs an Asynq task for audit retention.
func NewAuditPurgeTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPurgePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, body, asynq.Queue(QueueDefault)), nil
}

// HeartbeatSweepPayload carries scheduling metadata for the sweep run.
type HeartbeatSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewHeartbeatSweepTask constructs an Asynq task for the heartbeat sweep.
func NewHeartbeatSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(HeartbeatSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHeartbeatSweep, body, asynq.Queue(QueueDefault)), nil
}
