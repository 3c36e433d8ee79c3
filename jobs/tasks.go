package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleClaimsPurge permanently deletes long soft-deleted role claims.
	TaskRoleClaimsPurge = "rbac:role_claims:purge"
)

// RoleClaimsPurgePayload overrides the configured retention when set.
type RoleClaimsPurgePayload struct {
	RetentionSeconds int64 `json:"retention_seconds,omitempty"`
}

// Retention returns the payload retention, or fallback when unset.
func (p RoleClaimsPurgePayload) Retention(fallback time.Duration) time.Duration {
	if p.RetentionSeconds <= 0 {
		return fallback
	}
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewRoleClaimsPurgeTask constructs an Asynq task.
func NewRoleClaimsPurgeTask(retention time.Duration) (*asynq.Task, error) {
	payload := RoleClaimsPurgePayload{RetentionSeconds: int64(retention / time.Second)}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleClaimsPurge, data), nil
}
