package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RoleClaimPurger deletes role claims inactive for longer than retention.
type RoleClaimPurger interface {
	PurgeInactiveRoleClaims(ctx context.Context, retention time.Duration) (int64, error)
}

// RoleClaimsPurgeJob removes soft-deleted role claims past their retention.
type RoleClaimsPurgeJob struct {
	Purger    RoleClaimPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewRoleClaimsPurgeJob wires dependencies for the purge handler.
func NewRoleClaimsPurgeJob(purger RoleClaimPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *RoleClaimsPurgeJob {
	return &RoleClaimsPurgeJob{Purger: purger, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes role claim purge tasks.
func (j *RoleClaimsPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Purger == nil {
		return errors.New("role claims purge: handler not configured")
	}
	var payload RoleClaimsPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention(j.Retention)

	tracker := j.metrics().Track(TaskRoleClaimsPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("retention", retention))
	start := time.Now()
	purged, err := j.Purger.PurgeInactiveRoleClaims(ctx, retention)
	if err != nil {
		logger.Error("purge role claims", slog.Any("error", err))
		return err
	}
	j.metrics().AddPurged("role_claims", purged)
	logger.Info("purged role claims", slog.Int64("rows", purged), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *RoleClaimsPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RoleClaimsPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
