package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	jobmetrics "github.com/odyssey-erp/odyssey-authz/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Seeder applies the built-in grant profile of a role.
type Seeder interface {
	SeedDefaults(ctx context.Context, role authz.Role) (authz.BatchResult, error)
}

// SeedDefaultsJob writes the default matrix of one role in the background.
type SeedDefaultsJob struct {
	Service Seeder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSeedDefaultsJob constructs the job handler.
func NewSeedDefaultsJob(service Seeder, logger *slog.Logger, metrics *jobmetrics.Metrics) *SeedDefaultsJob {
	return &SeedDefaultsJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the seeding batch. Partially applied batches are retried;
// every write is an idempotent upsert.
func (j *SeedDefaultsJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("seed defaults: dependencies not configured")
	}
	var payload SeedDefaultsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if !payload.Role.Valid() {
		j.log().Warn("seed defaults: invalid role", slog.String("role", string(payload.Role)))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSeedRoleDefaults)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	result, err := j.Service.SeedDefaults(ctx, payload.Role)
	if err != nil {
		j.log().Error("seed defaults", slog.String("role", string(payload.Role)), slog.Any("error", err))
		return err
	}
	j.metrics().AddSeededCells(string(payload.Role), result.Applied, result.Failed)
	if err := result.Err(); err != nil {
		j.log().Warn("seed defaults partially applied",
			slog.String("role", string(payload.Role)),
			slog.String("batch_id", payload.BatchID.String()),
			slog.Int("applied", result.Applied),
			slog.Int("failed", result.Failed))
		return err
	}
	j.log().Info("seeded role defaults",
		slog.String("role", string(payload.Role)),
		slog.String("batch_id", payload.BatchID.String()),
		slog.Int("cells", result.Applied),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *SeedDefaultsJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SeedDefaultsJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSeedRoleDefaults))
	}
	return slog.Default().With(slog.String("job", TaskSeedRoleDefaults))
}
