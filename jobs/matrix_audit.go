package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	jobmetrics "github.com/odyssey-erp/odyssey-authz/internal/jobs"
)

// MatrixReader exposes the full per-role matrix.
type MatrixReader interface {
	Matrix(ctx context.Context, role authz.Role) ([]authz.MatrixCell, error)
}

// MatrixAuditJob reports unset cells per role. Unset cells are denied at
// evaluation time, so a growing count usually means a catalog addition that
// no one has granted yet.
type MatrixAuditJob struct {
	Service MatrixReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMatrixAuditJob constructs the job handler.
func NewMatrixAuditJob(service MatrixReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *MatrixAuditJob {
	return &MatrixAuditJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle walks every role. Bypass roles are skipped since the matrix never
// applies to them.
func (j *MatrixAuditJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("matrix audit: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskMatrixAudit)
	defer func() {
		err = tracker.End(err)
	}()

	total := 0
	for _, info := range authz.Roles() {
		if info.ID.Bypass() {
			continue
		}
		cells, err := j.Service.Matrix(ctx, info.ID)
		if err != nil {
			j.log().Error("matrix audit", slog.String("role", string(info.ID)), slog.Any("error", err))
			return err
		}
		unset := 0
		for _, cell := range cells {
			if cell.State == authz.GrantUnset {
				unset++
			}
		}
		j.metrics().SetUnsetCells(string(info.ID), unset)
		total += unset
	}
	j.log().Info("matrix audit complete", slog.Int("unset_cells", total))
	return nil
}

func (j *MatrixAuditJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MatrixAuditJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMatrixAudit))
	}
	return slog.Default().With(slog.String("job", TaskMatrixAudit))
}
