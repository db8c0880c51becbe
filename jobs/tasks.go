package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSeedRoleDefaults seeds the built-in matrix for one role.
	TaskSeedRoleDefaults = "authz:seed_defaults"
	// TaskMatrixAudit counts catalog cells left unset per role.
	TaskMatrixAudit = "authz:matrix_audit"
)

// SeedDefaultsPayload identifies one seeding batch.
type SeedDefaultsPayload struct {
	Role    authz.Role `json:"role"`
	BatchID uuid.UUID  `json:"batch_id"`
}

// NewSeedDefaultsTask constructs a seeding task. The batch id doubles as the
// task id so a batch is never queued twice.
func NewSeedDefaultsTask(role authz.Role) (*asynq.Task, SeedDefaultsPayload, error) {
	if !role.Valid() {
		return nil, SeedDefaultsPayload{}, fmt.Errorf("%w: role %q", authz.ErrInvalidGrantTuple, role)
	}
	payload := SeedDefaultsPayload{Role: role, BatchID: uuid.New()}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, SeedDefaultsPayload{}, err
	}
	task := asynq.NewTask(TaskSeedRoleDefaults, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(payload.BatchID.String()),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	)
	return task, payload, nil
}

// MatrixAuditPayload carries scheduling metadata.
type MatrixAuditPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewMatrixAuditTask constructs a matrix audit task.
func NewMatrixAuditTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MatrixAuditPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMatrixAudit, body, asynq.Queue(QueueDefault)), nil
}
