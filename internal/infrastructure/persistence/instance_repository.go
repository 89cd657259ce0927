package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
	apperrors "github.com/procureflow/backend/pkg/errors"
)

// MySQL duplicate entry.
const errDupEntry = 1062

// InstanceRepository is the MySQL implementation of
// ports.InstanceRepository. The template snapshot is stored as a JSON
// column on the instance row, so a single read yields everything the
// progression engine needs.
type InstanceRepository struct {
	db *database.Connection
}

// NewInstanceRepository creates a new InstanceRepository
func NewInstanceRepository(db *database.Connection) *InstanceRepository {
	return &InstanceRepository{db: db}
}

const instanceColumns = `id, request_id, template_id, entity_type, entity_id, amount_cents,
	snapshot, current_stage_order, current_step_order, overall_status,
	submitted_at, completed_at, created_at, updated_at, created_by`

// CreateInstance inserts a new approval instance with its frozen
// snapshot. The unique key on request_id makes concurrent submissions
// of the same request collide here; the loser gets AlreadySubmitted.
func (r *InstanceRepository) CreateInstance(ctx context.Context, inst *models.ApprovalInstance) error {
	snapshot, err := json.Marshal(inst.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode instance snapshot: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableApprovalInstance, instanceColumns)

	_, err = exec(ctx, r.db).ExecContext(ctx, query,
		inst.ID, inst.RequestID, inst.TemplateID,
		inst.Entity.Type, inst.Entity.ID, inst.AmountCents,
		string(snapshot), inst.CurrentStageOrder, inst.CurrentStepOrder, inst.OverallStatus,
		inst.SubmittedAt, inst.CompletedAt, inst.CreatedAt, inst.UpdatedAt, inst.CreatedBy,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errDupEntry {
			return apperrors.NewAlreadySubmittedError(inst.RequestID, "")
		}
		return fmt.Errorf("failed to insert approval instance: %w", err)
	}
	return nil
}

// GetInstance loads an instance by ID, or nil when absent
func (r *InstanceRepository) GetInstance(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", instanceColumns, constants.TableApprovalInstance)

	inst, err := r.scanInstance(exec(ctx, r.db).QueryRowContext(ctx, query, instanceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load approval instance %s: %w", instanceID, err)
	}
	return inst, nil
}

// GetInstanceForUpdate loads an instance with a row lock, or nil when
// absent. Callers inside a transaction take this lock before evaluating
// stage completion, so decisions on the same instance serialize and
// each one observes the previous decision's committed actions.
func (r *InstanceRepository) GetInstanceForUpdate(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? FOR UPDATE", instanceColumns, constants.TableApprovalInstance)

	inst, err := r.scanInstance(exec(ctx, r.db).QueryRowContext(ctx, query, instanceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock approval instance %s: %w", instanceID, err)
	}
	return inst, nil
}

// FindLiveByRequest returns the instance for a request, or nil. The
// unique key on request_id guarantees at most one row.
func (r *InstanceRepository) FindLiveByRequest(ctx context.Context, requestID string) (*models.ApprovalInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE request_id = ? LIMIT 1", instanceColumns, constants.TableApprovalInstance)

	inst, err := r.scanInstance(exec(ctx, r.db).QueryRowContext(ctx, query, requestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find instance for request %s: %w", requestID, err)
	}
	return inst, nil
}

// AdvanceCursor moves the instance cursor forward. The WHERE clause
// re-checks the expected cursor position and a live status, so a
// concurrent writer that already advanced the instance makes this a
// no-op returning false.
func (r *InstanceRepository) AdvanceCursor(ctx context.Context, instanceID string, expectedStage, expectedStep int, upd models.CursorUpdate) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET current_stage_order = ?, current_step_order = ?, overall_status = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ? AND current_stage_order = ? AND current_step_order = ?
			AND overall_status = ?
	`, constants.TableApprovalInstance)

	result, err := exec(ctx, r.db).ExecContext(ctx, query,
		upd.NewStageOrder, upd.NewStepOrder, upd.NewStatus,
		upd.CompletedAt, time.Now().UTC(),
		instanceID, expectedStage, expectedStep,
		constants.InstanceStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance instance %s: %w", instanceID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *InstanceRepository) scanInstance(row rowScanner) (*models.ApprovalInstance, error) {
	var inst models.ApprovalInstance
	var snapshot string
	var submittedAt, completedAt sql.NullTime
	var createdBy sql.NullString

	err := row.Scan(
		&inst.ID, &inst.RequestID, &inst.TemplateID,
		&inst.Entity.Type, &inst.Entity.ID, &inst.AmountCents,
		&snapshot, &inst.CurrentStageOrder, &inst.CurrentStepOrder, &inst.OverallStatus,
		&submittedAt, &completedAt, &inst.CreatedAt, &inst.UpdatedAt, &createdBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(snapshot), &inst.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode instance snapshot: %w", err)
	}

	if submittedAt.Valid {
		inst.SubmittedAt = &submittedAt.Time
	}
	if completedAt.Valid {
		inst.CompletedAt = &completedAt.Time
	}
	inst.CreatedBy = createdBy.String
	return &inst, nil
}
