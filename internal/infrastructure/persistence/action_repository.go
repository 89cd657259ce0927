package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
)

// ActionRepository is the MySQL implementation of
// ports.ActionRepository. Decisions and escalations are guarded
// updates: the WHERE clause re-checks the pending status, so the first
// writer wins and everyone else observes rows-affected = 0.
type ActionRepository struct {
	db *database.Connection
}

// NewActionRepository creates a new ActionRepository
func NewActionRepository(db *database.Connection) *ActionRepository {
	return &ActionRepository{db: db}
}

const actionColumns = `id, instance_id, stage_order, step_order, stage_name, step_name,
	approval_type_key, approver_id, approver_name, status, comments, conditions,
	assigned_at, due_date, completed_at, decided_by,
	is_escalated, escalated_at, escalation_reason, is_overdue,
	created_at, updated_at`

// CreateAction inserts a new pending action
func (r *ActionRepository) CreateAction(ctx context.Context, act *models.ApprovalAction) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableApprovalAction, actionColumns)

	_, err := exec(ctx, r.db).ExecContext(ctx, query,
		act.ID, act.InstanceID, act.StageOrder, act.StepOrder, act.StageName, act.StepName,
		act.ApprovalTypeKey, act.ApproverID, act.ApproverName, act.Status, act.Comments, act.Conditions,
		act.AssignedAt, act.DueDate, act.CompletedAt, act.DecidedBy,
		act.IsEscalated, act.EscalatedAt, act.EscalationReason, act.IsOverdue,
		act.CreatedAt, act.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval action: %w", err)
	}
	return nil
}

// GetAction loads an action by ID, or nil when absent
func (r *ActionRepository) GetAction(ctx context.Context, actionID string) (*models.ApprovalAction, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", actionColumns, constants.TableApprovalAction)

	act, err := r.scanAction(exec(ctx, r.db).QueryRowContext(ctx, query, actionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load approval action %s: %w", actionID, err)
	}
	return act, nil
}

// ListByInstance returns every action of an instance in stage, step,
// creation order
func (r *ActionRepository) ListByInstance(ctx context.Context, instanceID string) ([]models.ApprovalAction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE instance_id = ?
		ORDER BY stage_order ASC, step_order ASC, created_at ASC
	`, actionColumns, constants.TableApprovalAction)

	return r.queryActions(ctx, query, instanceID)
}

// ListPendingByApprover returns the approver's open work items, oldest
// due date first
func (r *ActionRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]models.ApprovalAction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE approver_id = ? AND status = ?
		ORDER BY due_date ASC
	`, actionColumns, constants.TableApprovalAction)

	return r.queryActions(ctx, query, approverID, constants.ActionStatusPending)
}

// CompleteAction records a decision on a pending action. The WHERE
// clause re-checks both the pending status and the current assignee, so
// a decision by an approver the action was escalated away from matches
// zero rows. Returns false when the action was no longer pending or no
// longer assigned to the decider.
func (r *ActionRepository) CompleteAction(ctx context.Context, actionID string, upd models.DecisionUpdate) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, comments = ?, conditions = ?, decided_by = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND approver_id = ?
	`, constants.TableApprovalAction)

	result, err := exec(ctx, r.db).ExecContext(ctx, query,
		upd.Status, upd.Comments, upd.Conditions, upd.DecidedBy,
		upd.CompletedAt, time.Now().UTC(),
		actionID, constants.ActionStatusPending, upd.DecidedBy,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete action %s: %w", actionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListOverduePending returns pending actions past their due date
func (r *ActionRepository) ListOverduePending(ctx context.Context, now time.Time) ([]models.ApprovalAction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = ? AND due_date < ?
		ORDER BY due_date ASC
	`, actionColumns, constants.TableApprovalAction)

	return r.queryActions(ctx, query, constants.ActionStatusPending, now)
}

// Escalate reassigns a pending, not-yet-escalated action to the backup
// approver. The is_escalated guard makes repeated sweeps idempotent and
// serializes the sweeper against concurrent decisions.
func (r *ActionRepository) Escalate(ctx context.Context, actionID string, upd models.EscalationUpdate) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET approver_id = ?, approver_name = ?, is_escalated = 1,
			escalated_at = ?, escalation_reason = ?, due_date = ?, updated_at = ?
		WHERE id = ? AND status = ? AND is_escalated = 0
	`, constants.TableApprovalAction)

	result, err := exec(ctx, r.db).ExecContext(ctx, query,
		upd.BackupApproverID, upd.BackupApproverName,
		upd.EscalatedAt, upd.Reason, upd.NewDueDate, time.Now().UTC(),
		actionID, constants.ActionStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to escalate action %s: %w", actionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkOverdue flags a pending action that cannot be escalated
func (r *ActionRepository) MarkOverdue(ctx context.Context, actionID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET is_overdue = 1, updated_at = ?
		WHERE id = ? AND status = ?
	`, constants.TableApprovalAction)

	_, err := exec(ctx, r.db).ExecContext(ctx, query,
		time.Now().UTC(), actionID, constants.ActionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark action %s overdue: %w", actionID, err)
	}
	return nil
}

func (r *ActionRepository) queryActions(ctx context.Context, query string, args ...interface{}) ([]models.ApprovalAction, error) {
	rows, err := exec(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval actions: %w", err)
	}
	defer rows.Close()

	var actions []models.ApprovalAction
	for rows.Next() {
		act, err := r.scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval action: %w", err)
		}
		actions = append(actions, *act)
	}
	return actions, rows.Err()
}

func (r *ActionRepository) scanAction(row rowScanner) (*models.ApprovalAction, error) {
	var act models.ApprovalAction
	var comments, conditions, decidedBy, escalationReason sql.NullString
	var completedAt, escalatedAt sql.NullTime

	err := row.Scan(
		&act.ID, &act.InstanceID, &act.StageOrder, &act.StepOrder, &act.StageName, &act.StepName,
		&act.ApprovalTypeKey, &act.ApproverID, &act.ApproverName, &act.Status, &comments, &conditions,
		&act.AssignedAt, &act.DueDate, &completedAt, &decidedBy,
		&act.IsEscalated, &escalatedAt, &escalationReason, &act.IsOverdue,
		&act.CreatedAt, &act.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if comments.Valid {
		act.Comments = &comments.String
	}
	if conditions.Valid {
		act.Conditions = &conditions.String
	}
	if decidedBy.Valid {
		act.DecidedBy = &decidedBy.String
	}
	if escalationReason.Valid {
		act.EscalationReason = &escalationReason.String
	}
	if completedAt.Valid {
		act.CompletedAt = &completedAt.Time
	}
	if escalatedAt.Valid {
		act.EscalatedAt = &escalatedAt.Time
	}
	return &act, nil
}
