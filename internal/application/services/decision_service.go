package services

import (
	"context"
	"fmt"
	"log"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
)

// DecisionService records approver decisions. A decision is an
// append-only fact: once an action leaves pending it never changes, and
// every decision immediately triggers progression of its instance
// inside the same transaction.
type DecisionService struct {
	actions     ports.ActionRepository
	instances   ports.InstanceRepository
	progression *ProgressionService
	txRunner    ports.TxRunner
	clock       ports.Clock
}

// NewDecisionService creates a new DecisionService
func NewDecisionService(actions ports.ActionRepository, instances ports.InstanceRepository, progression *ProgressionService, txRunner ports.TxRunner, clock ports.Clock) *DecisionService {
	return &DecisionService{
		actions:     actions,
		instances:   instances,
		progression: progression,
		txRunner:    txRunner,
		clock:       clock,
	}
}

// DecisionRequest is the payload for deciding a pending action
type DecisionRequest struct {
	ActionID   string  `json:"action_id"`
	Decision   string  `json:"decision" binding:"required"` // approved, conditional, or refused
	Comments   *string `json:"comments"`
	Conditions *string `json:"conditions"`
}

// RecordDecision applies one approver decision and advances the
// instance. Only the action's currently assigned approver may decide
// it; after escalation that is the backup.
func (s *DecisionService) RecordDecision(ctx context.Context, req *DecisionRequest, user *auth.UserSession) (*models.ApprovalAction, error) {
	switch req.Decision {
	case constants.ActionStatusApproved, constants.ActionStatusConditional, constants.ActionStatusRefused:
	default:
		return nil, errors.NewValidationError("decision", fmt.Sprintf("unknown decision %q", req.Decision))
	}
	if req.Decision == constants.ActionStatusConditional && (req.Conditions == nil || *req.Conditions == "") {
		return nil, errors.NewValidationError("conditions", "a conditional approval must state its conditions")
	}

	// Resolve the owning instance before the transaction; the lock must
	// go on the instance row first.
	target, err := s.actions.GetAction(ctx, req.ActionID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, errors.NewNotFoundError("approval action", req.ActionID)
	}

	// Decisions on the same instance contend on the cursor row; retry
	// deadlocked attempts instead of surfacing them.
	var decided *models.ApprovalAction
	err = s.txRunner.RunWithRetry(ctx, func(txCtx context.Context) error {
		// The locking read serializes decisions per instance: a
		// concurrent decision blocks here until the first one commits,
		// then re-evaluates the stage against its committed actions.
		inst, err := s.instances.GetInstanceForUpdate(txCtx, target.InstanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return errors.NewNotFoundError("approval instance", target.InstanceID)
		}
		if inst.IsTerminal() {
			return errors.NewInstanceCompleteError(inst.ID, inst.OverallStatus)
		}

		// Re-read the action under the instance lock; a sweep may have
		// escalated it away from the caller in the meantime.
		act, err := s.actions.GetAction(txCtx, req.ActionID)
		if err != nil {
			return err
		}
		if act == nil {
			return errors.NewNotFoundError("approval action", req.ActionID)
		}
		if act.Status != constants.ActionStatusPending {
			return errors.NewActionNotPendingError(act.ID, act.Status)
		}
		if act.ApproverID != user.ID {
			return errors.NewApproverMismatchError(act.ID, user.ID)
		}
		// A pending sibling of an already-completed "any" stage cannot
		// change the outcome; the cursor has moved on.
		if act.StageOrder != inst.CurrentStageOrder {
			return errors.NewActionNotPendingError(act.ID, "superseded")
		}

		ok, err := s.actions.CompleteAction(txCtx, act.ID, models.DecisionUpdate{
			Status:      req.Decision,
			Comments:    req.Comments,
			Conditions:  req.Conditions,
			DecidedBy:   user.ID,
			CompletedAt: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race against another decision or an escalation
			// sweep on the same action row.
			current, err := s.actions.GetAction(txCtx, act.ID)
			if err != nil {
				return err
			}
			if current != nil && current.Status == constants.ActionStatusPending && current.ApproverID != user.ID {
				return errors.NewApproverMismatchError(act.ID, user.ID)
			}
			status := "unknown"
			if current != nil {
				status = current.Status
			}
			return errors.NewActionNotPendingError(act.ID, status)
		}

		if err := s.progression.Advance(txCtx, inst.ID); err != nil {
			return err
		}

		decided, err = s.actions.GetAction(txCtx, act.ID)
		return err
	}, 3)
	if err != nil {
		return nil, err
	}

	log.Printf("✍️ Decision recorded: action %s → %s by %s", decided.ID, decided.Status, user.ID)
	return decided, nil
}

// ListPendingForApprover returns the caller's open work items
func (s *DecisionService) ListPendingForApprover(ctx context.Context, approverID string) ([]models.ApprovalAction, error) {
	return s.actions.ListPendingByApprover(ctx, approverID)
}
