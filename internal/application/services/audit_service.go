package services

import (
	"context"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
	"github.com/procureflow/backend/pkg/filter"
)

// AuditService is the read-only reporting surface: instance progress
// views, filterable action history, and the approver dashboard.
type AuditService struct {
	instances ports.InstanceRepository
	actions   ports.ActionRepository
	filters   *filter.Engine
	clock     ports.Clock
}

// NewAuditService creates a new AuditService
func NewAuditService(instances ports.InstanceRepository, actions ports.ActionRepository, clock ports.Clock) *AuditService {
	return &AuditService{
		instances: instances,
		actions:   actions,
		filters:   filter.NewEngine(),
		clock:     clock,
	}
}

// StageProgress is the per-stage rollup of an instance progress view
type StageProgress struct {
	StageOrder int                     `json:"stage_order"`
	StageName  string                  `json:"stage_name"`
	IsCurrent  bool                    `json:"is_current"`
	Actions    []models.ApprovalAction `json:"actions"`
}

// InstanceProgress is the full progress view of one instance
type InstanceProgress struct {
	Instance *models.ApprovalInstance `json:"instance"`
	Stages   []StageProgress          `json:"stages"`
}

// GetProgress returns an instance with its actions grouped per
// snapshot stage. Future stages appear with no actions; they have not
// been activated yet.
func (s *AuditService) GetProgress(ctx context.Context, instanceID string) (*InstanceProgress, error) {
	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("approval instance", instanceID)
	}

	actions, err := s.actions.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	byStage := make(map[int][]models.ApprovalAction)
	for _, act := range actions {
		byStage[act.StageOrder] = append(byStage[act.StageOrder], act)
	}

	progress := &InstanceProgress{Instance: inst}
	for _, stage := range inst.Snapshot.Stages {
		progress.Stages = append(progress.Stages, StageProgress{
			StageOrder: stage.StageOrder,
			StageName:  stage.StageName,
			IsCurrent:  !inst.IsTerminal() && stage.StageOrder == inst.CurrentStageOrder,
			Actions:    byStage[stage.StageOrder],
		})
	}
	return progress, nil
}

// ActionHistory returns an instance's actions, optionally narrowed by a
// filter expression evaluated per action, e.g.
// "status == 'refused' || is_escalated".
func (s *AuditService) ActionHistory(ctx context.Context, instanceID, filterExpr string) ([]models.ApprovalAction, error) {
	if filterExpr != "" {
		if err := s.filters.Validate(filterExpr); err != nil {
			return nil, errors.NewValidationError("filter", err.Error())
		}
	}

	actions, err := s.actions.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if filterExpr == "" {
		return actions, nil
	}

	matched := make([]models.ApprovalAction, 0, len(actions))
	for _, act := range actions {
		ok, err := s.filters.Match(filterExpr, actionRow(&act, s.clock.Now()))
		if err != nil {
			return nil, errors.NewValidationError("filter", err.Error())
		}
		if ok {
			matched = append(matched, act)
		}
	}
	return matched, nil
}

// DashboardEntry is one work item on an approver's dashboard
type DashboardEntry struct {
	Action    models.ApprovalAction `json:"action"`
	RequestID string                `json:"request_id"`
	Amount    int64                 `json:"amount_cents"`
	IsOverdue bool                  `json:"is_overdue"`
}

// Dashboard returns the approver's pending work items enriched with
// their request context, optionally narrowed by a filter expression.
func (s *AuditService) Dashboard(ctx context.Context, approverID, filterExpr string) ([]DashboardEntry, error) {
	if filterExpr != "" {
		if err := s.filters.Validate(filterExpr); err != nil {
			return nil, errors.NewValidationError("filter", err.Error())
		}
	}

	pending, err := s.actions.ListPendingByApprover(ctx, approverID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entries := make([]DashboardEntry, 0, len(pending))
	for _, act := range pending {
		if filterExpr != "" {
			ok, err := s.filters.Match(filterExpr, actionRow(&act, now))
			if err != nil {
				return nil, errors.NewValidationError("filter", err.Error())
			}
			if !ok {
				continue
			}
		}

		entry := DashboardEntry{
			Action:    act,
			IsOverdue: act.DueDate.Before(now),
		}
		if inst, err := s.instances.GetInstance(ctx, act.InstanceID); err == nil && inst != nil {
			entry.RequestID = inst.RequestID
			entry.Amount = inst.AmountCents
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// actionRow flattens an action into the map the filter engine
// evaluates against.
func actionRow(act *models.ApprovalAction, now time.Time) map[string]interface{} {
	row := map[string]interface{}{
		"id":                act.ID,
		"instance_id":       act.InstanceID,
		"stage_order":       act.StageOrder,
		"step_order":        act.StepOrder,
		"stage_name":        act.StageName,
		"step_name":         act.StepName,
		"approval_type_key": act.ApprovalTypeKey,
		"approver_id":       act.ApproverID,
		"approver_name":     act.ApproverName,
		"status":            act.Status,
		"is_escalated":      act.IsEscalated,
		"is_overdue":        act.IsOverdue || (act.Status == constants.ActionStatusPending && act.DueDate.Before(now)),
		"assigned_at":       act.AssignedAt,
		"due_date":          act.DueDate,
	}
	if act.Comments != nil {
		row["comments"] = *act.Comments
	}
	if act.DecidedBy != nil {
		row["decided_by"] = *act.DecidedBy
	}
	return row
}
