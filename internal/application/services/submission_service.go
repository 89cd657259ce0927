package services

import (
	"context"
	"log"

	"github.com/procureflow/backend/internal/domain"
	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
	"github.com/procureflow/backend/pkg/utils"
)

// SubmissionService turns a purchase request into a live approval
// instance: it resolves the active template against the request amount,
// freezes the resolved stages into a snapshot, and activates the first
// stage. Submission is all-or-nothing; on any failure the request stays
// in draft and nothing is persisted.
type SubmissionService struct {
	templates   ports.TemplateRepository
	instances   ports.InstanceRepository
	progression *ProgressionService
	txRunner    ports.TxRunner
	clock       ports.Clock
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(templates ports.TemplateRepository, instances ports.InstanceRepository, progression *ProgressionService, txRunner ports.TxRunner, clock ports.Clock) *SubmissionService {
	return &SubmissionService{
		templates:   templates,
		instances:   instances,
		progression: progression,
		txRunner:    txRunner,
		clock:       clock,
	}
}

// SubmitRequest is the payload for submitting a purchase request for
// approval
type SubmitRequest struct {
	RequestID   string `json:"request_id" binding:"required"`
	EntityType  string `json:"entity_type" binding:"required"`
	EntityID    string `json:"entity_id" binding:"required"`
	AmountCents int64  `json:"amount_cents"`
}

// Submit creates the approval instance for a request and activates its
// first stage. Idempotence: a request that already has an instance is
// rejected with the existing instance's identity.
func (s *SubmissionService) Submit(ctx context.Context, req *SubmitRequest, user *auth.UserSession) (*models.ApprovalInstance, error) {
	entity := models.EntityRef{Type: req.EntityType, ID: req.EntityID}
	if err := entity.Validate(); err != nil {
		return nil, errors.NewValidationError("entity", err.Error())
	}
	if req.AmountCents < 0 {
		return nil, errors.NewValidationError("amount_cents", "amount cannot be negative")
	}

	var inst *models.ApprovalInstance
	err := s.txRunner.RunInTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.instances.FindLiveByRequest(txCtx, req.RequestID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.NewAlreadySubmittedError(req.RequestID, existing.ID)
		}

		tpl, err := s.templates.FindActiveTemplate(txCtx, entity)
		if err != nil {
			return err
		}
		if tpl == nil {
			return errors.NewNoWorkflowConfiguredError(entity.Type, entity.ID)
		}

		resolved := domain.ResolveStages(tpl, req.AmountCents)
		if len(resolved) == 0 {
			// The active template has no stage whose bracket covers this
			// amount; the request cannot be routed.
			return errors.NewNoWorkflowConfiguredError(entity.Type, entity.ID)
		}
		for _, stage := range resolved {
			// Activation requires steps, but stages added to an active
			// template afterward may still be empty. A step-less stage
			// has nobody to route to.
			if len(stage.Steps) == 0 {
				return errors.NewNoWorkflowConfiguredError(entity.Type, entity.ID)
			}
		}

		now := s.clock.Now()
		snapshot := models.BuildSnapshot(tpl, resolved)
		first := snapshot.Stages[0]

		inst = &models.ApprovalInstance{
			ID:                utils.GenerateID(),
			RequestID:         req.RequestID,
			TemplateID:        tpl.ID,
			Entity:            entity,
			AmountCents:       req.AmountCents,
			Snapshot:          snapshot,
			CurrentStageOrder: first.StageOrder,
			CurrentStepOrder:  first.Steps[0].StepOrder,
			OverallStatus:     constants.InstanceStatusPending,
			SubmittedAt:       &now,
			CreatedAt:         now,
			UpdatedAt:         now,
			CreatedBy:         user.ID,
		}

		if err := s.instances.CreateInstance(txCtx, inst); err != nil {
			return err
		}

		return s.progression.ActivateCurrentStage(txCtx, inst)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🚀 Request %s submitted: instance %s, %d stage(s) resolved for amount %d",
		req.RequestID, inst.ID, len(inst.Snapshot.Stages), req.AmountCents)
	return inst, nil
}

// GetInstance returns an instance with its frozen snapshot
func (s *SubmissionService) GetInstance(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("approval instance", instanceID)
	}
	return inst, nil
}

// GetInstanceByRequest returns the instance created for a request
func (s *SubmissionService) GetInstanceByRequest(ctx context.Context, requestID string) (*models.ApprovalInstance, error) {
	inst, err := s.instances.FindLiveByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("approval instance for request", requestID)
	}
	return inst, nil
}
