package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
	"github.com/procureflow/backend/pkg/utils"
)

// TemplateService manages workflow template authoring: creating
// templates, attaching bracket-scoped stages and their approval steps,
// and switching the active template for an owning entity.
type TemplateService struct {
	templates ports.TemplateRepository
	refs      ports.ReferenceRepository
	users     ports.UserRepository
	txRunner  ports.TxRunner
	clock     ports.Clock
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templates ports.TemplateRepository, refs ports.ReferenceRepository, users ports.UserRepository, txRunner ports.TxRunner, clock ports.Clock) *TemplateService {
	return &TemplateService{
		templates: templates,
		refs:      refs,
		users:     users,
		txRunner:  txRunner,
		clock:     clock,
	}
}

// CreateTemplateRequest is the payload for creating a template
type CreateTemplateRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Version     string  `json:"version"`
	EntityType  string  `json:"entity_type" binding:"required"`
	EntityID    string  `json:"entity_id" binding:"required"`
}

// AddStageRequest is the payload for attaching a stage to a template
type AddStageRequest struct {
	// TemplateID may be omitted in the body; the REST layer fills it
	// from the path.
	TemplateID            string   `json:"template_id"`
	StageOrder            int      `json:"stage_order" binding:"required"`
	StageName             string   `json:"stage_name" binding:"required"`
	BracketKey            string   `json:"bracket_key" binding:"required"`
	RequiresAllSteps      bool     `json:"requires_all_steps"`
	IsParallel            bool     `json:"is_parallel"`
	RequiredDocumentTypes []string `json:"required_document_types"`
}

// AddStepRequest is the payload for attaching a step to a stage
type AddStepRequest struct {
	StageID           string  `json:"stage_id"`
	StepOrder         int     `json:"step_order" binding:"required"`
	StepName          string  `json:"step_name"`
	ApprovalTypeKey   string  `json:"approval_type_key" binding:"required"`
	PrimaryApproverID string  `json:"primary_approver_id" binding:"required"`
	BackupApproverID  *string `json:"backup_approver_id"`
	TimeoutDays       int     `json:"timeout_days"`
	AutoEscalate      *bool   `json:"auto_escalate"`
}

// CreateTemplate creates a new, initially inactive template
func (s *TemplateService) CreateTemplate(ctx context.Context, req *CreateTemplateRequest, user *auth.UserSession) (*models.WorkflowTemplate, error) {
	entity := models.EntityRef{Type: req.EntityType, ID: req.EntityID}
	if err := entity.Validate(); err != nil {
		return nil, errors.NewValidationError("entity", err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.NewValidationError("name", "template name is required")
	}

	version := req.Version
	if version == "" {
		version = "1.0"
	}

	now := s.clock.Now()
	tpl := &models.WorkflowTemplate{
		ID:          utils.GenerateID(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Version:     version,
		Entity:      entity,
		Active:      false,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   user.ID,
		UpdatedBy:   user.ID,
	}

	if err := s.templates.CreateTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	log.Printf("📋 Workflow template created: %s (%s) for %s", tpl.Name, tpl.ID, entity)
	return tpl, nil
}

// AddStage attaches a stage to a template. The stage's budget bracket
// must exist in the reference catalog; its threshold is cached on the
// stage so submission-time resolution never needs the catalog.
func (s *TemplateService) AddStage(ctx context.Context, req *AddStageRequest, user *auth.UserSession) (*models.WorkflowStage, error) {
	if req.StageOrder < 1 {
		return nil, errors.NewValidationError("stage_order", "stage order must be positive")
	}

	tpl, err := s.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("workflow template", req.TemplateID)
	}

	if err := s.ensureEditable(ctx, tpl); err != nil {
		return nil, err
	}

	bracket, err := s.refs.GetByKey(ctx, constants.ListTypeBudgetBracket, req.BracketKey)
	if err != nil {
		return nil, err
	}
	if bracket == nil {
		return nil, errors.NewValidationError("bracket_key", fmt.Sprintf("unknown budget bracket %q", req.BracketKey))
	}

	stage := &models.WorkflowStage{
		ID:                    utils.GenerateID(),
		TemplateID:            tpl.ID,
		StageOrder:            req.StageOrder,
		StageName:             req.StageName,
		BracketKey:            bracket.Key,
		ThresholdCents:        bracket.ThresholdCents,
		RequiresAllSteps:      req.RequiresAllSteps,
		IsParallel:            req.IsParallel,
		RequiredDocumentTypes: req.RequiredDocumentTypes,
	}

	if err := s.templates.AddStage(ctx, stage); err != nil {
		return nil, err
	}

	log.Printf("📐 Stage %d (%s, bracket %s) added to template %s", stage.StageOrder, stage.StageName, stage.BracketKey, tpl.ID)
	return stage, nil
}

// AddStep attaches a step to a stage. The approval type must exist in
// the reference catalog and the primary approver must be a known user.
func (s *TemplateService) AddStep(ctx context.Context, req *AddStepRequest, user *auth.UserSession) (*models.WorkflowStep, error) {
	if req.StepOrder < 1 {
		return nil, errors.NewValidationError("step_order", "step order must be positive")
	}

	stage, err := s.templates.GetStage(ctx, req.StageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, errors.NewNotFoundError("workflow stage", req.StageID)
	}

	tpl, err := s.templates.GetTemplate(ctx, stage.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("workflow template", stage.TemplateID)
	}
	if err := s.ensureEditable(ctx, tpl); err != nil {
		return nil, err
	}

	approvalType, err := s.refs.GetByKey(ctx, constants.ListTypeApprovalType, req.ApprovalTypeKey)
	if err != nil {
		return nil, err
	}
	if approvalType == nil {
		return nil, errors.NewValidationError("approval_type_key", fmt.Sprintf("unknown approval type %q", req.ApprovalTypeKey))
	}

	primary, err := s.users.GetUser(ctx, req.PrimaryApproverID)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, errors.NewValidationError("primary_approver_id", "primary approver does not exist")
	}

	stepName := req.StepName
	if stepName == "" {
		stepName = approvalType.Label
	}

	autoEscalate := true
	if req.AutoEscalate != nil {
		autoEscalate = *req.AutoEscalate
	}

	step := &models.WorkflowStep{
		ID:                  utils.GenerateID(),
		StageID:             stage.ID,
		StepOrder:           req.StepOrder,
		StepName:            stepName,
		ApprovalTypeKey:     approvalType.Key,
		ApprovalTypeName:    approvalType.Label,
		PrimaryApproverID:   primary.ID,
		PrimaryApproverName: primary.Name,
		TimeoutDays:         req.TimeoutDays,
		AutoEscalate:        autoEscalate,
	}

	if req.BackupApproverID != nil && *req.BackupApproverID != "" {
		backup, err := s.users.GetUser(ctx, *req.BackupApproverID)
		if err != nil {
			return nil, err
		}
		if backup == nil {
			return nil, errors.NewValidationError("backup_approver_id", "backup approver does not exist")
		}
		step.BackupApproverID = &backup.ID
		step.BackupApproverName = &backup.Name
	}

	if err := s.templates.AddStep(ctx, step); err != nil {
		return nil, err
	}

	log.Printf("👤 Step %d (%s → %s) added to stage %s", step.StepOrder, step.ApprovalTypeKey, step.PrimaryApproverName, stage.ID)
	return step, nil
}

// Activate makes the template the single active one for its owning
// entity. Runs in a transaction so two templates for the same entity
// are never active at once.
func (s *TemplateService) Activate(ctx context.Context, templateID string, user *auth.UserSession) error {
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if tpl == nil {
		return errors.NewNotFoundError("workflow template", templateID)
	}
	if len(tpl.Stages) == 0 {
		return errors.NewValidationError("stages", "template has no stages to activate")
	}
	for _, stage := range tpl.Stages {
		if len(stage.Steps) == 0 {
			return errors.NewValidationError("steps", fmt.Sprintf("stage %d has no steps", stage.StageOrder))
		}
	}

	err = s.txRunner.RunInTransaction(ctx, func(txCtx context.Context) error {
		return s.templates.ActivateExclusive(txCtx, tpl.Entity, tpl.ID)
	})
	if err != nil {
		return err
	}

	log.Printf("✅ Workflow template activated: %s (%s) for %s", tpl.Name, tpl.ID, tpl.Entity)
	return nil
}

// GetTemplate returns a fully loaded template
func (s *TemplateService) GetTemplate(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("workflow template", templateID)
	}
	return tpl, nil
}

// ListTemplates returns the templates configured for an owning entity
func (s *TemplateService) ListTemplates(ctx context.Context, entity models.EntityRef) ([]models.WorkflowTemplate, error) {
	if err := entity.Validate(); err != nil {
		return nil, errors.NewValidationError("entity", err.Error())
	}
	return s.templates.ListTemplates(ctx, entity)
}

// ListReferenceItems returns a seeded reference catalog (budget
// brackets, approval types, document types) for authoring UIs.
func (s *TemplateService) ListReferenceItems(ctx context.Context, listType string) ([]models.ReferenceItem, error) {
	switch listType {
	case constants.ListTypeBudgetBracket, constants.ListTypeApprovalType, constants.ListTypeDocumentType:
	default:
		return nil, errors.NewValidationError("list_type", fmt.Sprintf("unknown reference list %q", listType))
	}
	return s.refs.ListByType(ctx, listType)
}

// ensureEditable rejects structural edits on templates that already
// produced instances. Such templates are frozen; changes go into a new
// template version.
func (s *TemplateService) ensureEditable(ctx context.Context, tpl *models.WorkflowTemplate) error {
	used, err := s.templates.HasInstances(ctx, tpl.ID)
	if err != nil {
		return err
	}
	if used {
		return errors.NewConflictError("workflow template", "id", tpl.ID)
	}
	return nil
}
