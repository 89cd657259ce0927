package models

import (
	"fmt"
	"time"

	"github.com/procureflow/backend/pkg/constants"
)

// EntityRef identifies the owning entity of a workflow template.
// Exactly one owning entity per template: a consortium, a team, or a
// project.
type EntityRef struct {
	Type string `json:"type"` // constants.EntityType*
	ID   string `json:"id"`
}

// Validate checks the entity reference is well-formed
func (e EntityRef) Validate() error {
	switch e.Type {
	case constants.EntityTypeConsortium, constants.EntityTypeTeam, constants.EntityTypeProject:
	default:
		return fmt.Errorf("unknown entity type: %q", e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	return nil
}

func (e EntityRef) String() string {
	return e.Type + "/" + e.ID
}

// BudgetBracket is a monetary threshold used to decide which stages
// apply to a request amount. Thresholds are inclusive lower bounds,
// held in cents to keep comparisons exact.
type BudgetBracket struct {
	Key            string `json:"key"`
	Label          string `json:"label"`
	ThresholdCents int64  `json:"threshold_cents"`
}

// WorkflowTemplate is a reusable, administrator-authored approval
// configuration for an owning entity. At most one template per owning
// entity is active at any time. A template is logically append-only
// once an instance has been created from it; edits go into a new
// version.
type WorkflowTemplate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Version     string    `json:"version"`
	Entity      EntityRef `json:"entity"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedBy   string    `json:"updated_by,omitempty"`

	// Stages are loaded ordered by StageOrder ascending.
	Stages []WorkflowStage `json:"stages,omitempty"`
}

// WorkflowStage is a budget-bracket-scoped group of approval steps
// within a template. StageOrder and BracketKey are each unique per
// template.
type WorkflowStage struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	StageOrder int    `json:"stage_order"`
	StageName  string `json:"stage_name"`

	// BracketKey references a budget bracket; ThresholdCents caches the
	// bracket's inclusive lower bound at configuration time.
	BracketKey     string `json:"bracket_key"`
	ThresholdCents int64  `json:"threshold_cents"`

	// RequiresAllSteps: every step must reach an accepting decision
	// before the stage completes. IsParallel: steps may be decided in
	// any order; otherwise strictly in StepOrder.
	RequiresAllSteps bool `json:"requires_all_steps"`
	IsParallel       bool `json:"is_parallel"`

	// RequiredDocumentTypes are keys into the external document-type
	// catalog; display names are resolved by the collaborator.
	RequiredDocumentTypes []string `json:"required_document_types,omitempty"`

	// Steps are loaded ordered by StepOrder ascending.
	Steps []WorkflowStep `json:"steps,omitempty"`
}

// WorkflowStep is a single required approval point within a stage, with
// a primary and optional backup approver. StepOrder is unique per
// stage.
type WorkflowStep struct {
	ID        string `json:"id"`
	StageID   string `json:"stage_id"`
	StepOrder int    `json:"step_order"`
	StepName  string `json:"step_name"`

	ApprovalTypeKey  string `json:"approval_type_key"`
	ApprovalTypeName string `json:"approval_type_name"`

	PrimaryApproverID   string  `json:"primary_approver_id"`
	PrimaryApproverName string  `json:"primary_approver_name"`
	BackupApproverID    *string `json:"backup_approver_id,omitempty"`
	BackupApproverName  *string `json:"backup_approver_name,omitempty"`

	TimeoutDays  int  `json:"timeout_days"`
	AutoEscalate bool `json:"auto_escalate"`
}

// HasBackup reports whether the step has a backup approver to escalate
// to.
func (s *WorkflowStep) HasBackup() bool {
	return s.BackupApproverID != nil && *s.BackupApproverID != ""
}

// EffectiveTimeoutDays returns the step timeout, falling back to the
// system default when unset.
func (s *WorkflowStep) EffectiveTimeoutDays() int {
	if s.TimeoutDays > 0 {
		return s.TimeoutDays
	}
	return constants.DefaultTimeoutDays
}

// StageByOrder returns the stage with the given order, or nil.
func (t *WorkflowTemplate) StageByOrder(order int) *WorkflowStage {
	for i := range t.Stages {
		if t.Stages[i].StageOrder == order {
			return &t.Stages[i]
		}
	}
	return nil
}

// StepByOrder returns the step with the given order, or nil.
func (st *WorkflowStage) StepByOrder(order int) *WorkflowStep {
	for i := range st.Steps {
		if st.Steps[i].StepOrder == order {
			return &st.Steps[i]
		}
	}
	return nil
}
