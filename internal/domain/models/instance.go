package models

import (
	"time"

	"github.com/procureflow/backend/pkg/constants"
)

// InstanceSnapshot is the immutable copy of the resolved template
// configuration captured at submission time. It carries everything the
// progression engine needs, so later edits to the source template have
// zero effect on in-flight instances. Persisted as a versioned JSON
// document on the instance row.
type InstanceSnapshot struct {
	Version         int    `json:"version"`
	TemplateID      string `json:"template_id"`
	TemplateName    string `json:"template_name"`
	TemplateVersion string `json:"template_version"`

	// Stages holds only the stages the request must traverse, in
	// ascending StageOrder.
	Stages []SnapshotStage `json:"stages"`
}

// SnapshotStage is the frozen copy of one resolved stage.
type SnapshotStage struct {
	StageOrder            int            `json:"stage_order"`
	StageName             string         `json:"stage_name"`
	BracketKey            string         `json:"bracket_key"`
	ThresholdCents        int64          `json:"threshold_cents"`
	RequiresAllSteps      bool           `json:"requires_all_steps"`
	IsParallel            bool           `json:"is_parallel"`
	RequiredDocumentTypes []string       `json:"required_document_types,omitempty"`
	Steps                 []SnapshotStep `json:"steps"`
}

// SnapshotStep is the frozen copy of one step.
type SnapshotStep struct {
	StepOrder           int     `json:"step_order"`
	StepName            string  `json:"step_name"`
	ApprovalTypeKey     string  `json:"approval_type_key"`
	ApprovalTypeName    string  `json:"approval_type_name"`
	PrimaryApproverID   string  `json:"primary_approver_id"`
	PrimaryApproverName string  `json:"primary_approver_name"`
	BackupApproverID    *string `json:"backup_approver_id,omitempty"`
	BackupApproverName  *string `json:"backup_approver_name,omitempty"`
	TimeoutDays         int     `json:"timeout_days"`
	AutoEscalate        bool    `json:"auto_escalate"`
}

// HasBackup reports whether the step can be escalated to a backup
// approver.
func (s *SnapshotStep) HasBackup() bool {
	return s.BackupApproverID != nil && *s.BackupApproverID != ""
}

// EffectiveTimeoutDays returns the step timeout, falling back to the
// system default when unset.
func (s *SnapshotStep) EffectiveTimeoutDays() int {
	if s.TimeoutDays > 0 {
		return s.TimeoutDays
	}
	return constants.DefaultTimeoutDays
}

// BuildSnapshot deep-copies the resolved stages of a template into a
// new snapshot. The result shares no memory with the source records.
func BuildSnapshot(tpl *WorkflowTemplate, resolved []WorkflowStage) InstanceSnapshot {
	snap := InstanceSnapshot{
		Version:         constants.SnapshotVersion,
		TemplateID:      tpl.ID,
		TemplateName:    tpl.Name,
		TemplateVersion: tpl.Version,
		Stages:          make([]SnapshotStage, 0, len(resolved)),
	}

	for i := range resolved {
		src := &resolved[i]
		stage := SnapshotStage{
			StageOrder:       src.StageOrder,
			StageName:        src.StageName,
			BracketKey:       src.BracketKey,
			ThresholdCents:   src.ThresholdCents,
			RequiresAllSteps: src.RequiresAllSteps,
			IsParallel:       src.IsParallel,
			Steps:            make([]SnapshotStep, 0, len(src.Steps)),
		}
		if len(src.RequiredDocumentTypes) > 0 {
			stage.RequiredDocumentTypes = append([]string(nil), src.RequiredDocumentTypes...)
		}
		for j := range src.Steps {
			stage.Steps = append(stage.Steps, newSnapshotStep(&src.Steps[j]))
		}
		snap.Stages = append(snap.Stages, stage)
	}

	return snap
}

func newSnapshotStep(src *WorkflowStep) SnapshotStep {
	step := SnapshotStep{
		StepOrder:           src.StepOrder,
		StepName:            src.StepName,
		ApprovalTypeKey:     src.ApprovalTypeKey,
		ApprovalTypeName:    src.ApprovalTypeName,
		PrimaryApproverID:   src.PrimaryApproverID,
		PrimaryApproverName: src.PrimaryApproverName,
		TimeoutDays:         src.TimeoutDays,
		AutoEscalate:        src.AutoEscalate,
	}
	// Copy pointer fields by value so the snapshot never aliases the
	// template records.
	if src.BackupApproverID != nil {
		id := *src.BackupApproverID
		step.BackupApproverID = &id
	}
	if src.BackupApproverName != nil {
		name := *src.BackupApproverName
		step.BackupApproverName = &name
	}
	return step
}

// Clone returns an independent deep copy of the snapshot.
func (s InstanceSnapshot) Clone() InstanceSnapshot {
	out := s
	out.Stages = make([]SnapshotStage, len(s.Stages))
	for i, stage := range s.Stages {
		cp := stage
		if len(stage.RequiredDocumentTypes) > 0 {
			cp.RequiredDocumentTypes = append([]string(nil), stage.RequiredDocumentTypes...)
		}
		cp.Steps = make([]SnapshotStep, len(stage.Steps))
		for j, step := range stage.Steps {
			sc := step
			if step.BackupApproverID != nil {
				id := *step.BackupApproverID
				sc.BackupApproverID = &id
			}
			if step.BackupApproverName != nil {
				name := *step.BackupApproverName
				sc.BackupApproverName = &name
			}
			cp.Steps[j] = sc
		}
		out.Stages[i] = cp
	}
	return out
}

// StageAt returns the snapshot stage with the given order, or nil.
func (s *InstanceSnapshot) StageAt(order int) *SnapshotStage {
	for i := range s.Stages {
		if s.Stages[i].StageOrder == order {
			return &s.Stages[i]
		}
	}
	return nil
}

// NextStageAfter returns the first snapshot stage with order greater
// than the given order, or nil when none remains.
func (s *InstanceSnapshot) NextStageAfter(order int) *SnapshotStage {
	for i := range s.Stages {
		if s.Stages[i].StageOrder > order {
			return &s.Stages[i]
		}
	}
	return nil
}

// StepAt returns the snapshot step with the given order, or nil.
func (st *SnapshotStage) StepAt(order int) *SnapshotStep {
	for i := range st.Steps {
		if st.Steps[i].StepOrder == order {
			return &st.Steps[i]
		}
	}
	return nil
}

// NextStepAfter returns the first step with order greater than the
// given order, or nil when none remains.
func (st *SnapshotStage) NextStepAfter(order int) *SnapshotStep {
	for i := range st.Steps {
		if st.Steps[i].StepOrder > order {
			return &st.Steps[i]
		}
	}
	return nil
}

// ApprovalInstance is the live progression state of one submitted
// request. The snapshot never changes after creation; the cursors and
// overall status only ever move forward.
type ApprovalInstance struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	TemplateID string `json:"template_id"` // audit only, never read for configuration

	Entity      EntityRef `json:"entity"`
	AmountCents int64     `json:"amount_cents"`

	Snapshot InstanceSnapshot `json:"snapshot"`

	CurrentStageOrder int    `json:"current_stage_order"`
	CurrentStepOrder  int    `json:"current_step_order"`
	OverallStatus     string `json:"overall_status"` // constants.InstanceStatus*

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
}

// IsTerminal reports whether the instance accepts further actions.
func (i *ApprovalInstance) IsTerminal() bool {
	return i.OverallStatus == constants.InstanceStatusApproved ||
		i.OverallStatus == constants.InstanceStatusRefused
}

// CurrentStage returns the snapshot stage the cursor points at, or nil.
func (i *ApprovalInstance) CurrentStage() *SnapshotStage {
	return i.Snapshot.StageAt(i.CurrentStageOrder)
}

// ApprovalAction records one approver's expected or actual decision for
// one step within one instance. Actions are created lazily, only for
// the stage the cursor points at.
type ApprovalAction struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`
	StageOrder int    `json:"stage_order"`
	StepOrder  int    `json:"step_order"`

	// Denormalized for audit display.
	StageName       string `json:"stage_name"`
	StepName        string `json:"step_name"`
	ApprovalTypeKey string `json:"approval_type_key"`

	// ApproverID is the approver currently expected to act; after
	// escalation it holds the backup's identity.
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name"`

	Status     string  `json:"status"` // constants.ActionStatus*
	Comments   *string `json:"comments,omitempty"`
	Conditions *string `json:"conditions,omitempty"`

	AssignedAt  time.Time  `json:"assigned_at"`
	DueDate     time.Time  `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DecidedBy   *string    `json:"decided_by,omitempty"`

	IsEscalated      bool       `json:"is_escalated"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	EscalationReason *string    `json:"escalation_reason,omitempty"`

	// IsOverdue flags a past-due pending action that cannot be
	// escalated. Reporting only, never an engine failure.
	IsOverdue bool `json:"is_overdue"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAccepting reports whether the action reached an accepting terminal
// state (approved or conditionally approved).
func (a *ApprovalAction) IsAccepting() bool {
	return a.Status == constants.ActionStatusApproved ||
		a.Status == constants.ActionStatusConditional
}

// IsTerminal reports whether a decision has been recorded.
func (a *ApprovalAction) IsTerminal() bool {
	return a.Status != constants.ActionStatusPending
}
