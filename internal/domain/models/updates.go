package models

import "time"

// CursorUpdate is the forward-only mutation applied to an instance when
// a stage or step completes.
type CursorUpdate struct {
	NewStageOrder int
	NewStepOrder  int
	NewStatus     string // constants.InstanceStatus*
	CompletedAt   *time.Time
}

// DecisionUpdate is the terminal mutation applied to a pending action
// when an approver decides it.
type DecisionUpdate struct {
	Status      string // approved, conditional, or refused
	Comments    *string
	Conditions  *string
	DecidedBy   string
	CompletedAt time.Time
}

// EscalationUpdate reassigns a pending action to the backup approver.
type EscalationUpdate struct {
	BackupApproverID   string
	BackupApproverName string
	EscalatedAt        time.Time
	NewDueDate         time.Time
	Reason             string
}
