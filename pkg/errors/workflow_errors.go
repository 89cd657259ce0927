package errors

import (
	"fmt"
	"net/http"
)

// Workflow-specific error kinds. Configuration errors mean the caller's
// input cannot be routed and nothing was persisted. State errors mean
// the caller acted on stale data and should re-fetch.

// DuplicateOrderError reports a stage_order, step_order, or budget
// bracket that is already taken within its parent.
type DuplicateOrderError struct {
	Scope string // "stage" or "step"
	Field string // which uniqueness constraint was violated
	Value interface{}
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("duplicate %s: %s %v is already in use", e.Scope, e.Field, e.Value)
}

func (e *DuplicateOrderError) HTTPStatus() int { return http.StatusConflict }
func (e *DuplicateOrderError) Code() string    { return "DUPLICATE_ORDER" }

// NewDuplicateOrderError creates a new DuplicateOrderError
func NewDuplicateOrderError(scope, field string, value interface{}) *DuplicateOrderError {
	return &DuplicateOrderError{Scope: scope, Field: field, Value: value}
}

// NoWorkflowConfiguredError means no active template (or a template with
// no applicable stages) exists for the owning entity; the request stays
// in draft.
type NoWorkflowConfiguredError struct {
	EntityType string
	EntityID   string
}

func (e *NoWorkflowConfiguredError) Error() string {
	return fmt.Sprintf("no approval workflow configured for %s '%s'", e.EntityType, e.EntityID)
}

func (e *NoWorkflowConfiguredError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *NoWorkflowConfiguredError) Code() string    { return "NO_WORKFLOW_CONFIGURED" }

// NewNoWorkflowConfiguredError creates a new NoWorkflowConfiguredError
func NewNoWorkflowConfiguredError(entityType, entityID string) *NoWorkflowConfiguredError {
	return &NoWorkflowConfiguredError{EntityType: entityType, EntityID: entityID}
}

// AlreadySubmittedError means the request already has a live (non-draft)
// approval instance.
type AlreadySubmittedError struct {
	RequestID  string
	InstanceID string
}

func (e *AlreadySubmittedError) Error() string {
	if e.InstanceID == "" {
		// Duplicate-key collisions know only the request.
		return fmt.Sprintf("request '%s' was already submitted", e.RequestID)
	}
	return fmt.Sprintf("request '%s' already has approval instance '%s'", e.RequestID, e.InstanceID)
}

func (e *AlreadySubmittedError) HTTPStatus() int { return http.StatusConflict }
func (e *AlreadySubmittedError) Code() string    { return "ALREADY_SUBMITTED" }

// NewAlreadySubmittedError creates a new AlreadySubmittedError
func NewAlreadySubmittedError(requestID, instanceID string) *AlreadySubmittedError {
	return &AlreadySubmittedError{RequestID: requestID, InstanceID: instanceID}
}

// InstanceCompleteError means the instance has already reached a
// terminal status and accepts no further actions.
type InstanceCompleteError struct {
	InstanceID string
	Status     string
}

func (e *InstanceCompleteError) Error() string {
	return fmt.Sprintf("approval instance '%s' is already %s", e.InstanceID, e.Status)
}

func (e *InstanceCompleteError) HTTPStatus() int { return http.StatusConflict }
func (e *InstanceCompleteError) Code() string    { return "INSTANCE_ALREADY_COMPLETE" }

// NewInstanceCompleteError creates a new InstanceCompleteError
func NewInstanceCompleteError(instanceID, status string) *InstanceCompleteError {
	return &InstanceCompleteError{InstanceID: instanceID, Status: status}
}

// ActionNotPendingError means a decision was already recorded for the
// action. Decisions are append-only facts and cannot be changed.
type ActionNotPendingError struct {
	ActionID string
	Status   string
}

func (e *ActionNotPendingError) Error() string {
	return fmt.Sprintf("approval action '%s' is not pending (status: %s)", e.ActionID, e.Status)
}

func (e *ActionNotPendingError) HTTPStatus() int { return http.StatusConflict }
func (e *ActionNotPendingError) Code() string    { return "ACTION_NOT_PENDING" }

// NewActionNotPendingError creates a new ActionNotPendingError
func NewActionNotPendingError(actionID, status string) *ActionNotPendingError {
	return &ActionNotPendingError{ActionID: actionID, Status: status}
}

// ApproverMismatchError means the acting user is neither the action's
// assigned approver nor, after escalation, its backup.
type ApproverMismatchError struct {
	ActionID   string
	ApproverID string
}

func (e *ApproverMismatchError) Error() string {
	return fmt.Sprintf("user '%s' is not the assigned approver for action '%s'", e.ApproverID, e.ActionID)
}

func (e *ApproverMismatchError) HTTPStatus() int { return http.StatusForbidden }
func (e *ApproverMismatchError) Code() string    { return "APPROVER_MISMATCH" }

// NewApproverMismatchError creates a new ApproverMismatchError
func NewApproverMismatchError(actionID, approverID string) *ApproverMismatchError {
	return &ApproverMismatchError{ActionID: actionID, ApproverID: approverID}
}
