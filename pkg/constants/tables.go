package constants

// Workflow configuration tables
const (
	TableWorkflowTemplate = "approval_workflow_templates"
	TableWorkflowStage    = "approval_workflow_stages"
	TableWorkflowStep     = "approval_workflow_steps"
)

// Runtime tables
const (
	TableApprovalInstance = "approval_instances"
	TableApprovalAction   = "approval_actions"
)

// Supporting tables
const (
	TableUser          = "users"
	TableReferenceList = "reference_lists"
)

// Common column names shared across tables
const (
	ColID        = "id"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
	ColCreatedBy = "created_by"
	ColUpdatedBy = "updated_by"
)
