package ports

import (
	"context"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
)

// TxRunner executes a function inside a database transaction. The
// transaction is carried in the returned context; repositories join it
// transparently. Implementations roll back on error or panic.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
	// RunWithRetry retries fn on deadlock, up to maxRetries attempts.
	RunWithRetry(ctx context.Context, fn func(txCtx context.Context) error, maxRetries int) error
}

// TemplateRepository persists workflow templates, stages, and steps.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error
	// GetTemplate loads a template with its stages and steps, stages
	// ordered by stage_order and steps by step_order.
	GetTemplate(ctx context.Context, templateID string) (*models.WorkflowTemplate, error)
	ListTemplates(ctx context.Context, entity models.EntityRef) ([]models.WorkflowTemplate, error)
	// FindActiveTemplate returns the single active template for the
	// owning entity, fully loaded, or nil when none exists.
	FindActiveTemplate(ctx context.Context, entity models.EntityRef) (*models.WorkflowTemplate, error)

	AddStage(ctx context.Context, stage *models.WorkflowStage) error
	AddStep(ctx context.Context, step *models.WorkflowStep) error
	GetStage(ctx context.Context, stageID string) (*models.WorkflowStage, error)

	// ActivateExclusive deactivates every template owned by the entity
	// and activates the target, as one atomic unit. Two templates for
	// the same entity must never be active simultaneously, including
	// under concurrent calls.
	ActivateExclusive(ctx context.Context, entity models.EntityRef, templateID string) error

	// HasInstances reports whether any instance was created from the
	// template; such templates are append-only.
	HasInstances(ctx context.Context, templateID string) (bool, error)
}

// InstanceRepository persists approval instances and their snapshots.
type InstanceRepository interface {
	CreateInstance(ctx context.Context, inst *models.ApprovalInstance) error
	GetInstance(ctx context.Context, instanceID string) (*models.ApprovalInstance, error)
	// GetInstanceForUpdate loads the instance with a row lock held until
	// the surrounding transaction ends. Decisions take this lock before
	// evaluating stage completion, so completion is evaluated against
	// every previously committed decision on the instance.
	GetInstanceForUpdate(ctx context.Context, instanceID string) (*models.ApprovalInstance, error)
	// FindLiveByRequest returns the non-draft instance for a request, or
	// nil. At most one live instance exists per request.
	FindLiveByRequest(ctx context.Context, requestID string) (*models.ApprovalInstance, error)

	// AdvanceCursor moves the instance cursor and status forward with an
	// optimistic-concurrency check against the expected current cursor.
	// Returns false without mutating anything when another writer
	// already advanced the instance.
	AdvanceCursor(ctx context.Context, instanceID string, expectedStage, expectedStep int, upd models.CursorUpdate) (bool, error)
}

// ActionRepository persists approval actions.
type ActionRepository interface {
	CreateAction(ctx context.Context, act *models.ApprovalAction) error
	GetAction(ctx context.Context, actionID string) (*models.ApprovalAction, error)
	ListByInstance(ctx context.Context, instanceID string) ([]models.ApprovalAction, error)
	ListPendingByApprover(ctx context.Context, approverID string) ([]models.ApprovalAction, error)

	// CompleteAction records a decision with a guard on status=pending.
	// Returns false when the action was no longer pending (a concurrent
	// decision or sweep won).
	CompleteAction(ctx context.Context, actionID string, upd models.DecisionUpdate) (bool, error)

	// ListOverduePending returns pending actions whose due date has
	// passed as of now.
	ListOverduePending(ctx context.Context, now time.Time) ([]models.ApprovalAction, error)

	// Escalate reassigns a pending, not-yet-escalated action to the
	// backup approver. The guard serializes sweeps against concurrent
	// decisions: returns false when the action was decided or already
	// escalated in the meantime.
	Escalate(ctx context.Context, actionID string, upd models.EscalationUpdate) (bool, error)

	// MarkOverdue flags a pending action that cannot be escalated.
	// Reporting only.
	MarkOverdue(ctx context.Context, actionID string) error
}

// IdentityDirectory resolves approver identities. Implemented by an
// external collaborator; an inactive primary approver is treated like
// an overdue action at sweep time.
type IdentityDirectory interface {
	IsActive(ctx context.Context, approverID string) (bool, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	IdentityDirectory
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// ReferenceRepository reads the seeded reference lists.
type ReferenceRepository interface {
	ListByType(ctx context.Context, listType string) ([]models.ReferenceItem, error)
	GetByKey(ctx context.Context, listType, key string) (*models.ReferenceItem, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
