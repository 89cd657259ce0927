package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
)

// In-memory fakes for service tests. They honor the same guard
// semantics as the SQL repositories (optimistic cursor updates,
// first-writer-wins decisions), so concurrency edge cases can be
// exercised without a database.

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// serialTx runs the function directly but holds a lock for its
// duration, standing in for the instance row lock the SQL layer takes:
// concurrent transactions run one after another, each observing the
// previous one's writes.
type serialTx struct {
	mu sync.Mutex
}

func (t *serialTx) RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

func (t *serialTx) RunWithRetry(ctx context.Context, fn func(context.Context) error, maxRetries int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[string]*models.WorkflowTemplate
	stages    map[string]*models.WorkflowStage
	used      map[string]bool // template IDs with instances
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{
		templates: make(map[string]*models.WorkflowTemplate),
		stages:    make(map[string]*models.WorkflowStage),
		used:      make(map[string]bool),
	}
}

func (r *fakeTemplateRepo) CreateTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tpl
	r.templates[tpl.ID] = &cp
	return nil
}

func (r *fakeTemplateRepo) GetTemplate(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.templates[templateID]
	if !ok {
		return nil, nil
	}
	return r.loadLocked(tpl), nil
}

func (r *fakeTemplateRepo) ListTemplates(ctx context.Context, entity models.EntityRef) ([]models.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WorkflowTemplate
	for _, tpl := range r.templates {
		if tpl.Entity == entity {
			out = append(out, *r.loadLocked(tpl))
		}
	}
	return out, nil
}

func (r *fakeTemplateRepo) FindActiveTemplate(ctx context.Context, entity models.EntityRef) (*models.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.Entity == entity && tpl.Active {
			return r.loadLocked(tpl), nil
		}
	}
	return nil, nil
}

func (r *fakeTemplateRepo) AddStage(ctx context.Context, stage *models.WorkflowStage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stages {
		if s.TemplateID == stage.TemplateID && (s.StageOrder == stage.StageOrder || s.BracketKey == stage.BracketKey) {
			return errors.NewDuplicateOrderError("stage", "stage_order/bracket", stage.StageOrder)
		}
	}
	cp := *stage
	r.stages[stage.ID] = &cp
	return nil
}

func (r *fakeTemplateRepo) AddStep(ctx context.Context, step *models.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage, ok := r.stages[step.StageID]
	if !ok {
		return errors.NewNotFoundError("workflow stage", step.StageID)
	}
	for _, existing := range stage.Steps {
		if existing.StepOrder == step.StepOrder {
			return errors.NewDuplicateOrderError("step", "step_order", step.StepOrder)
		}
	}
	stage.Steps = append(stage.Steps, *step)
	sort.Slice(stage.Steps, func(i, j int) bool { return stage.Steps[i].StepOrder < stage.Steps[j].StepOrder })
	return nil
}

func (r *fakeTemplateRepo) GetStage(ctx context.Context, stageID string) (*models.WorkflowStage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage, ok := r.stages[stageID]
	if !ok {
		return nil, nil
	}
	cp := *stage
	return &cp, nil
}

func (r *fakeTemplateRepo) ActivateExclusive(ctx context.Context, entity models.EntityRef, templateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.templates[templateID]
	if !ok || target.Entity != entity {
		return errors.NewNotFoundError("workflow template", templateID)
	}
	for _, tpl := range r.templates {
		if tpl.Entity == entity {
			tpl.Active = false
		}
	}
	target.Active = true
	return nil
}

func (r *fakeTemplateRepo) HasInstances(ctx context.Context, templateID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used[templateID], nil
}

func (r *fakeTemplateRepo) loadLocked(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
	cp := *tpl
	cp.Stages = nil
	for _, stage := range r.stages {
		if stage.TemplateID == tpl.ID {
			cp.Stages = append(cp.Stages, *stage)
		}
	}
	sort.Slice(cp.Stages, func(i, j int) bool { return cp.Stages[i].StageOrder < cp.Stages[j].StageOrder })
	return &cp
}

type fakeInstanceRepo struct {
	mu          sync.Mutex
	instances   map[string]*models.ApprovalInstance
	templates   *fakeTemplateRepo // marks templates used on instance creation
	completions int               // successful advances into a terminal status
}

func newFakeInstanceRepo(templates *fakeTemplateRepo) *fakeInstanceRepo {
	return &fakeInstanceRepo{
		instances: make(map[string]*models.ApprovalInstance),
		templates: templates,
	}
}

func (r *fakeInstanceRepo) CreateInstance(ctx context.Context, inst *models.ApprovalInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inst
	cp.Snapshot = inst.Snapshot.Clone()
	r.instances[inst.ID] = &cp
	if r.templates != nil {
		r.templates.mu.Lock()
		r.templates.used[inst.TemplateID] = true
		r.templates.mu.Unlock()
	}
	return nil
}

func (r *fakeInstanceRepo) GetInstance(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return nil, nil
	}
	cp := *inst
	cp.Snapshot = inst.Snapshot.Clone()
	return &cp, nil
}

func (r *fakeInstanceRepo) GetInstanceForUpdate(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	// Transactions are already serialized by serialTx; the plain read
	// stands in for the locking one.
	return r.GetInstance(ctx, instanceID)
}

func (r *fakeInstanceRepo) FindLiveByRequest(ctx context.Context, requestID string) (*models.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.RequestID == requestID {
			cp := *inst
			cp.Snapshot = inst.Snapshot.Clone()
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) AdvanceCursor(ctx context.Context, instanceID string, expectedStage, expectedStep int, upd models.CursorUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return false, nil
	}
	if inst.CurrentStageOrder != expectedStage || inst.CurrentStepOrder != expectedStep ||
		inst.OverallStatus != constants.InstanceStatusPending {
		return false, nil
	}
	inst.CurrentStageOrder = upd.NewStageOrder
	inst.CurrentStepOrder = upd.NewStepOrder
	inst.OverallStatus = upd.NewStatus
	inst.CompletedAt = upd.CompletedAt
	if upd.CompletedAt != nil {
		r.completions++
	}
	return true, nil
}

func (r *fakeInstanceRepo) completionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completions
}

type fakeActionRepo struct {
	mu      sync.Mutex
	actions map[string]*models.ApprovalAction
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{actions: make(map[string]*models.ApprovalAction)}
}

func (r *fakeActionRepo) CreateAction(ctx context.Context, act *models.ApprovalAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *act
	r.actions[act.ID] = &cp
	return nil
}

func (r *fakeActionRepo) GetAction(ctx context.Context, actionID string) (*models.ApprovalAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	act, ok := r.actions[actionID]
	if !ok {
		return nil, nil
	}
	cp := *act
	return &cp, nil
}

func (r *fakeActionRepo) ListByInstance(ctx context.Context, instanceID string) ([]models.ApprovalAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ApprovalAction
	for _, act := range r.actions {
		if act.InstanceID == instanceID {
			out = append(out, *act)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StageOrder != out[j].StageOrder {
			return out[i].StageOrder < out[j].StageOrder
		}
		return out[i].StepOrder < out[j].StepOrder
	})
	return out, nil
}

func (r *fakeActionRepo) ListPendingByApprover(ctx context.Context, approverID string) ([]models.ApprovalAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ApprovalAction
	for _, act := range r.actions {
		if act.ApproverID == approverID && act.Status == constants.ActionStatusPending {
			out = append(out, *act)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r *fakeActionRepo) CompleteAction(ctx context.Context, actionID string, upd models.DecisionUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	act, ok := r.actions[actionID]
	if !ok || act.Status != constants.ActionStatusPending || act.ApproverID != upd.DecidedBy {
		return false, nil
	}
	act.Status = upd.Status
	act.Comments = upd.Comments
	act.Conditions = upd.Conditions
	act.DecidedBy = &upd.DecidedBy
	completed := upd.CompletedAt
	act.CompletedAt = &completed
	return true, nil
}

func (r *fakeActionRepo) ListOverduePending(ctx context.Context, now time.Time) ([]models.ApprovalAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ApprovalAction
	for _, act := range r.actions {
		if act.Status == constants.ActionStatusPending && act.DueDate.Before(now) {
			out = append(out, *act)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r *fakeActionRepo) Escalate(ctx context.Context, actionID string, upd models.EscalationUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	act, ok := r.actions[actionID]
	if !ok || act.Status != constants.ActionStatusPending || act.IsEscalated {
		return false, nil
	}
	act.ApproverID = upd.BackupApproverID
	act.ApproverName = upd.BackupApproverName
	act.IsEscalated = true
	escalatedAt := upd.EscalatedAt
	act.EscalatedAt = &escalatedAt
	reason := upd.Reason
	act.EscalationReason = &reason
	act.DueDate = upd.NewDueDate
	return true, nil
}

func (r *fakeActionRepo) MarkOverdue(ctx context.Context, actionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if act, ok := r.actions[actionID]; ok && act.Status == constants.ActionStatusPending {
		act.IsOverdue = true
	}
	return nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) addUser(id, name, role string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &models.User{ID: id, Name: name, Email: id + "@example.com", Role: role, Active: active}
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetUser(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (r *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, user := range r.users {
		out = append(out, *user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeUserRepo) IsActive(ctx context.Context, approverID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[approverID]
	return ok && user.Active, nil
}

type fakeReferenceRepo struct {
	items []models.ReferenceItem
}

func newFakeReferenceRepo() *fakeReferenceRepo {
	return &fakeReferenceRepo{
		items: []models.ReferenceItem{
			{ID: "b1", ListType: constants.ListTypeBudgetBracket, Key: constants.BracketUnder1K, Label: "Under $1,000", ThresholdCents: 0, SortOrder: 1},
			{ID: "b2", ListType: constants.ListTypeBudgetBracket, Key: constants.Bracket1KTo5K, Label: "$1,000 - $5,000", ThresholdCents: 100000, SortOrder: 2},
			{ID: "b3", ListType: constants.ListTypeBudgetBracket, Key: constants.Bracket5KTo25K, Label: "$5,000 - $25,000", ThresholdCents: 500000, SortOrder: 3},
			{ID: "b4", ListType: constants.ListTypeBudgetBracket, Key: constants.Bracket25KTo100, Label: "$25,000 - $100,000", ThresholdCents: 2500000, SortOrder: 4},
			{ID: "b5", ListType: constants.ListTypeBudgetBracket, Key: constants.BracketOver100K, Label: "Over $100,000", ThresholdCents: 10000000, SortOrder: 5},
			{ID: "a1", ListType: constants.ListTypeApprovalType, Key: "technical", Label: "Technical", SortOrder: 1},
			{ID: "a2", ListType: constants.ListTypeApprovalType, Key: "financial", Label: "Financial", SortOrder: 2},
			{ID: "a3", ListType: constants.ListTypeApprovalType, Key: "manager", Label: "Manager", SortOrder: 3},
			{ID: "a4", ListType: constants.ListTypeApprovalType, Key: "director", Label: "Director", SortOrder: 4},
		},
	}
}

func (r *fakeReferenceRepo) ListByType(ctx context.Context, listType string) ([]models.ReferenceItem, error) {
	var out []models.ReferenceItem
	for _, item := range r.items {
		if item.ListType == listType {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *fakeReferenceRepo) GetByKey(ctx context.Context, listType, key string) (*models.ReferenceItem, error) {
	for _, item := range r.items {
		if item.ListType == listType && item.Key == key {
			cp := item
			return &cp, nil
		}
	}
	return nil, nil
}

// testEnv bundles the fully wired service stack over fakes.
type testEnv struct {
	clock       *fakeClock
	templates   *fakeTemplateRepo
	instances   *fakeInstanceRepo
	actions     *fakeActionRepo
	users       *fakeUserRepo
	refs        *fakeReferenceRepo
	Templates   *TemplateService
	Submission  *SubmissionService
	Progression *ProgressionService
	Decisions   *DecisionService
	Escalation  *EscalationService
	Audit       *AuditService
}

func newTestEnv(start time.Time) *testEnv {
	env := &testEnv{
		clock:     newFakeClock(start),
		templates: newFakeTemplateRepo(),
		actions:   newFakeActionRepo(),
		users:     newFakeUserRepo(),
		refs:      newFakeReferenceRepo(),
	}
	env.instances = newFakeInstanceRepo(env.templates)

	tx := &serialTx{}
	env.Templates = NewTemplateService(env.templates, env.refs, env.users, tx, env.clock)
	env.Progression = NewProgressionService(env.instances, env.actions, env.clock)
	env.Submission = NewSubmissionService(env.templates, env.instances, env.Progression, tx, env.clock)
	env.Decisions = NewDecisionService(env.actions, env.instances, env.Progression, tx, env.clock)
	env.Escalation = NewEscalationService(env.actions, env.instances, env.users, env.clock)
	env.Audit = NewAuditService(env.instances, env.actions, env.clock)
	return env
}
