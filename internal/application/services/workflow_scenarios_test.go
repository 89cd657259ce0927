package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
)

var testStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func adminSession() *auth.UserSession {
	return &auth.UserSession{ID: "admin-1", Name: "Admin", Role: constants.RoleAdmin}
}

func session(id string) *auth.UserSession {
	return &auth.UserSession{ID: id, Name: id, Role: constants.RoleApprover}
}

// buildStandardTemplate wires the canonical four-stage template for
// team-9 and activates it:
//
//	stage 1  under_1k   sequential  requires-all  technical
//	stage 2  1k_5k      sequential  requires-all  financial
//	stage 3  5k_25k     parallel    requires-all  manager + director (backup)
//	stage 4  25k_100k   parallel    any           manager + director
func buildStandardTemplate(t *testing.T, env *testEnv) *models.WorkflowTemplate {
	t.Helper()
	ctx := context.Background()
	admin := adminSession()

	env.users.addUser("user-tech", "Tech Lead", constants.RoleApprover, true)
	env.users.addUser("user-fin", "Finance Lead", constants.RoleApprover, true)
	env.users.addUser("user-mgr", "Manager", constants.RoleApprover, true)
	env.users.addUser("user-dir", "Director", constants.RoleApprover, true)
	env.users.addUser("user-backup", "Backup Director", constants.RoleApprover, true)

	tpl, err := env.Templates.CreateTemplate(ctx, &CreateTemplateRequest{
		Name:       "Standard Purchase Approval",
		EntityType: constants.EntityTypeTeam,
		EntityID:   "team-9",
	}, admin)
	require.NoError(t, err)

	type stageSpec struct {
		order       int
		name        string
		bracket     string
		requiresAll bool
		parallel    bool
	}
	stages := []stageSpec{
		{1, "Basic Review", constants.BracketUnder1K, true, false},
		{2, "Financial Review", constants.Bracket1KTo5K, true, false},
		{3, "Management Review", constants.Bracket5KTo25K, true, true},
		{4, "Executive Review", constants.Bracket25KTo100, false, true},
	}
	stageIDs := make(map[int]string)
	for _, spec := range stages {
		stage, err := env.Templates.AddStage(ctx, &AddStageRequest{
			TemplateID:       tpl.ID,
			StageOrder:       spec.order,
			StageName:        spec.name,
			BracketKey:       spec.bracket,
			RequiresAllSteps: spec.requiresAll,
			IsParallel:       spec.parallel,
		}, admin)
		require.NoError(t, err)
		stageIDs[spec.order] = stage.ID
	}

	backup := "user-backup"
	type stepSpec struct {
		stage    int
		order    int
		approval string
		approver string
		backup   *string
	}
	steps := []stepSpec{
		{1, 1, "technical", "user-tech", nil},
		{2, 1, "financial", "user-fin", nil},
		{3, 1, "manager", "user-mgr", nil},
		{3, 2, "director", "user-dir", &backup},
		{4, 1, "manager", "user-mgr", nil},
		{4, 2, "director", "user-dir", nil},
	}
	for _, spec := range steps {
		_, err := env.Templates.AddStep(ctx, &AddStepRequest{
			StageID:           stageIDs[spec.stage],
			StepOrder:         spec.order,
			ApprovalTypeKey:   spec.approval,
			PrimaryApproverID: spec.approver,
			BackupApproverID:  spec.backup,
			TimeoutDays:       3,
		}, admin)
		require.NoError(t, err)
	}

	require.NoError(t, env.Templates.Activate(ctx, tpl.ID, admin))
	return tpl
}

func submit(t *testing.T, env *testEnv, requestID string, amountCents int64) *models.ApprovalInstance {
	t.Helper()
	inst, err := env.Submission.Submit(context.Background(), &SubmitRequest{
		RequestID:   requestID,
		EntityType:  constants.EntityTypeTeam,
		EntityID:    "team-9",
		AmountCents: amountCents,
	}, session("user-req"))
	require.NoError(t, err)
	return inst
}

func decide(t *testing.T, env *testEnv, actionID, userID, decision string) *models.ApprovalAction {
	t.Helper()
	act, err := env.Decisions.RecordDecision(context.Background(), &DecisionRequest{
		ActionID: actionID,
		Decision: decision,
	}, session(userID))
	require.NoError(t, err)
	return act
}

func pendingFor(t *testing.T, env *testEnv, userID string) []models.ApprovalAction {
	t.Helper()
	actions, err := env.Decisions.ListPendingForApprover(context.Background(), userID)
	require.NoError(t, err)
	return actions
}

func TestSubmitResolvesStagesByAmount(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)

	cases := []struct {
		name        string
		amountCents int64
		wantStages  []int
	}{
		{"small purchase", 40000, []int{1}},            // $400
		{"mid purchase", 400000, []int{1, 2}},          // $4,000
		{"large purchase", 600000, []int{1, 2, 3}},     // $6,000
		{"huge purchase", 20000000, []int{1, 2, 3, 4}}, // $200,000
		{"exact threshold", 500000, []int{1, 2, 3}},    // $5,000 inclusive
		{"just below threshold", 499999, []int{1, 2}},  // $4,999.99
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := submit(t, env, "req-resolve-"+string(rune('a'+i)), tc.amountCents)
			var got []int
			for _, stage := range inst.Snapshot.Stages {
				got = append(got, stage.StageOrder)
			}
			assert.Equal(t, tc.wantStages, got)
			assert.Equal(t, constants.InstanceStatusPending, inst.OverallStatus)
			assert.Equal(t, tc.wantStages[0], inst.CurrentStageOrder)
		})
	}
}

func TestSubmitWithoutActiveTemplate(t *testing.T) {
	env := newTestEnv(testStart)

	_, err := env.Submission.Submit(context.Background(), &SubmitRequest{
		RequestID:   "req-1",
		EntityType:  constants.EntityTypeTeam,
		EntityID:    "team-without-workflow",
		AmountCents: 100000,
	}, session("user-req"))
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "NO_WORKFLOW_CONFIGURED", appErr.Code())
}

func TestSubmitRejectsStepLessStage(t *testing.T) {
	env := newTestEnv(testStart)
	ctx := context.Background()
	admin := adminSession()

	env.users.addUser("user-fin", "Finance Lead", constants.RoleApprover, true)

	tpl, err := env.Templates.CreateTemplate(ctx, &CreateTemplateRequest{
		Name:       "Mid-range Purchases",
		EntityType: constants.EntityTypeTeam,
		EntityID:   "team-9",
	}, admin)
	require.NoError(t, err)

	stage, err := env.Templates.AddStage(ctx, &AddStageRequest{
		TemplateID:       tpl.ID,
		StageOrder:       2,
		StageName:        "Financial Review",
		BracketKey:       constants.Bracket1KTo5K,
		RequiresAllSteps: true,
	}, admin)
	require.NoError(t, err)
	_, err = env.Templates.AddStep(ctx, &AddStepRequest{
		StageID:           stage.ID,
		StepOrder:         1,
		ApprovalTypeKey:   "financial",
		PrimaryApproverID: "user-fin",
		TimeoutDays:       3,
	}, admin)
	require.NoError(t, err)
	require.NoError(t, env.Templates.Activate(ctx, tpl.ID, admin))

	// The template is active but unused, so it is still editable. A
	// low-bracket stage attached now has no steps.
	_, err = env.Templates.AddStage(ctx, &AddStageRequest{
		TemplateID:       tpl.ID,
		StageOrder:       1,
		StageName:        "Basic Review",
		BracketKey:       constants.BracketUnder1K,
		RequiresAllSteps: true,
	}, admin)
	require.NoError(t, err)

	// A small amount resolves only the step-less stage; the request
	// cannot be routed and nothing is persisted.
	_, err = env.Submission.Submit(ctx, &SubmitRequest{
		RequestID:   "req-stepless",
		EntityType:  constants.EntityTypeTeam,
		EntityID:    "team-9",
		AmountCents: 50000, // $500
	}, session("user-req"))
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "NO_WORKFLOW_CONFIGURED", appErr.Code())

	_, err = env.Submission.GetInstanceByRequest(ctx, "req-stepless")
	require.Error(t, err)
}

func TestSubmitTwiceRejected(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)

	first := submit(t, env, "req-dup", 400000)

	_, err := env.Submission.Submit(context.Background(), &SubmitRequest{
		RequestID:   "req-dup",
		EntityType:  constants.EntityTypeTeam,
		EntityID:    "team-9",
		AmountCents: 400000,
	}, session("user-req"))
	require.Error(t, err)
	dupErr, ok := err.(*errors.AlreadySubmittedError)
	require.True(t, ok)
	assert.Equal(t, first.ID, dupErr.InstanceID)
}

func TestSequentialApprovalToCompletion(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-seq", 400000) // $4,000 → stages 1, 2

	// Only the first stage's action exists; stage 2 is not activated.
	techPending := pendingFor(t, env, "user-tech")
	require.Len(t, techPending, 1)
	assert.Empty(t, pendingFor(t, env, "user-fin"))

	decide(t, env, techPending[0].ID, "user-tech", constants.ActionStatusApproved)

	// Cursor moved to stage 2 and its action was created.
	current, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.CurrentStageOrder)
	assert.Equal(t, constants.InstanceStatusPending, current.OverallStatus)

	finPending := pendingFor(t, env, "user-fin")
	require.Len(t, finPending, 1)
	decide(t, env, finPending[0].ID, "user-fin", constants.ActionStatusApproved)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusApproved, final.OverallStatus)
	require.NotNil(t, final.CompletedAt)
}

func TestRefusalTerminatesInstance(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-refuse", 400000)

	techPending := pendingFor(t, env, "user-tech")
	decide(t, env, techPending[0].ID, "user-tech", constants.ActionStatusApproved)

	finPending := pendingFor(t, env, "user-fin")
	decide(t, env, finPending[0].ID, "user-fin", constants.ActionStatusRefused)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusRefused, final.OverallStatus)
	require.NotNil(t, final.CompletedAt)

	// No further stage was activated and the terminal state is final.
	assert.Empty(t, pendingFor(t, env, "user-mgr"))
}

func TestParallelRequiresAllSteps(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-par", 600000) // $6,000 → stages 1, 2, 3

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-fin")[0].ID, "user-fin", constants.ActionStatusApproved)

	// Stage 3 is parallel: both actions assigned at once.
	mgrPending := pendingFor(t, env, "user-mgr")
	dirPending := pendingFor(t, env, "user-dir")
	require.Len(t, mgrPending, 1)
	require.Len(t, dirPending, 1)

	decide(t, env, mgrPending[0].ID, "user-mgr", constants.ActionStatusApproved)

	// One of two approvals is not enough for a requires-all stage.
	mid, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusPending, mid.OverallStatus)
	assert.Equal(t, 3, mid.CurrentStageOrder)

	// A conditional approval is an accepting decision.
	conditions := "subject to revised quote"
	_, err = env.Decisions.RecordDecision(ctx, &DecisionRequest{
		ActionID:   dirPending[0].ID,
		Decision:   constants.ActionStatusConditional,
		Conditions: &conditions,
	}, session("user-dir"))
	require.NoError(t, err)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusApproved, final.OverallStatus)
}

func TestConcurrentParallelDecisionsCompleteStageOnce(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-concurrent", 600000) // $6,000 → stages 1, 2, 3

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-fin")[0].ID, "user-fin", constants.ActionStatusApproved)

	mgrAction := pendingFor(t, env, "user-mgr")[0]
	dirAction := pendingFor(t, env, "user-dir")[0]

	// Both approvers of the requires-all stage decide at the same time.
	// Decisions on an instance serialize on its row, so the second one
	// sees the first's committed action and completes the stage.
	var wg sync.WaitGroup
	var mgrErr, dirErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, mgrErr = env.Decisions.RecordDecision(ctx, &DecisionRequest{
			ActionID: mgrAction.ID,
			Decision: constants.ActionStatusApproved,
		}, session("user-mgr"))
	}()
	go func() {
		defer wg.Done()
		_, dirErr = env.Decisions.RecordDecision(ctx, &DecisionRequest{
			ActionID: dirAction.ID,
			Decision: constants.ActionStatusApproved,
		}, session("user-dir"))
	}()
	wg.Wait()

	require.NoError(t, mgrErr)
	require.NoError(t, dirErr)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusApproved, final.OverallStatus)
	require.NotNil(t, final.CompletedAt)

	// Exactly one writer moved the instance into its terminal status.
	assert.Equal(t, 1, env.instances.completionCount())
}

func TestConcurrentDecisionAndSweep(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	submit(t, env, "req-race", 600000) // reaches stage 3

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-fin")[0].ID, "user-fin", constants.ActionStatusApproved)

	env.clock.Advance(4 * 24 * time.Hour)
	dirAction := pendingFor(t, env, "user-dir")[0]

	// The primary's decision and the escalation sweep race for the same
	// action; the row guards let exactly one of them win.
	var wg sync.WaitGroup
	var decideErr, sweepErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, decideErr = env.Decisions.RecordDecision(ctx, &DecisionRequest{
			ActionID: dirAction.ID,
			Decision: constants.ActionStatusApproved,
		}, session("user-dir"))
	}()
	go func() {
		defer wg.Done()
		_, sweepErr = env.Escalation.SweepOnce(ctx)
	}()
	wg.Wait()
	require.NoError(t, sweepErr)

	current, err := env.actions.GetAction(ctx, dirAction.ID)
	require.NoError(t, err)
	require.NotNil(t, current)

	if current.IsEscalated {
		// The sweep won: the action belongs to the backup and the
		// primary's decision was rejected, not silently recorded.
		assert.Equal(t, "user-backup", current.ApproverID)
		require.Error(t, decideErr)
		appErr, ok := decideErr.(errors.AppError)
		require.True(t, ok)
		assert.Contains(t, []string{"APPROVER_MISMATCH", "ACTION_NOT_PENDING"}, appErr.Code())
	} else {
		// The decision won: the action is decided by the primary and the
		// sweep skipped it.
		require.NoError(t, decideErr)
		assert.Equal(t, constants.ActionStatusApproved, current.Status)
		require.NotNil(t, current.DecidedBy)
		assert.Equal(t, "user-dir", *current.DecidedBy)
	}
}

func TestAnyStageCompletesOnFirstAcceptance(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-any", 3000000) // $30,000 → stages 1..4

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-fin")[0].ID, "user-fin", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-mgr")[0].ID, "user-mgr", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-dir")[0].ID, "user-dir", constants.ActionStatusApproved)

	// Stage 4 ("any" semantics): the manager's single approval
	// completes the stage and the instance.
	mgrPending := pendingFor(t, env, "user-mgr")
	require.Len(t, mgrPending, 1)
	dirPending := pendingFor(t, env, "user-dir")
	require.Len(t, dirPending, 1)

	decide(t, env, mgrPending[0].ID, "user-mgr", constants.ActionStatusApproved)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusApproved, final.OverallStatus)

	// The sibling action is now moot; deciding it is rejected.
	_, err = env.Decisions.RecordDecision(ctx, &DecisionRequest{
		ActionID: dirPending[0].ID,
		Decision: constants.ActionStatusApproved,
	}, session("user-dir"))
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "INSTANCE_ALREADY_COMPLETE", appErr.Code())
}

func TestAnyStageFailsOnlyWhenAllRefused(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-any-refuse", 3000000)

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-fin")[0].ID, "user-fin", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-mgr")[0].ID, "user-mgr", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-dir")[0].ID, "user-dir", constants.ActionStatusApproved)

	// First refusal in the "any" stage keeps the instance open.
	decide(t, env, pendingFor(t, env, "user-mgr")[0].ID, "user-mgr", constants.ActionStatusRefused)

	mid, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusPending, mid.OverallStatus)

	// When the last potential approver also refuses, the instance fails.
	decide(t, env, pendingFor(t, env, "user-dir")[0].ID, "user-dir", constants.ActionStatusRefused)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusRefused, final.OverallStatus)
}

func TestDecisionGuards(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	submit(t, env, "req-guards", 400000)
	techAction := pendingFor(t, env, "user-tech")[0]

	// Wrong approver.
	_, err := env.Decisions.RecordDecision(ctx, &DecisionRequest{
		ActionID: techAction.ID,
		Decision: constants.ActionStatusApproved,
	}, session("user-fin"))
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "APPROVER_MISMATCH", appErr.Code())

	// Conditional approval needs conditions.
	_, err = env.Decisions.RecordDecision(ctx, &DecisionRequest{
		ActionID: techAction.ID,
		Decision: constants.ActionStatusConditional,
	}, session("user-tech"))
	require.Error(t, err)

	// Decisions are append-only: a decided action cannot be re-decided.
	decide(t, env, techAction.ID, "user-tech", constants.ActionStatusApproved)
	_, err = env.Decisions.RecordDecision(ctx, &DecisionRequest{
		ActionID: techAction.ID,
		Decision: constants.ActionStatusRefused,
	}, session("user-tech"))
	require.Error(t, err)
	appErr, ok = err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "ACTION_NOT_PENDING", appErr.Code())
}

func TestSnapshotImmuneToTemplateEdits(t *testing.T) {
	env := newTestEnv(testStart)
	tpl := buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-frozen", 400000)
	require.Equal(t, "Basic Review", inst.Snapshot.Stages[0].StageName)

	// Mutate the stored template behind the service's back.
	env.templates.mu.Lock()
	for _, stage := range env.templates.stages {
		if stage.TemplateID == tpl.ID {
			stage.StageName = "Renamed " + stage.StageName
			for i := range stage.Steps {
				stage.Steps[i].PrimaryApproverID = "someone-else"
			}
		}
	}
	env.templates.mu.Unlock()

	// The in-flight instance still progresses on its frozen snapshot.
	reloaded, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "Basic Review", reloaded.Snapshot.Stages[0].StageName)

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)

	// The stage-2 action goes to the snapshot's approver, not the
	// edited template's.
	finPending := pendingFor(t, env, "user-fin")
	require.Len(t, finPending, 1)
}

func TestEscalationSweep(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-escalate", 600000) // reaches stage 3

	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-fin")[0].ID, "user-fin", constants.ActionStatusApproved)

	// Let both stage-3 actions pass their 3-day timeout.
	env.clock.Advance(4 * 24 * time.Hour)

	result, err := env.Escalation.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	// Only the director step names a backup; the manager step is merely
	// flagged overdue.
	assert.Equal(t, 1, result.Escalated)
	assert.Equal(t, 1, result.Overdue)

	backupPending := pendingFor(t, env, "user-backup")
	require.Len(t, backupPending, 1)
	assert.True(t, backupPending[0].IsEscalated)
	require.NotNil(t, backupPending[0].EscalationReason)

	// The original approver lost the action; the sweep is idempotent.
	assert.Empty(t, pendingFor(t, env, "user-dir"))
	_, err = env.Decisions.RecordDecision(ctx, &DecisionRequest{
		ActionID: backupPending[0].ID,
		Decision: constants.ActionStatusApproved,
	}, session("user-dir"))
	var mismatch *errors.ApproverMismatchError
	require.ErrorAs(t, err, &mismatch)

	again, err := env.Escalation.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Escalated)

	// The backup decides; the manager approves; the instance completes.
	decide(t, env, backupPending[0].ID, "user-backup", constants.ActionStatusApproved)
	decide(t, env, pendingFor(t, env, "user-mgr")[0].ID, "user-mgr", constants.ActionStatusApproved)

	final, err := env.Submission.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InstanceStatusApproved, final.OverallStatus)
}

func TestTemplateFrozenAfterFirstInstance(t *testing.T) {
	env := newTestEnv(testStart)
	tpl := buildStandardTemplate(t, env)

	submit(t, env, "req-freeze", 400000)

	_, err := env.Templates.AddStage(context.Background(), &AddStageRequest{
		TemplateID: tpl.ID,
		StageOrder: 5,
		StageName:  "Late Addition",
		BracketKey: constants.BracketOver100K,
	}, adminSession())
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.HTTPStatus())
}

func TestAuditProgressView(t *testing.T) {
	env := newTestEnv(testStart)
	buildStandardTemplate(t, env)
	ctx := context.Background()

	inst := submit(t, env, "req-audit", 600000)
	decide(t, env, pendingFor(t, env, "user-tech")[0].ID, "user-tech", constants.ActionStatusApproved)

	progress, err := env.Audit.GetProgress(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, progress.Stages, 3)

	assert.Len(t, progress.Stages[0].Actions, 1)
	assert.True(t, progress.Stages[1].IsCurrent)
	// The future stage exists in the view but has no actions yet.
	assert.Empty(t, progress.Stages[2].Actions)

	history, err := env.Audit.ActionHistory(ctx, inst.ID, "status == 'approved'")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "user-tech", history[0].ApproverID)
}
