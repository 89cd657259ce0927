package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/pkg/constants"
)

func twoStepStage(requiresAll, parallel bool) *models.SnapshotStage {
	return &models.SnapshotStage{
		StageOrder:       1,
		StageName:        "Financial review",
		RequiresAllSteps: requiresAll,
		IsParallel:       parallel,
		Steps: []models.SnapshotStep{
			{StepOrder: 1, StepName: "Finance officer", PrimaryApproverID: "u-fin"},
			{StepOrder: 2, StepName: "Controller", PrimaryApproverID: "u-ctl"},
		},
	}
}

func action(stage, step int, status string) models.ApprovalAction {
	return models.ApprovalAction{
		InstanceID: "inst-1",
		StageOrder: stage,
		StepOrder:  step,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestEvaluateStage_RequiresAll(t *testing.T) {
	stage := twoStepStage(true, true)

	tests := []struct {
		name     string
		actions  []models.ApprovalAction
		expected StageOutcome
	}{
		{"no actions yet", nil, StageIncomplete},
		{"one approved, one pending", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusApproved),
			action(1, 2, constants.ActionStatusPending),
		}, StageIncomplete},
		{"both approved", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusApproved),
			action(1, 2, constants.ActionStatusApproved),
		}, StageComplete},
		{"conditional counts as accepting", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusConditional),
			action(1, 2, constants.ActionStatusApproved),
		}, StageComplete},
		{"single refusal fails immediately", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusRefused),
			action(1, 2, constants.ActionStatusPending),
		}, StageFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EvaluateStage(stage, tc.actions))
		})
	}
}

func TestEvaluateStage_AnySemantics(t *testing.T) {
	stage := twoStepStage(false, true)

	tests := []struct {
		name     string
		actions  []models.ApprovalAction
		expected StageOutcome
	}{
		{"one acceptance completes", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusApproved),
			action(1, 2, constants.ActionStatusPending),
		}, StageComplete},
		{"one refusal with a pending sibling stays open", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusRefused),
			action(1, 2, constants.ActionStatusPending),
		}, StageIncomplete},
		{"one refusal with an unactivated sibling stays open", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusRefused),
		}, StageIncomplete},
		{"all steps refused fails", []models.ApprovalAction{
			action(1, 1, constants.ActionStatusRefused),
			action(1, 2, constants.ActionStatusRefused),
		}, StageFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EvaluateStage(stage, tc.actions))
		})
	}
}

func TestEvaluateStage_ActionsFromOtherStagesIgnored(t *testing.T) {
	stage := twoStepStage(true, true)

	actions := []models.ApprovalAction{
		action(2, 1, constants.ActionStatusRefused), // different stage
		action(1, 1, constants.ActionStatusApproved),
		action(1, 2, constants.ActionStatusApproved),
	}
	assert.Equal(t, StageComplete, EvaluateStage(stage, actions))
}

func TestEvaluateStage_EmptyStageFails(t *testing.T) {
	assert.Equal(t, StageFailed, EvaluateStage(nil, nil))
	assert.Equal(t, StageFailed, EvaluateStage(&models.SnapshotStage{StageOrder: 1}, nil))
}

func TestNextPendingStep(t *testing.T) {
	stage := twoStepStage(false, false)

	// Nothing decided: first step is next.
	next := NextPendingStep(stage, nil)
	assert.Equal(t, 1, next.StepOrder)

	// First refused: second step is next.
	next = NextPendingStep(stage, []models.ApprovalAction{
		action(1, 1, constants.ActionStatusRefused),
	})
	assert.Equal(t, 2, next.StepOrder)

	// Everything decided: nil.
	next = NextPendingStep(stage, []models.ApprovalAction{
		action(1, 1, constants.ActionStatusRefused),
		action(1, 2, constants.ActionStatusRefused),
	})
	assert.Nil(t, next)
}
