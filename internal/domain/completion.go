package domain

import (
	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/pkg/constants"
)

// StageOutcome is the result of evaluating a stage against its recorded
// actions.
type StageOutcome int

const (
	// StageIncomplete means at least one decision is still outstanding
	StageIncomplete StageOutcome = iota
	// StageComplete means the stage's completion policy is satisfied
	StageComplete
	// StageFailed means the stage can no longer complete; the instance
	// is refused
	StageFailed
)

func (o StageOutcome) String() string {
	switch o {
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	default:
		return "incomplete"
	}
}

// EvaluateStage computes the outcome of one stage from the actions
// recorded against it. Only the most recent action per step counts
// (escalation reassigns an action in place, it never creates a second
// one, so in practice there is at most one action per step).
//
// Policy matrix:
//   - RequiresAllSteps: every step needs an accepting decision; a
//     single refusal fails the stage immediately (non-recoverable).
//   - Otherwise ("any" semantics): one accepting decision completes the
//     stage; a refusal fails it only when every step of the stage has
//     been decided and none accepted — as long as a step is pending or
//     not yet activated, the stage stays open.
func EvaluateStage(stage *models.SnapshotStage, actions []models.ApprovalAction) StageOutcome {
	if stage == nil || len(stage.Steps) == 0 {
		return StageFailed
	}

	latest := latestActionsByStep(stage.StageOrder, actions)

	if stage.RequiresAllSteps {
		accepted := 0
		for _, step := range stage.Steps {
			act, ok := latest[step.StepOrder]
			if !ok || !act.IsTerminal() {
				continue
			}
			if act.Status == constants.ActionStatusRefused {
				return StageFailed
			}
			if act.IsAccepting() {
				accepted++
			}
		}
		if accepted == len(stage.Steps) {
			return StageComplete
		}
		return StageIncomplete
	}

	// "Any" semantics.
	refused := 0
	for _, step := range stage.Steps {
		act, ok := latest[step.StepOrder]
		if !ok {
			continue
		}
		if act.IsAccepting() {
			return StageComplete
		}
		if act.Status == constants.ActionStatusRefused {
			refused++
		}
	}
	if refused == len(stage.Steps) {
		return StageFailed
	}
	return StageIncomplete
}

// NextPendingStep returns the lowest-order step of a sequential stage
// that has no terminal action yet, or nil when every step is decided.
// Used to move the step cursor forward after a refusal in an "any"
// stage, and after an acceptance in a requires-all stage.
func NextPendingStep(stage *models.SnapshotStage, actions []models.ApprovalAction) *models.SnapshotStep {
	latest := latestActionsByStep(stage.StageOrder, actions)
	for i := range stage.Steps {
		step := &stage.Steps[i]
		act, ok := latest[step.StepOrder]
		if !ok || !act.IsTerminal() {
			return step
		}
	}
	return nil
}

func latestActionsByStep(stageOrder int, actions []models.ApprovalAction) map[int]models.ApprovalAction {
	latest := make(map[int]models.ApprovalAction)
	for _, act := range actions {
		if act.StageOrder != stageOrder {
			continue
		}
		prev, ok := latest[act.StepOrder]
		if !ok || act.CreatedAt.After(prev.CreatedAt) {
			latest[act.StepOrder] = act
		}
	}
	return latest
}
