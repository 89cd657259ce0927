package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/procureflow/backend/internal/domain"
	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/utils"
)

// ProgressionService is the engine that moves an instance cursor
// forward after every recorded decision. It owns two responsibilities:
// activating the stage the cursor points at (creating pending actions
// lazily, never for future stages) and evaluating stage completion to
// advance, approve, or refuse the instance.
//
// All cursor movement goes through the repository's guarded update, so
// concurrent decisions on the same instance cannot move the cursor
// twice: the loser observes a no-op and the winner's evaluation stands.
type ProgressionService struct {
	instances ports.InstanceRepository
	actions   ports.ActionRepository
	states    *domain.InstanceStateMachine
	clock     ports.Clock
}

// NewProgressionService creates a new ProgressionService
func NewProgressionService(instances ports.InstanceRepository, actions ports.ActionRepository, clock ports.Clock) *ProgressionService {
	return &ProgressionService{
		instances: instances,
		actions:   actions,
		states:    domain.NewInstanceStateMachine(),
		clock:     clock,
	}
}

// ActivateCurrentStage creates the pending actions for the stage the
// instance cursor points at. Parallel stages activate every step at
// once; sequential stages activate only the step at the cursor. Steps
// that already have an action are skipped, so re-activation after a
// step-cursor move is idempotent.
func (s *ProgressionService) ActivateCurrentStage(ctx context.Context, inst *models.ApprovalInstance) error {
	stage := inst.CurrentStage()
	if stage == nil {
		return fmt.Errorf("instance %s cursor points at missing stage %d", inst.ID, inst.CurrentStageOrder)
	}

	existing, err := s.actions.ListByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}
	assigned := make(map[int]bool)
	for _, act := range existing {
		if act.StageOrder == stage.StageOrder {
			assigned[act.StepOrder] = true
		}
	}

	var toActivate []*models.SnapshotStep
	if stage.IsParallel {
		for i := range stage.Steps {
			if !assigned[stage.Steps[i].StepOrder] {
				toActivate = append(toActivate, &stage.Steps[i])
			}
		}
	} else {
		step := stage.StepAt(inst.CurrentStepOrder)
		if step == nil {
			return fmt.Errorf("instance %s cursor points at missing step %d.%d", inst.ID, stage.StageOrder, inst.CurrentStepOrder)
		}
		if !assigned[step.StepOrder] {
			toActivate = append(toActivate, step)
		}
	}

	now := s.clock.Now()
	for _, step := range toActivate {
		act := &models.ApprovalAction{
			ID:              utils.GenerateID(),
			InstanceID:      inst.ID,
			StageOrder:      stage.StageOrder,
			StepOrder:       step.StepOrder,
			StageName:       stage.StageName,
			StepName:        step.StepName,
			ApprovalTypeKey: step.ApprovalTypeKey,
			ApproverID:      step.PrimaryApproverID,
			ApproverName:    step.PrimaryApproverName,
			Status:          constants.ActionStatusPending,
			AssignedAt:      now,
			DueDate:         now.Add(time.Duration(step.EffectiveTimeoutDays()) * 24 * time.Hour),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.actions.CreateAction(ctx, act); err != nil {
			return err
		}
		log.Printf("📨 Action assigned: %s step %d.%d → %s (due %s)", inst.ID, act.StageOrder, act.StepOrder, act.ApproverName, act.DueDate.Format(time.RFC3339))
	}

	return nil
}

// Advance re-evaluates the instance's current stage and moves the
// cursor accordingly: to the next step of a sequential stage, to the
// next stage, or to a terminal status. A no-op on terminal instances
// and when a concurrent writer already advanced the cursor.
func (s *ProgressionService) Advance(ctx context.Context, instanceID string) error {
	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("instance %s not found during progression", instanceID)
	}
	if inst.IsTerminal() {
		return nil
	}

	stage := inst.CurrentStage()
	if stage == nil {
		return fmt.Errorf("instance %s cursor points at missing stage %d", inst.ID, inst.CurrentStageOrder)
	}

	actions, err := s.actions.ListByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}

	switch domain.EvaluateStage(stage, actions) {
	case domain.StageFailed:
		return s.refuse(ctx, inst)
	case domain.StageComplete:
		return s.completeStage(ctx, inst, stage)
	default:
		return s.advanceStepCursor(ctx, inst, stage, actions)
	}
}

// refuse terminally refuses the instance at its current cursor.
func (s *ProgressionService) refuse(ctx context.Context, inst *models.ApprovalInstance) error {
	next, err := s.states.Transition(domain.InstanceState(inst.OverallStatus), domain.TransitionRefuse)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	moved, err := s.instances.AdvanceCursor(ctx, inst.ID, inst.CurrentStageOrder, inst.CurrentStepOrder, models.CursorUpdate{
		NewStageOrder: inst.CurrentStageOrder,
		NewStepOrder:  inst.CurrentStepOrder,
		NewStatus:     string(next),
		CompletedAt:   &now,
	})
	if err != nil {
		return err
	}
	if moved {
		log.Printf("🚫 Instance refused: %s at stage %d", inst.ID, inst.CurrentStageOrder)
	}
	return nil
}

// completeStage moves to the next resolved stage, or approves the
// instance when the completed stage was the last one.
func (s *ProgressionService) completeStage(ctx context.Context, inst *models.ApprovalInstance, stage *models.SnapshotStage) error {
	next := inst.Snapshot.NextStageAfter(stage.StageOrder)
	if next == nil {
		approved, err := s.states.Transition(domain.InstanceState(inst.OverallStatus), domain.TransitionApprove)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		moved, err := s.instances.AdvanceCursor(ctx, inst.ID, inst.CurrentStageOrder, inst.CurrentStepOrder, models.CursorUpdate{
			NewStageOrder: inst.CurrentStageOrder,
			NewStepOrder:  inst.CurrentStepOrder,
			NewStatus:     string(approved),
			CompletedAt:   &now,
		})
		if err != nil {
			return err
		}
		if moved {
			log.Printf("🎉 Instance approved: %s (%d stages)", inst.ID, len(inst.Snapshot.Stages))
		}
		return nil
	}

	if len(next.Steps) == 0 {
		return fmt.Errorf("instance %s snapshot stage %d has no steps", inst.ID, next.StageOrder)
	}
	firstStep := next.Steps[0].StepOrder

	moved, err := s.instances.AdvanceCursor(ctx, inst.ID, inst.CurrentStageOrder, inst.CurrentStepOrder, models.CursorUpdate{
		NewStageOrder: next.StageOrder,
		NewStepOrder:  firstStep,
		NewStatus:     constants.InstanceStatusPending,
	})
	if err != nil {
		return err
	}
	if !moved {
		// A concurrent writer advanced the instance first; its
		// progression covers this stage.
		log.Printf("⏭️ Instance %s already advanced past stage %d, skipping", inst.ID, stage.StageOrder)
		return nil
	}

	log.Printf("➡️ Instance %s advanced to stage %d (%s)", inst.ID, next.StageOrder, next.StageName)

	inst.CurrentStageOrder = next.StageOrder
	inst.CurrentStepOrder = firstStep
	return s.ActivateCurrentStage(ctx, inst)
}

// advanceStepCursor moves the step cursor of a sequential stage to the
// next undecided step and activates it. Parallel stages have no step
// cursor to move.
func (s *ProgressionService) advanceStepCursor(ctx context.Context, inst *models.ApprovalInstance, stage *models.SnapshotStage, actions []models.ApprovalAction) error {
	if stage.IsParallel {
		return nil
	}

	next := domain.NextPendingStep(stage, actions)
	if next == nil || next.StepOrder == inst.CurrentStepOrder {
		return nil
	}

	moved, err := s.instances.AdvanceCursor(ctx, inst.ID, inst.CurrentStageOrder, inst.CurrentStepOrder, models.CursorUpdate{
		NewStageOrder: inst.CurrentStageOrder,
		NewStepOrder:  next.StepOrder,
		NewStatus:     constants.InstanceStatusPending,
	})
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	inst.CurrentStepOrder = next.StepOrder
	return s.ActivateCurrentStage(ctx, inst)
}
