package services

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/constants"
)

// EscalationService is the background sweeper that reassigns overdue
// pending actions to their backup approvers. Sweeps are idempotent: an
// action escalates at most once, and the repository guard serializes a
// sweep against a concurrent decision on the same action.
type EscalationService struct {
	actions   ports.ActionRepository
	instances ports.InstanceRepository
	directory ports.IdentityDirectory
	clock     ports.Clock

	schedule cron.Schedule
	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
	stopped  bool // Prevents double-close of stopChan
}

// NewEscalationService creates a new EscalationService. The sweep
// schedule comes from SWEEP_SCHEDULE (standard 5-field cron); an
// invalid or empty value falls back to the default.
func NewEscalationService(actions ports.ActionRepository, instances ports.InstanceRepository, directory ports.IdentityDirectory, clock ports.Clock) *EscalationService {
	expr := os.Getenv("SWEEP_SCHEDULE")
	if expr == "" {
		expr = constants.SweepDefaultSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		log.Printf("⚠️ Invalid SWEEP_SCHEDULE %q, using default %q: %v", expr, constants.SweepDefaultSchedule, err)
		schedule, _ = parser.Parse(constants.SweepDefaultSchedule)
	}

	return &EscalationService{
		actions:   actions,
		instances: instances,
		directory: directory,
		clock:     clock,
		schedule:  schedule,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. Blocks; run it in a
// goroutine.
func (s *EscalationService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Println("⏰ Escalation sweeper starting...")

	nextRun := s.schedule.Next(s.clock.Now())
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := s.clock.Now()
			if now.Before(nextRun) {
				continue
			}
			nextRun = s.schedule.Next(now)
			if _, err := s.SweepOnce(context.Background()); err != nil {
				log.Printf("⚠️ Escalation sweep failed: %v", err)
			}
		case <-s.stopChan:
			log.Println("⏰ Escalation sweeper stopped")
			return
		}
	}
}

// Stop gracefully stops the sweep loop
func (s *EscalationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.stopped {
		return
	}
	s.running = false
	s.stopped = true
	close(s.stopChan)
}

// SweepResult summarizes one sweep pass
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Overdue   int `json:"overdue"`
}

// SweepOnce scans pending actions past their due date. Actions whose
// step allows escalation and names an active backup are reassigned;
// everything else is flagged overdue for reporting. An action that was
// decided between the scan and the update is skipped silently.
func (s *EscalationService) SweepOnce(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()

	overdue, err := s.actions.ListOverduePending(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(overdue)}
	for i := range overdue {
		act := &overdue[i]
		if err := s.sweepAction(ctx, act, now, result); err != nil {
			// One bad action must not stall the sweep.
			log.Printf("⚠️ Failed to sweep action %s: %v", act.ID, err)
		}
	}

	if result.Scanned > 0 {
		log.Printf("🧹 Escalation sweep: %d scanned, %d escalated, %d flagged overdue",
			result.Scanned, result.Escalated, result.Overdue)
	}
	return result, nil
}

func (s *EscalationService) sweepAction(ctx context.Context, act *models.ApprovalAction, now time.Time, result *SweepResult) error {
	// An action escalates once; a still-pending escalated action is just
	// overdue on its backup.
	if act.IsEscalated {
		return s.flagOverdue(ctx, act, result)
	}

	inst, err := s.instances.GetInstance(ctx, act.InstanceID)
	if err != nil {
		return err
	}
	if inst == nil || inst.IsTerminal() {
		return nil
	}

	stage := inst.Snapshot.StageAt(act.StageOrder)
	if stage == nil {
		return s.flagOverdue(ctx, act, result)
	}
	step := stage.StepAt(act.StepOrder)
	if step == nil || !step.AutoEscalate || !step.HasBackup() {
		return s.flagOverdue(ctx, act, result)
	}

	backupActive, err := s.directory.IsActive(ctx, *step.BackupApproverID)
	if err != nil {
		return err
	}
	if !backupActive {
		return s.flagOverdue(ctx, act, result)
	}

	reason := "primary approver overdue"
	primaryActive, err := s.directory.IsActive(ctx, step.PrimaryApproverID)
	if err != nil {
		return err
	}
	if !primaryActive {
		reason = "primary approver inactive"
	}

	backupName := ""
	if step.BackupApproverName != nil {
		backupName = *step.BackupApproverName
	}

	escalated, err := s.actions.Escalate(ctx, act.ID, models.EscalationUpdate{
		BackupApproverID:   *step.BackupApproverID,
		BackupApproverName: backupName,
		EscalatedAt:        now,
		NewDueDate:         now.Add(time.Duration(step.EffectiveTimeoutDays()) * 24 * time.Hour),
		Reason:             reason,
	})
	if err != nil {
		return err
	}
	if escalated {
		result.Escalated++
		log.Printf("📤 Action escalated: %s step %d.%d → %s (%s)", act.InstanceID, act.StageOrder, act.StepOrder, backupName, reason)
	}
	return nil
}

func (s *EscalationService) flagOverdue(ctx context.Context, act *models.ApprovalAction, result *SweepResult) error {
	if act.IsOverdue {
		return nil
	}
	if err := s.actions.MarkOverdue(ctx, act.ID); err != nil {
		return err
	}
	result.Overdue++
	return nil
}
