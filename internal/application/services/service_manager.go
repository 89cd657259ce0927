package services

import (
	"time"

	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/internal/infrastructure/persistence"
)

// systemClock is the production ports.Clock
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	db *database.Connection

	TxManager   *persistence.TransactionManager
	Auth        *AuthService
	Templates   *TemplateService
	Submission  *SubmissionService
	Progression *ProgressionService
	Decisions   *DecisionService
	Escalation  *EscalationService
	Audit       *AuditService
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(db *database.Connection) *ServiceManager {
	sm := &ServiceManager{db: db}
	clock := systemClock{}

	sm.TxManager = persistence.NewTransactionManager(db)

	templateRepo := persistence.NewTemplateRepository(db)
	instanceRepo := persistence.NewInstanceRepository(db)
	actionRepo := persistence.NewActionRepository(db)
	userRepo := persistence.NewUserRepository(db)
	referenceRepo := persistence.NewReferenceRepository(db)

	sm.Auth = NewAuthService(userRepo, clock)
	sm.Templates = NewTemplateService(templateRepo, referenceRepo, userRepo, sm.TxManager, clock)
	sm.Progression = NewProgressionService(instanceRepo, actionRepo, clock)
	sm.Submission = NewSubmissionService(templateRepo, instanceRepo, sm.Progression, sm.TxManager, clock)
	sm.Decisions = NewDecisionService(actionRepo, instanceRepo, sm.Progression, sm.TxManager, clock)
	sm.Escalation = NewEscalationService(actionRepo, instanceRepo, userRepo, clock)
	sm.Audit = NewAuditService(instanceRepo, actionRepo, clock)

	return sm
}

// StartSweeper starts the escalation sweep loop in the background.
// Call during server startup.
func (sm *ServiceManager) StartSweeper() {
	go sm.Escalation.Start()
}

// StopSweeper stops the escalation sweep loop gracefully.
// Call during server shutdown.
func (sm *ServiceManager) StopSweeper() {
	sm.Escalation.Stop()
}
