package constants

// Instance overall status constants
const (
	InstanceStatusDraft    = "draft"
	InstanceStatusPending  = "pending"
	InstanceStatusApproved = "approved"
	InstanceStatusRefused  = "refused"
)

// Action status constants. Approved and conditional are both accepting
// terminal states; refused is the rejecting terminal state.
const (
	ActionStatusPending     = "pending"
	ActionStatusApproved    = "approved"
	ActionStatusConditional = "conditional"
	ActionStatusRefused     = "refused"
)

// Owning entity types for workflow templates
const (
	EntityTypeConsortium = "consortium"
	EntityTypeTeam       = "team"
	EntityTypeProject    = "project"
)

// Budget bracket keys, ordered by ascending threshold. The threshold is
// the smallest amount (in cents) that pulls the bracket's stage into a
// submission.
const (
	BracketUnder1K  = "under_1k"  // $0
	Bracket1KTo5K   = "1k_5k"     // $1,000
	Bracket5KTo25K  = "5k_25k"    // $5,000
	Bracket25KTo100 = "25k_100k"  // $25,000
	BracketOver100K = "over_100k" // $100,000
)

// Reference list types (seeded by bootstrap)
const (
	ListTypeBudgetBracket = "budget_bracket"
	ListTypeApprovalType  = "approval_type"
	ListTypeDocumentType  = "document_type"
)

// SnapshotVersion is the current schema version of the instance
// snapshot document. Bump when the snapshot layout changes.
const SnapshotVersion = 1

// Scheduler defaults
const (
	// SweepDefaultSchedule runs the escalation sweep every 15 minutes.
	SweepDefaultSchedule = "*/15 * * * *"
	// DefaultTimeoutDays applies when a step does not set its own timeout.
	DefaultTimeoutDays = 3
)
