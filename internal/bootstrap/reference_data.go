package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
)

// referenceSeed is the built-in reference catalog. Bracket thresholds
// are inclusive lower bounds in cents: a stage's bracket pulls the
// stage into an instance when the request amount reaches the threshold.
var referenceSeed = []models.ReferenceItem{
	{ID: "ref-bracket-under-1k", ListType: constants.ListTypeBudgetBracket, Key: constants.BracketUnder1K, Label: "Under $1,000", ThresholdCents: 0, SortOrder: 1},
	{ID: "ref-bracket-1k-5k", ListType: constants.ListTypeBudgetBracket, Key: constants.Bracket1KTo5K, Label: "$1,000 - $5,000", ThresholdCents: 100000, SortOrder: 2},
	{ID: "ref-bracket-5k-25k", ListType: constants.ListTypeBudgetBracket, Key: constants.Bracket5KTo25K, Label: "$5,000 - $25,000", ThresholdCents: 500000, SortOrder: 3},
	{ID: "ref-bracket-25k-100k", ListType: constants.ListTypeBudgetBracket, Key: constants.Bracket25KTo100, Label: "$25,000 - $100,000", ThresholdCents: 2500000, SortOrder: 4},
	{ID: "ref-bracket-over-100k", ListType: constants.ListTypeBudgetBracket, Key: constants.BracketOver100K, Label: "Over $100,000", ThresholdCents: 10000000, SortOrder: 5},

	{ID: "ref-approval-technical", ListType: constants.ListTypeApprovalType, Key: "technical", Label: "Technical", SortOrder: 1},
	{ID: "ref-approval-financial", ListType: constants.ListTypeApprovalType, Key: "financial", Label: "Financial", SortOrder: 2},
	{ID: "ref-approval-manager", ListType: constants.ListTypeApprovalType, Key: "manager", Label: "Manager", SortOrder: 3},
	{ID: "ref-approval-director", ListType: constants.ListTypeApprovalType, Key: "director", Label: "Director", SortOrder: 4},
	{ID: "ref-approval-legal", ListType: constants.ListTypeApprovalType, Key: "legal", Label: "Legal", SortOrder: 5},
	{ID: "ref-approval-procurement", ListType: constants.ListTypeApprovalType, Key: "procurement", Label: "Procurement", SortOrder: 6},

	{ID: "ref-doc-purchase-request", ListType: constants.ListTypeDocumentType, Key: "purchase_request", Label: "Purchase Request", SortOrder: 1},
	{ID: "ref-doc-vendor-quote", ListType: constants.ListTypeDocumentType, Key: "vendor_quote", Label: "Vendor Quote", SortOrder: 2},
	{ID: "ref-doc-budget-justification", ListType: constants.ListTypeDocumentType, Key: "budget_justification", Label: "Budget Justification", SortOrder: 3},
	{ID: "ref-doc-contract-draft", ListType: constants.ListTypeDocumentType, Key: "contract_draft", Label: "Contract Draft", SortOrder: 4},
}

// InitializeReferenceData upserts the reference catalog. Labels and
// thresholds follow the seed on every startup so catalog fixes ship
// with the binary.
func InitializeReferenceData(db *database.Connection) error {
	log.Println("🔧 Initializing reference catalog...")

	query := fmt.Sprintf(`
		INSERT INTO %s (id, list_type, item_key, label, threshold_cents, sort_order)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE label = VALUES(label), threshold_cents = VALUES(threshold_cents), sort_order = VALUES(sort_order)
	`, constants.TableReferenceList)

	ctx := context.Background()
	for _, item := range referenceSeed {
		if _, err := db.ExecContext(ctx, query,
			item.ID, item.ListType, item.Key, item.Label, item.ThresholdCents, item.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to seed reference item %s/%s: %w", item.ListType, item.Key, err)
		}
	}

	log.Printf("   ✅ Ensured %d reference items", len(referenceSeed))
	return nil
}
