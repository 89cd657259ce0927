package domain

import (
	"sort"

	"github.com/procureflow/backend/internal/domain/models"
)

// ResolveStages selects the stages a request must traverse, given its
// amount and the active template. A stage applies when its bracket
// threshold is less than or equal to the amount (inclusive lower
// bound); a stage whose bracket exceeds the amount is skipped entirely.
// The result is ordered by ascending stage order.
//
// An empty result means the request cannot be routed: the caller treats
// it the same as having no workflow configured and leaves the request
// in draft. No stage is ever "satisfied automatically".
func ResolveStages(tpl *models.WorkflowTemplate, amountCents int64) []models.WorkflowStage {
	if tpl == nil || amountCents < 0 {
		return nil
	}

	resolved := make([]models.WorkflowStage, 0, len(tpl.Stages))
	for _, stage := range tpl.Stages {
		if stage.ThresholdCents <= amountCents {
			resolved = append(resolved, stage)
		}
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].StageOrder < resolved[j].StageOrder
	})

	return resolved
}
