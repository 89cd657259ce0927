package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
)

// ReferenceRepository reads the seeded reference lists (budget
// brackets, approval types, document types).
type ReferenceRepository struct {
	db *database.Connection
}

// NewReferenceRepository creates a new ReferenceRepository
func NewReferenceRepository(db *database.Connection) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

const referenceColumns = "id, list_type, item_key, label, threshold_cents, sort_order"

// ListByType returns a reference list in display order
func (r *ReferenceRepository) ListByType(ctx context.Context, listType string) ([]models.ReferenceItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE list_type = ? ORDER BY sort_order ASC
	`, referenceColumns, constants.TableReferenceList)

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, listType)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference items: %w", err)
	}
	defer rows.Close()

	var items []models.ReferenceItem
	for rows.Next() {
		var item models.ReferenceItem
		err := rows.Scan(&item.ID, &item.ListType, &item.Key, &item.Label, &item.ThresholdCents, &item.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reference item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetByKey returns one reference item, or nil when absent
func (r *ReferenceRepository) GetByKey(ctx context.Context, listType, key string) (*models.ReferenceItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE list_type = ? AND item_key = ?
	`, referenceColumns, constants.TableReferenceList)

	var item models.ReferenceItem
	err := exec(ctx, r.db).QueryRowContext(ctx, query, listType, key).
		Scan(&item.ID, &item.ListType, &item.Key, &item.Label, &item.ThresholdCents, &item.SortOrder)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load reference item %s/%s: %w", listType, key, err)
	}
	return &item, nil
}
