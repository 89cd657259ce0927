package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
	apperrors "github.com/procureflow/backend/pkg/errors"
)

// TemplateRepository is the MySQL implementation of
// ports.TemplateRepository.
type TemplateRepository struct {
	db *database.Connection
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *database.Connection) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = "id, name, description, version, entity_type, entity_id, active, created_at, updated_at, created_by, updated_by"

// CreateTemplate inserts a new workflow template
func (r *TemplateRepository) CreateTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableWorkflowTemplate, templateColumns)

	_, err := exec(ctx, r.db).ExecContext(ctx, query,
		tpl.ID, tpl.Name, tpl.Description, tpl.Version,
		tpl.Entity.Type, tpl.Entity.ID, tpl.Active,
		tpl.CreatedAt, tpl.UpdatedAt, tpl.CreatedBy, tpl.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow template: %w", err)
	}
	return nil
}

// GetTemplate loads a template with stages and steps
func (r *TemplateRepository) GetTemplate(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", templateColumns, constants.TableWorkflowTemplate)

	tpl, err := r.scanTemplate(exec(ctx, r.db).QueryRowContext(ctx, query, templateID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load workflow template %s: %w", templateID, err)
	}

	if err := r.loadStages(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// ListTemplates returns all templates for an owning entity, newest first
func (r *TemplateRepository) ListTemplates(ctx context.Context, entity models.EntityRef) ([]models.WorkflowTemplate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC
	`, templateColumns, constants.TableWorkflowTemplate)

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, entity.Type, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow templates: %w", err)
	}
	defer rows.Close()

	var templates []models.WorkflowTemplate
	for rows.Next() {
		tpl, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow template: %w", err)
		}
		templates = append(templates, *tpl)
	}
	return templates, rows.Err()
}

// FindActiveTemplate returns the active template for an entity, fully
// loaded, or nil when none exists
func (r *TemplateRepository) FindActiveTemplate(ctx context.Context, entity models.EntityRef) (*models.WorkflowTemplate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE entity_type = ? AND entity_id = ? AND active = 1
		LIMIT 1
	`, templateColumns, constants.TableWorkflowTemplate)

	tpl, err := r.scanTemplate(exec(ctx, r.db).QueryRowContext(ctx, query, entity.Type, entity.ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active template for %s: %w", entity, err)
	}

	if err := r.loadStages(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// AddStage inserts a stage, enforcing stage_order and bracket
// uniqueness within the template
func (r *TemplateRepository) AddStage(ctx context.Context, stage *models.WorkflowStage) error {
	ex := exec(ctx, r.db)

	var clash int
	checkQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE template_id = ? AND (stage_order = ? OR bracket_key = ?)
	`, constants.TableWorkflowStage)
	if err := ex.QueryRowContext(ctx, checkQuery, stage.TemplateID, stage.StageOrder, stage.BracketKey).Scan(&clash); err != nil {
		return fmt.Errorf("failed to check stage uniqueness: %w", err)
	}
	if clash > 0 {
		return apperrors.NewDuplicateOrderError("stage", "stage_order/bracket", stage.StageOrder)
	}

	docTypes, err := marshalDocTypes(stage.RequiredDocumentTypes)
	if err != nil {
		return err
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, template_id, stage_order, stage_name, bracket_key, threshold_cents,
			requires_all_steps, is_parallel, required_document_types, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableWorkflowStage)

	_, err = ex.ExecContext(ctx, insertQuery,
		stage.ID, stage.TemplateID, stage.StageOrder, stage.StageName,
		stage.BracketKey, stage.ThresholdCents,
		stage.RequiresAllSteps, stage.IsParallel, docTypes,
		time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow stage: %w", err)
	}
	return nil
}

// AddStep inserts a step, enforcing step_order uniqueness within the
// stage
func (r *TemplateRepository) AddStep(ctx context.Context, step *models.WorkflowStep) error {
	ex := exec(ctx, r.db)

	var clash int
	checkQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE stage_id = ? AND step_order = ?
	`, constants.TableWorkflowStep)
	if err := ex.QueryRowContext(ctx, checkQuery, step.StageID, step.StepOrder).Scan(&clash); err != nil {
		return fmt.Errorf("failed to check step uniqueness: %w", err)
	}
	if clash > 0 {
		return apperrors.NewDuplicateOrderError("step", "step_order", step.StepOrder)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, stage_id, step_order, step_name, approval_type_key, approval_type_name,
			primary_approver_id, primary_approver_name, backup_approver_id, backup_approver_name,
			timeout_days, auto_escalate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableWorkflowStep)

	_, err := ex.ExecContext(ctx, insertQuery,
		step.ID, step.StageID, step.StepOrder, step.StepName,
		step.ApprovalTypeKey, step.ApprovalTypeName,
		step.PrimaryApproverID, step.PrimaryApproverName,
		step.BackupApproverID, step.BackupApproverName,
		step.TimeoutDays, step.AutoEscalate,
		time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow step: %w", err)
	}
	return nil
}

// GetStage loads a single stage with its steps
func (r *TemplateRepository) GetStage(ctx context.Context, stageID string) (*models.WorkflowStage, error) {
	query := fmt.Sprintf(`
		SELECT id, template_id, stage_order, stage_name, bracket_key, threshold_cents,
			requires_all_steps, is_parallel, required_document_types
		FROM %s WHERE id = ?
	`, constants.TableWorkflowStage)

	stage, err := r.scanStage(exec(ctx, r.db).QueryRowContext(ctx, query, stageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load workflow stage %s: %w", stageID, err)
	}

	steps, err := r.loadSteps(ctx, stage.ID)
	if err != nil {
		return nil, err
	}
	stage.Steps = steps
	return stage, nil
}

// ActivateExclusive deactivates all sibling templates for the owning
// entity and activates the target, in one atomic unit. Sibling rows are
// locked first so concurrent activations for the same entity serialize.
func (r *TemplateRepository) ActivateExclusive(ctx context.Context, entity models.EntityRef, templateID string) error {
	ex := exec(ctx, r.db)

	// Lock the entity's template rows to serialize concurrent
	// activations on the same owning entity.
	lockQuery := fmt.Sprintf(`
		SELECT id FROM %s WHERE entity_type = ? AND entity_id = ? FOR UPDATE
	`, constants.TableWorkflowTemplate)
	rows, err := ex.QueryContext(ctx, lockQuery, entity.Type, entity.ID)
	if err != nil {
		return fmt.Errorf("failed to lock templates for %s: %w", entity, err)
	}
	found := false
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan template id: %w", err)
		}
		if id == templateID {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if !found {
		return apperrors.NewNotFoundError("workflow template", templateID)
	}

	now := time.Now().UTC()
	deactivate := fmt.Sprintf(`
		UPDATE %s SET active = 0, updated_at = ?
		WHERE entity_type = ? AND entity_id = ? AND id != ? AND active = 1
	`, constants.TableWorkflowTemplate)
	if _, err := ex.ExecContext(ctx, deactivate, now, entity.Type, entity.ID, templateID); err != nil {
		return fmt.Errorf("failed to deactivate sibling templates: %w", err)
	}

	activate := fmt.Sprintf(`
		UPDATE %s SET active = 1, updated_at = ? WHERE id = ?
	`, constants.TableWorkflowTemplate)
	if _, err := ex.ExecContext(ctx, activate, now, templateID); err != nil {
		return fmt.Errorf("failed to activate template %s: %w", templateID, err)
	}

	return nil
}

// HasInstances reports whether any instance was created from the
// template
func (r *TemplateRepository) HasInstances(ctx context.Context, templateID string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE template_id = ?", constants.TableApprovalInstance)

	var count int
	if err := exec(ctx, r.db).QueryRowContext(ctx, query, templateID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count template instances: %w", err)
	}
	return count > 0, nil
}

// Internal helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var tpl models.WorkflowTemplate
	var description sql.NullString
	var createdBy, updatedBy sql.NullString

	err := row.Scan(
		&tpl.ID, &tpl.Name, &description, &tpl.Version,
		&tpl.Entity.Type, &tpl.Entity.ID, &tpl.Active,
		&tpl.CreatedAt, &tpl.UpdatedAt, &createdBy, &updatedBy,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		tpl.Description = &description.String
	}
	tpl.CreatedBy = createdBy.String
	tpl.UpdatedBy = updatedBy.String
	return &tpl, nil
}

func (r *TemplateRepository) loadStages(ctx context.Context, tpl *models.WorkflowTemplate) error {
	query := fmt.Sprintf(`
		SELECT id, template_id, stage_order, stage_name, bracket_key, threshold_cents,
			requires_all_steps, is_parallel, required_document_types
		FROM %s WHERE template_id = ?
		ORDER BY stage_order ASC
	`, constants.TableWorkflowStage)

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, tpl.ID)
	if err != nil {
		return fmt.Errorf("failed to load stages for template %s: %w", tpl.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		stage, err := r.scanStage(rows)
		if err != nil {
			return fmt.Errorf("failed to scan workflow stage: %w", err)
		}
		tpl.Stages = append(tpl.Stages, *stage)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range tpl.Stages {
		steps, err := r.loadSteps(ctx, tpl.Stages[i].ID)
		if err != nil {
			return err
		}
		tpl.Stages[i].Steps = steps
	}
	return nil
}

func (r *TemplateRepository) scanStage(row rowScanner) (*models.WorkflowStage, error) {
	var stage models.WorkflowStage
	var docTypes sql.NullString

	err := row.Scan(
		&stage.ID, &stage.TemplateID, &stage.StageOrder, &stage.StageName,
		&stage.BracketKey, &stage.ThresholdCents,
		&stage.RequiresAllSteps, &stage.IsParallel, &docTypes,
	)
	if err != nil {
		return nil, err
	}

	if docTypes.Valid && docTypes.String != "" {
		if err := json.Unmarshal([]byte(docTypes.String), &stage.RequiredDocumentTypes); err != nil {
			return nil, fmt.Errorf("failed to decode required document types: %w", err)
		}
	}
	return &stage, nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, stageID string) ([]models.WorkflowStep, error) {
	query := fmt.Sprintf(`
		SELECT id, stage_id, step_order, step_name, approval_type_key, approval_type_name,
			primary_approver_id, primary_approver_name, backup_approver_id, backup_approver_name,
			timeout_days, auto_escalate
		FROM %s WHERE stage_id = ?
		ORDER BY step_order ASC
	`, constants.TableWorkflowStep)

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for stage %s: %w", stageID, err)
	}
	defer rows.Close()

	var steps []models.WorkflowStep
	for rows.Next() {
		var step models.WorkflowStep
		var backupID, backupName sql.NullString

		err := rows.Scan(
			&step.ID, &step.StageID, &step.StepOrder, &step.StepName,
			&step.ApprovalTypeKey, &step.ApprovalTypeName,
			&step.PrimaryApproverID, &step.PrimaryApproverName,
			&backupID, &backupName,
			&step.TimeoutDays, &step.AutoEscalate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}

		if backupID.Valid {
			step.BackupApproverID = &backupID.String
		}
		if backupName.Valid {
			step.BackupApproverName = &backupName.String
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func marshalDocTypes(docTypes []string) (interface{}, error) {
	if len(docTypes) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(docTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode required document types: %w", err)
	}
	return string(encoded), nil
}
