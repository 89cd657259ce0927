package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
)

// schemaDDL holds the CREATE TABLE statements in dependency order.
// Column names must stay in sync with the persistence layer's column
// lists; the repositories never introspect the schema.
var schemaDDL = []struct {
	table string
	ddl   string
}{
	{
		table: constants.TableUser,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableUser + ` (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uk_users_email (email)
		)`,
	},
	{
		table: constants.TableReferenceList,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableReferenceList + ` (
			id VARCHAR(36) PRIMARY KEY,
			list_type VARCHAR(64) NOT NULL,
			item_key VARCHAR(64) NOT NULL,
			label VARCHAR(255) NOT NULL,
			threshold_cents BIGINT NOT NULL DEFAULT 0,
			sort_order INT NOT NULL DEFAULT 0,
			UNIQUE KEY uk_reference_type_key (list_type, item_key)
		)`,
	},
	{
		table: constants.TableWorkflowTemplate,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableWorkflowTemplate + ` (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			version VARCHAR(32) NOT NULL DEFAULT '1.0',
			entity_type VARCHAR(64) NOT NULL,
			entity_id VARCHAR(36) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			created_by VARCHAR(36),
			updated_by VARCHAR(36),
			KEY idx_templates_entity (entity_type, entity_id, active)
		)`,
	},
	{
		table: constants.TableWorkflowStage,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableWorkflowStage + ` (
			id VARCHAR(36) PRIMARY KEY,
			template_id VARCHAR(36) NOT NULL,
			stage_order INT NOT NULL,
			stage_name VARCHAR(255) NOT NULL,
			bracket_key VARCHAR(64) NOT NULL,
			threshold_cents BIGINT NOT NULL,
			requires_all_steps BOOLEAN NOT NULL DEFAULT TRUE,
			is_parallel BOOLEAN NOT NULL DEFAULT FALSE,
			required_document_types TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uk_stages_order (template_id, stage_order),
			UNIQUE KEY uk_stages_bracket (template_id, bracket_key)
		)`,
	},
	{
		table: constants.TableWorkflowStep,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableWorkflowStep + ` (
			id VARCHAR(36) PRIMARY KEY,
			stage_id VARCHAR(36) NOT NULL,
			step_order INT NOT NULL,
			step_name VARCHAR(255) NOT NULL,
			approval_type_key VARCHAR(64) NOT NULL,
			approval_type_name VARCHAR(255) NOT NULL,
			primary_approver_id VARCHAR(36) NOT NULL,
			primary_approver_name VARCHAR(255) NOT NULL,
			backup_approver_id VARCHAR(36),
			backup_approver_name VARCHAR(255),
			timeout_days INT NOT NULL DEFAULT 0,
			auto_escalate BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uk_steps_order (stage_id, step_order)
		)`,
	},
	{
		table: constants.TableApprovalInstance,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableApprovalInstance + ` (
			id VARCHAR(36) PRIMARY KEY,
			request_id VARCHAR(36) NOT NULL,
			template_id VARCHAR(36) NOT NULL,
			entity_type VARCHAR(64) NOT NULL,
			entity_id VARCHAR(36) NOT NULL,
			amount_cents BIGINT NOT NULL,
			snapshot JSON NOT NULL,
			current_stage_order INT NOT NULL,
			current_step_order INT NOT NULL,
			overall_status VARCHAR(32) NOT NULL,
			submitted_at DATETIME,
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			created_by VARCHAR(36),
			UNIQUE KEY uk_instances_request (request_id),
			KEY idx_instances_template (template_id)
		)`,
	},
	{
		table: constants.TableApprovalAction,
		ddl: `CREATE TABLE IF NOT EXISTS ` + constants.TableApprovalAction + ` (
			id VARCHAR(36) PRIMARY KEY,
			instance_id VARCHAR(36) NOT NULL,
			stage_order INT NOT NULL,
			step_order INT NOT NULL,
			stage_name VARCHAR(255) NOT NULL,
			step_name VARCHAR(255) NOT NULL,
			approval_type_key VARCHAR(64) NOT NULL,
			approver_id VARCHAR(36) NOT NULL,
			approver_name VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			comments TEXT,
			conditions TEXT,
			assigned_at DATETIME NOT NULL,
			due_date DATETIME NOT NULL,
			completed_at DATETIME,
			decided_by VARCHAR(36),
			is_escalated BOOLEAN NOT NULL DEFAULT FALSE,
			escalated_at DATETIME,
			escalation_reason VARCHAR(255),
			is_overdue BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uk_actions_step (instance_id, stage_order, step_order),
			KEY idx_actions_approver (approver_id, status),
			KEY idx_actions_due (status, due_date)
		)`,
	},
}

// InitializeSchema creates the workflow tables if they do not exist.
// Idempotent; safe to run on every startup.
func InitializeSchema(db *database.Connection) error {
	log.Println("🔧 Initializing workflow schema...")

	ctx := context.Background()
	for _, entry := range schemaDDL {
		if _, err := db.ExecContext(ctx, entry.ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", entry.table, err)
		}
	}

	log.Printf("   ✅ Ensured %d tables", len(schemaDDL))
	return nil
}
