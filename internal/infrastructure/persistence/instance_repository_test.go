package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
	apperrors "github.com/procureflow/backend/pkg/errors"
)

func newMockRepo(t *testing.T) (*InstanceRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	repo := NewInstanceRepository(database.NewFromDB(db))
	return repo, mock, func() { db.Close() }
}

func sampleSnapshot() models.InstanceSnapshot {
	return models.InstanceSnapshot{
		Version:         constants.SnapshotVersion,
		TemplateID:      "tpl-1",
		TemplateName:    "Standard Purchase Approval",
		TemplateVersion: "1.0",
		Stages: []models.SnapshotStage{
			{
				StageOrder:       1,
				StageName:        "Basic Review",
				BracketKey:       constants.BracketUnder1K,
				RequiresAllSteps: true,
				Steps: []models.SnapshotStep{
					{StepOrder: 1, StepName: "Technical Review", ApprovalTypeKey: "technical",
						PrimaryApproverID: "user-tech", PrimaryApproverName: "Tech Lead", TimeoutDays: 3},
				},
			},
		},
	}
}

func TestCreateInstanceStoresSnapshotJSON(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	now := time.Now().UTC()
	inst := &models.ApprovalInstance{
		ID:                "inst-1",
		RequestID:         "req-1",
		TemplateID:        "tpl-1",
		Entity:            models.EntityRef{Type: constants.EntityTypeTeam, ID: "team-9"},
		AmountCents:       400000,
		Snapshot:          sampleSnapshot(),
		CurrentStageOrder: 1,
		CurrentStepOrder:  1,
		OverallStatus:     constants.InstanceStatusPending,
		SubmittedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         "user-req",
	}

	encoded, err := json.Marshal(inst.Snapshot)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO "+constants.TableApprovalInstance).
		WithArgs(
			inst.ID, inst.RequestID, inst.TemplateID,
			inst.Entity.Type, inst.Entity.ID, inst.AmountCents,
			string(encoded), inst.CurrentStageOrder, inst.CurrentStepOrder, inst.OverallStatus,
			inst.SubmittedAt, nil, inst.CreatedAt, inst.UpdatedAt, inst.CreatedBy,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.CreateInstance(context.Background(), inst)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInstanceDuplicateRequest(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	now := time.Now().UTC()
	inst := &models.ApprovalInstance{
		ID:                "inst-2",
		RequestID:         "req-1",
		TemplateID:        "tpl-1",
		Entity:            models.EntityRef{Type: constants.EntityTypeTeam, ID: "team-9"},
		AmountCents:       400000,
		Snapshot:          sampleSnapshot(),
		CurrentStageOrder: 1,
		CurrentStepOrder:  1,
		OverallStatus:     constants.InstanceStatusPending,
		SubmittedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         "user-req",
	}

	// A concurrent submission won the insert; the unique key on
	// request_id rejects this one.
	mock.ExpectExec("INSERT INTO " + constants.TableApprovalInstance).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'req-1' for key 'uk_instances_request'"})

	err := repo.CreateInstance(context.Background(), inst)
	require.Error(t, err)
	var dup *apperrors.AlreadySubmittedError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "req-1", dup.RequestID)
}

func TestGetInstanceDecodesSnapshot(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	snap := sampleSnapshot()
	encoded, err := json.Marshal(snap)
	require.NoError(t, err)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "request_id", "template_id", "entity_type", "entity_id", "amount_cents",
		"snapshot", "current_stage_order", "current_step_order", "overall_status",
		"submitted_at", "completed_at", "created_at", "updated_at", "created_by",
	}).AddRow(
		"inst-1", "req-1", "tpl-1", constants.EntityTypeTeam, "team-9", int64(400000),
		string(encoded), 1, 1, constants.InstanceStatusPending,
		now, nil, now, now, "user-req",
	)

	mock.ExpectQuery("SELECT (.+) FROM " + constants.TableApprovalInstance + " WHERE id = ?").
		WithArgs("inst-1").
		WillReturnRows(rows)

	inst, err := repo.GetInstance(context.Background(), "inst-1")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "req-1", inst.RequestID)
	assert.Equal(t, int64(400000), inst.AmountCents)
	assert.Equal(t, snap.TemplateName, inst.Snapshot.TemplateName)
	require.Len(t, inst.Snapshot.Stages, 1)
	assert.Equal(t, "Basic Review", inst.Snapshot.Stages[0].StageName)
	assert.Nil(t, inst.CompletedAt)
}

func TestGetInstanceNotFound(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM " + constants.TableApprovalInstance).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inst, err := repo.GetInstance(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, inst)
}

func TestGetInstanceForUpdateLocksRow(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	snap := sampleSnapshot()
	encoded, err := json.Marshal(snap)
	require.NoError(t, err)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "request_id", "template_id", "entity_type", "entity_id", "amount_cents",
		"snapshot", "current_stage_order", "current_step_order", "overall_status",
		"submitted_at", "completed_at", "created_at", "updated_at", "created_by",
	}).AddRow(
		"inst-1", "req-1", "tpl-1", constants.EntityTypeTeam, "team-9", int64(400000),
		string(encoded), 1, 1, constants.InstanceStatusPending,
		now, nil, now, now, "user-req",
	)

	mock.ExpectQuery("SELECT (.+) FROM " + constants.TableApprovalInstance + " WHERE id = (.+) FOR UPDATE").
		WithArgs("inst-1").
		WillReturnRows(rows)

	inst, err := repo.GetInstanceForUpdate(context.Background(), "inst-1")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "inst-1", inst.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceCursorWinner(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE "+constants.TableApprovalInstance).
		WithArgs(
			2, 1, constants.InstanceStatusPending, nil, sqlmock.AnyArg(),
			"inst-1", 1, 1, constants.InstanceStatusPending,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.AdvanceCursor(context.Background(), "inst-1", 1, 1, models.CursorUpdate{
		NewStageOrder: 2,
		NewStepOrder:  1,
		NewStatus:     constants.InstanceStatusPending,
	})
	assert.NoError(t, err)
	assert.True(t, moved)
}

func TestAdvanceCursorLoserIsNoOp(t *testing.T) {
	repo, mock, cleanup := newMockRepo(t)
	defer cleanup()

	// Another writer already moved the cursor past (1,1); the guarded
	// update matches zero rows.
	mock.ExpectExec("UPDATE " + constants.TableApprovalInstance).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.AdvanceCursor(context.Background(), "inst-1", 1, 1, models.CursorUpdate{
		NewStageOrder: 2,
		NewStepOrder:  1,
		NewStatus:     constants.InstanceStatusPending,
	})
	assert.NoError(t, err)
	assert.False(t, moved)
}
