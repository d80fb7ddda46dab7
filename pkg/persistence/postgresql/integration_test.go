package postgresql_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
	"github.com/stepflow-io/stepflow/pkg/persistence/postgresql"
)

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stepflow_test"),
		postgres.WithUsername("stepflow"),
		postgres.WithPassword("stepflow"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, p.Close(ctx))
		require.NoError(t, container.Terminate(ctx))
		cancel()
	})

	return p, ctx
}

func TestPersistenceIntegration_FullLifecycle(t *testing.T) {
	p, ctx := setupTestDB(t)

	next := "approve"
	def := &models.WorkflowDefinition{
		ID:            "expense-review",
		Name:          "Expense Review",
		Version:       1,
		InitialStepID: "submit",
		Steps: []*models.StepDefinition{
			{ID: "submit", Name: "Submit", Kind: models.StepKindBusiness, NextStepID: &next},
			{ID: "approve", Name: "Approve", Kind: models.StepKindInteraction},
		},
		Variables: map[string]any{"limit": float64(500)},
	}

	require.NoError(t, p.Definitions().Save(ctx, def))

	loadedDef, err := p.Definitions().GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Expense Review", loadedDef.Name)
	require.Len(t, loadedDef.Steps, 2)

	_, err = p.Definitions().GetByID(ctx, "missing")
	assert.True(t, persistence.IsDefinitionNotFound(err))

	now := time.Now().UTC().Truncate(time.Microsecond)
	instance := &models.WorkflowInstance{
		ID:            uuid.New().String(),
		DefinitionID:  def.ID,
		CorrelationID: "expense-77",
		CreatedBy:     "sam",
		Status:        models.InstanceStatusCreated,
		Variables:     map[string]any{"limit": float64(500), "amount": float64(120)},
		CreatedAt:     now,
	}

	require.NoError(t, p.Instances().Create(ctx, instance))

	instance.Status = models.InstanceStatusWaiting
	instance.CurrentStepID = "approve"
	require.NoError(t, p.Instances().Update(ctx, instance))

	loaded, err := p.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusWaiting, loaded.Status)
	assert.Equal(t, "approve", loaded.CurrentStepID)
	assert.Equal(t, float64(120), loaded.Variables["amount"])

	waiting, err := p.Instances().ListByStatus(ctx, models.InstanceStatusWaiting)
	require.NoError(t, err)
	assert.Len(t, waiting, 1)

	correlated, err := p.Instances().ListByCorrelationID(ctx, "expense-77")
	require.NoError(t, err)
	assert.Len(t, correlated, 1)

	dueAt := now.Add(-time.Minute)
	step := &models.StepInstance{
		ID:                 uuid.New().String(),
		WorkflowInstanceID: instance.ID,
		StepID:             "submit",
		Kind:               models.StepKindScheduled,
		Status:             models.StepStatusScheduled,
		Input:              map[string]any{"amount": float64(120)},
		DueAt:              &dueAt,
		CreatedAt:          now,
	}

	require.NoError(t, p.StepInstances().Create(ctx, step))

	due, err := p.StepInstances().ListScheduledDueBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, step.ID, due[0].ID)

	step.Status = models.StepStatusCompleted
	step.Output = map[string]any{"processed": true}
	require.NoError(t, p.StepInstances().Update(ctx, step))

	due, err = p.StepInstances().ListScheduledDueBefore(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	history, err := p.StepInstances().ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, true, history[0].Output["processed"])
	assert.Equal(t, float64(120), history[0].Input["amount"])
}
