package file

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestDefinitionRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	next := "done"
	def := &models.WorkflowDefinition{
		ID:            "onboarding",
		Name:          "Employee Onboarding",
		InitialStepID: "collect",
		Steps: []*models.StepDefinition{
			{ID: "collect", Name: "Collect Data", Kind: models.StepKindInteraction, NextStepID: &next},
			{ID: "done", Name: "Done", Kind: models.StepKindBusiness},
		},
		Variables: map[string]any{"department": "engineering"},
	}

	require.NoError(t, p.Definitions().Save(ctx, def))

	loaded, err := p.Definitions().GetByID(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "Employee Onboarding", loaded.Name)
	assert.Len(t, loaded.Steps, 2)
	assert.Equal(t, "engineering", loaded.Variables["department"])

	_, err = p.Definitions().GetByID(ctx, "missing")
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestInstanceRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	instance := &models.WorkflowInstance{
		ID:            uuid.New().String(),
		DefinitionID:  "onboarding",
		CorrelationID: "ticket-42",
		Status:        models.InstanceStatusCreated,
		Variables:     map[string]any{"department": "engineering"},
		CreatedAt:     time.Now().UTC(),
	}

	require.NoError(t, p.Instances().Create(ctx, instance))

	err := p.Instances().Create(ctx, instance)
	assert.ErrorIs(t, err, persistence.ErrInstanceAlreadyExists)

	instance.Status = models.InstanceStatusRunning
	require.NoError(t, p.Instances().Update(ctx, instance))

	loaded, err := p.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, loaded.Status)

	byStatus, err := p.Instances().ListByStatus(ctx, models.InstanceStatusRunning)
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	byCorrelation, err := p.Instances().ListByCorrelationID(ctx, "ticket-42")
	require.NoError(t, err)
	assert.Len(t, byCorrelation, 1)

	_, err = p.Instances().GetByID(ctx, "missing")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestStepInstanceRepository_Queries(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	now := time.Now().UTC()
	pastDue := now.Add(-time.Minute)
	futureDue := now.Add(time.Hour)

	dueStep := &models.StepInstance{
		ID:                 uuid.New().String(),
		WorkflowInstanceID: "inst-1",
		StepID:             "wait",
		Kind:               models.StepKindScheduled,
		Status:             models.StepStatusScheduled,
		DueAt:              &pastDue,
		CreatedAt:          now,
	}
	futureStep := &models.StepInstance{
		ID:                 uuid.New().String(),
		WorkflowInstanceID: "inst-1",
		StepID:             "wait-later",
		Kind:               models.StepKindScheduled,
		Status:             models.StepStatusScheduled,
		DueAt:              &futureDue,
		CreatedAt:          now.Add(time.Second),
	}
	waitingStep := &models.StepInstance{
		ID:                 uuid.New().String(),
		WorkflowInstanceID: "inst-2",
		StepID:             "approve",
		Kind:               models.StepKindInteraction,
		Status:             models.StepStatusWaitingForInput,
		AssignedTo:         "alex",
		CreatedAt:          now,
	}

	for _, step := range []*models.StepInstance{dueStep, futureStep, waitingStep} {
		require.NoError(t, p.StepInstances().Create(ctx, step))
	}

	due, err := p.StepInstances().ListScheduledDueBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueStep.ID, due[0].ID)

	// Completing the step removes it from the due query.
	dueStep.Status = models.StepStatusCompleted
	require.NoError(t, p.StepInstances().Update(ctx, dueStep))

	due, err = p.StepInstances().ListScheduledDueBefore(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	assigned, err := p.StepInstances().ListWaitingForActor(ctx, "alex")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, waitingStep.ID, assigned[0].ID)

	history, err := p.StepInstances().ListByInstance(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, dueStep.ID, history[0].ID)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/definitely/not/here")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
