package interaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/tasks"
)

type fakeTaskManager struct {
	created    []tasks.TaskInfo
	taskID     string
	createErr  error
	closedIDs  []string
	closedData []map[string]any
}

func (f *fakeTaskManager) CreateTask(_ context.Context, info tasks.TaskInfo) (string, error) {
	f.created = append(f.created, info)

	if f.createErr != nil {
		return "", f.createErr
	}

	return f.taskID, nil
}

func (f *fakeTaskManager) CloseTask(_ context.Context, externalTaskID string, data map[string]any) error {
	f.closedIDs = append(f.closedIDs, externalTaskID)
	f.closedData = append(f.closedData, data)

	return nil
}

func (f *fakeTaskManager) UpdateTask(context.Context, string, map[string]any) error { return nil }
func (f *fakeTaskManager) CancelTask(context.Context, string) error                 { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecutorCanExecute(t *testing.T) {
	executor := NewExecutor(nil, testLogger())

	assert.True(t, executor.CanExecute(models.StepKindInteraction))
	assert.False(t, executor.CanExecute(models.StepKindBusiness))
}

func TestExecuteParksStepWaitingForInput(t *testing.T) {
	executor := NewExecutor(nil, testLogger())

	step := &models.StepInstance{ID: "si-1"}
	def := &models.StepDefinition{
		ID:     "approve",
		Kind:   models.StepKindInteraction,
		Config: map[string]any{"assigned_to": "finance-team"},
	}
	instance := &models.WorkflowInstance{ID: "wi-1"}

	result, err := executor.Execute(context.Background(), step, def, instance)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.StepStatusWaitingForInput, result.Status)
	assert.Equal(t, "finance-team", step.AssignedTo)
}

func TestExecuteCreatesExternalTask(t *testing.T) {
	manager := &fakeTaskManager{taskID: "JIRA-42"}
	executor := NewExecutor(manager, testLogger())

	step := &models.StepInstance{ID: "si-1", Input: map[string]any{"amount": 100}}
	def := &models.StepDefinition{
		ID:   "approve",
		Name: "Approve expense",
		Kind: models.StepKindInteraction,
		Config: map[string]any{
			"assigned_to": "finance-team",
			"description": "Review the expense report",
		},
	}
	instance := &models.WorkflowInstance{ID: "wi-1"}

	result, err := executor.Execute(context.Background(), step, def, instance)
	require.NoError(t, err)

	require.Len(t, manager.created, 1)
	info := manager.created[0]
	assert.Equal(t, "wi-1", info.WorkflowInstanceID)
	assert.Equal(t, "si-1", info.StepInstanceID)
	assert.Equal(t, "Approve expense", info.Title, "title should default to the step name")
	assert.Equal(t, "finance-team", info.AssignedTo)

	assert.Equal(t, "JIRA-42", step.ExternalTaskID)
	assert.Equal(t, "JIRA-42", result.Output["external_task_id"])
	assert.Equal(t, models.StepStatusWaitingForInput, result.Status)
}

func TestExecuteTaskCreationFailureStillParks(t *testing.T) {
	manager := &fakeTaskManager{createErr: errors.New("queue unavailable")}
	executor := NewExecutor(manager, testLogger())

	step := &models.StepInstance{ID: "si-1"}
	def := &models.StepDefinition{ID: "approve", Kind: models.StepKindInteraction, Config: map[string]any{}}
	instance := &models.WorkflowInstance{ID: "wi-1"}

	result, err := executor.Execute(context.Background(), step, def, instance)
	require.NoError(t, err)

	assert.Equal(t, models.StepStatusWaitingForInput, result.Status)
	assert.Empty(t, step.ExternalTaskID)
	assert.Equal(t, "queue unavailable", result.Output[TaskErrorOutputKey])
}

func TestExecuteExplicitTitleWins(t *testing.T) {
	manager := &fakeTaskManager{taskID: "T-1"}
	executor := NewExecutor(manager, testLogger())

	def := &models.StepDefinition{
		ID:     "approve",
		Name:   "Approve expense",
		Kind:   models.StepKindInteraction,
		Config: map[string]any{"title": "Expense sign-off"},
	}

	_, err := executor.Execute(context.Background(), &models.StepInstance{ID: "si-1"}, def, &models.WorkflowInstance{ID: "wi-1"})
	require.NoError(t, err)

	require.Len(t, manager.created, 1)
	assert.Equal(t, "Expense sign-off", manager.created[0].Title)
}
