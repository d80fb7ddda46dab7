package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestStepDefinition_NormalizeRoutes(t *testing.T) {
	step := &StepDefinition{
		ID:         "review",
		Name:       "Review",
		Kind:       StepKindBusiness,
		NextStepID: strPtr("archive"),
		Transitions: []*Transition{
			{TargetStepID: "escalate", Condition: "amount > 1000", Label: "high value"},
			{TargetStepID: "archive"},
		},
	}

	step.NormalizeRoutes()

	require.Len(t, step.Routes, 3)
	assert.Equal(t, Route{NextStepID: "archive"}, step.Routes[0])
	assert.Equal(t, "escalate", step.Routes[1].NextStepID)
	assert.Equal(t, "amount > 1000", step.Routes[1].Condition)

	// Normalizing again must not duplicate routes.
	step.NormalizeRoutes()
	assert.Len(t, step.Routes, 3)
}

func TestStepDefinition_EffectiveRoutes_OnDemand(t *testing.T) {
	step := &StepDefinition{
		ID:         "notify",
		Name:       "Notify",
		Kind:       StepKindBusiness,
		NextStepID: strPtr("done"),
	}

	routes := step.EffectiveRoutes()

	require.Len(t, routes, 1)
	assert.Equal(t, "done", routes[0].NextStepID)
	assert.Empty(t, routes[0].Condition)
}

func TestWorkflowDefinition_StepByID(t *testing.T) {
	def := &WorkflowDefinition{
		ID:            "order",
		Name:          "Order Handling",
		InitialStepID: "receive",
		Steps: []*StepDefinition{
			{ID: "receive", Name: "Receive", Kind: StepKindBusiness},
			{ID: "ship", Name: "Ship", Kind: StepKindBusiness},
		},
	}

	step, found := def.StepByID("ship")
	require.True(t, found)
	assert.Equal(t, "Ship", step.Name)

	_, found = def.StepByID("missing")
	assert.False(t, found)
}

func TestMergedVariables_CallerWins(t *testing.T) {
	merged := MergedVariables(
		map[string]any{"region": "eu", "limit": 10},
		map[string]any{"limit": 25},
	)

	assert.Equal(t, "eu", merged["region"])
	assert.Equal(t, 25, merged["limit"])
}

func TestWorkflowInstance_MergeVariables_Overwrites(t *testing.T) {
	instance := &WorkflowInstance{Variables: map[string]any{"ok": false}}

	instance.MergeVariables(map[string]any{"ok": true, "count": 3})

	assert.Equal(t, true, instance.Variables["ok"])
	assert.Equal(t, 3, instance.Variables["count"])
}

func TestStatusTerminality(t *testing.T) {
	assert.True(t, InstanceStatusCompleted.IsTerminal())
	assert.True(t, InstanceStatusFailed.IsTerminal())
	assert.True(t, InstanceStatusCancelled.IsTerminal())
	assert.False(t, InstanceStatusWaiting.IsTerminal())
	assert.False(t, InstanceStatusSuspended.IsTerminal())

	assert.True(t, StepStatusSkipped.IsTerminal())
	assert.True(t, StepStatusTimeout.IsTerminal())
	assert.False(t, StepStatusScheduled.IsTerminal())
	assert.False(t, StepStatusWaitingForInput.IsTerminal())
}
