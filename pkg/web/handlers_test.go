package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/dispatch"
	"github.com/stepflow-io/stepflow/pkg/engine"
	"github.com/stepflow-io/stepflow/pkg/expression"
	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence/file"
	"github.com/stepflow-io/stepflow/pkg/steps"
	"github.com/stepflow-io/stepflow/pkg/steps/business"
	"github.com/stepflow-io/stepflow/pkg/steps/decision"
	"github.com/stepflow-io/stepflow/pkg/steps/interaction"
	"github.com/stepflow-io/stepflow/pkg/steps/scheduled"
	"github.com/stepflow-io/stepflow/pkg/web"
)

const approvalDefinition = `{
  "id": "approval",
  "name": "Approval",
  "version": 1,
  "initial_step_id": "approve",
  "steps": [
    {
      "id": "approve",
      "name": "Approve",
      "kind": "interaction",
      "config": {"assigned_to": "reviewers"}
    }
  ]
}`

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	services := dispatch.NewRegistry(logger)
	evaluator := expression.NewEvaluator(logger)
	registry := steps.NewRegistry()

	eng := engine.NewEngine(store, registry, evaluator, logger)

	registry.Register(interaction.NewExecutor(nil, logger))
	registry.Register(scheduled.NewExecutor(evaluator, logger))
	registry.Register(business.NewExecutor(services, logger))
	registry.Register(decision.NewExecutor(evaluator, services, logger))

	handlers := web.NewAPIHandlers(eng, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody

	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewBuffer(encoded)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func createApproval(t *testing.T, app *fiber.App) {
	t.Helper()

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/", approvalDefinition)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func startApproval(t *testing.T, app *fiber.App) *models.WorkflowInstance {
	t.Helper()

	resp, payload := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		DefinitionID: "approval",
		Variables:    map[string]any{"amount": 42.0},
		CreatedBy:    "tester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(payload, &instance))

	return &instance
}

func TestCreateDefinition(t *testing.T) {
	app := setupTestApp(t)

	t.Run("valid definition", func(t *testing.T) {
		resp, payload := doJSON(t, app, http.MethodPost, "/definitions/", approvalDefinition)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var def models.WorkflowDefinition
		require.NoError(t, json.Unmarshal(payload, &def))
		assert.Equal(t, "approval", def.ID)
	})

	t.Run("invalid definition", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/definitions/",
			`{"id": "broken", "name": "Broken", "initial_step_id": "ghost", "steps": [{"id": "a", "name": "A", "kind": "business"}]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("fetch stored definition", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/definitions/approval", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown definition", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/definitions/ghost", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStartInstance(t *testing.T) {
	app := setupTestApp(t)
	createApproval(t, app)

	t.Run("starts and parks on the interaction step", func(t *testing.T) {
		instance := startApproval(t, app)
		assert.Equal(t, models.InstanceStatusWaiting, instance.Status)
		assert.Equal(t, "approve", instance.CurrentStepID)
	})

	t.Run("unknown definition", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
			DefinitionID: "ghost",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing definition id", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCompleteStepFlow(t *testing.T) {
	app := setupTestApp(t)
	createApproval(t, app)
	instance := startApproval(t, app)

	resp, payload := doJSON(t, app, http.MethodGet, "/instances/"+instance.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail web.InstanceResponse
	require.NoError(t, json.Unmarshal(payload, &detail))
	require.Len(t, detail.Steps, 1)
	assert.Equal(t, models.StepStatusWaitingForInput, detail.Steps[0].Status)
	assert.Equal(t, "reviewers", detail.Steps[0].AssignedTo)

	t.Run("waiting step shows up as a task", func(t *testing.T) {
		resp, payload := doJSON(t, app, http.MethodGet, "/tasks?assigned_to=reviewers", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var tasks struct {
			Tasks []*models.StepInstance `json:"tasks"`
		}
		require.NoError(t, json.Unmarshal(payload, &tasks))
		assert.Len(t, tasks.Tasks, 1)
	})

	completeURL := "/instances/" + instance.ID + "/steps/" + detail.Steps[0].ID + "/complete"

	t.Run("missing completed_by", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, completeURL, web.CompleteStepRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("completion advances the workflow", func(t *testing.T) {
		resp, payload := doJSON(t, app, http.MethodPost, completeURL, web.CompleteStepRequest{
			CompletedBy: "alice",
			Outputs:     map[string]any{"approved": true},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var detail web.InstanceResponse
		require.NoError(t, json.Unmarshal(payload, &detail))
		assert.Equal(t, models.InstanceStatusCompleted, detail.Status)
		assert.Equal(t, true, detail.Variables["approved"])
	})

	t.Run("completing twice conflicts", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, completeURL, web.CompleteStepRequest{
			CompletedBy: "bob",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestCancelInstance(t *testing.T) {
	app := setupTestApp(t)
	createApproval(t, app)
	instance := startApproval(t, app)

	resp, payload := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel",
		web.CancelInstanceRequest{Reason: "no longer needed", CancelledBy: "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail web.InstanceResponse
	require.NoError(t, json.Unmarshal(payload, &detail))
	assert.Equal(t, models.InstanceStatusCancelled, detail.Status)
	assert.Equal(t, "no longer needed", detail.StatusReason)

	t.Run("cancelling twice conflicts", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel",
			web.CancelInstanceRequest{})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestSuspendResumeInstance(t *testing.T) {
	app := setupTestApp(t)
	createApproval(t, app)
	instance := startApproval(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/suspend",
		web.SuspendInstanceRequest{Reason: "audit"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/resume",
		web.ResumeInstanceRequest{ResumedBy: "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail web.InstanceResponse
	require.NoError(t, json.Unmarshal(payload, &detail))
	assert.Equal(t, models.InstanceStatusWaiting, detail.Status)
}

func TestListInstances(t *testing.T) {
	app := setupTestApp(t)
	createApproval(t, app)
	startApproval(t, app)

	resp, payload := doJSON(t, app, http.MethodGet, "/instances/?status=waiting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Instances []*models.WorkflowInstance `json:"instances"`
	}
	require.NoError(t, json.Unmarshal(payload, &listing))
	assert.Len(t, listing.Instances, 1)
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
