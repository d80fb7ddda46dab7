package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/stepflow-io/stepflow/pkg/engine"
	"github.com/stepflow-io/stepflow/pkg/loader"
	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
)

type APIHandlers struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	loader      *loader.Loader
	validator   *validator.Validate
}

func NewAPIHandlers(eng *engine.Engine, p persistence.Persistence, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:      eng,
		persistence: p,
		loader:      loader.NewLoader(),
		validator:   validator,
	}
}

// CreateDefinition validates and stores a workflow definition. The raw
// body goes through the loader so stored definitions are always
// normalized.
func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	def, err := h.loader.Load(c.Body())
	if err != nil {
		return handleEngineError(c, err)
	}

	if err := h.persistence.Definitions().Save(c.Context(), def); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	def, err := h.persistence.Definitions().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.persistence.Definitions().List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"definitions": definitions})
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	id, err := h.engine.StartInstance(c.Context(), req.DefinitionID, req.Variables,
		req.CorrelationID, req.CreatedBy)
	if err != nil {
		return handleEngineError(c, err)
	}

	instance, err := h.persistence.Instances().GetByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

// GetInstance returns an instance with its step history.
func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")

	instance, err := h.persistence.Instances().GetByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	stepInstances, err := h.persistence.StepInstances().ListByInstance(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(InstanceResponse{WorkflowInstance: instance, Steps: stepInstances})
}

// ListInstances filters instances by status or correlation id.
func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	if correlationID := c.Query("correlation_id"); correlationID != "" {
		instances, err := h.persistence.Instances().ListByCorrelationID(c.Context(), correlationID)
		if err != nil {
			return internalError(c, err)
		}

		return c.JSON(fiber.Map{"instances": instances})
	}

	status := models.InstanceStatus(c.Query("status", string(models.InstanceStatusRunning)))

	instances, err := h.persistence.Instances().ListByStatus(c.Context(), status)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) CompleteStep(c fiber.Ctx) error {
	var req CompleteStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.engine.CompleteInteractionStep(c.Context(), c.Params("id"), c.Params("stepInstanceId"),
		req.CompletedBy, req.Outputs)
	if err != nil {
		return handleEngineError(c, err)
	}

	return h.GetInstance(c)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.Cancel(c.Context(), c.Params("id"), req.Reason, req.CancelledBy); err != nil {
		return handleEngineError(c, err)
	}

	return h.GetInstance(c)
}

func (h *APIHandlers) SuspendInstance(c fiber.Ctx) error {
	var req SuspendInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.Suspend(c.Context(), c.Params("id"), req.Reason); err != nil {
		return handleEngineError(c, err)
	}

	return h.GetInstance(c)
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	var req ResumeInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.Resume(c.Context(), c.Params("id"), req.ResumedBy); err != nil {
		return handleEngineError(c, err)
	}

	return h.GetInstance(c)
}

// ListTasks returns waiting interaction steps assigned to an actor.
func (h *APIHandlers) ListTasks(c fiber.Ctx) error {
	actor := c.Query("assigned_to")
	if actor == "" {
		return badRequest(c, "assigned_to query parameter is required")
	}

	stepInstances, err := h.persistence.StepInstances().ListWaitingForActor(c.Context(), actor)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": stepInstances})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
