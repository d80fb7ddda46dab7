package web

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes mounts the API on a fiber app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	d := app.Group("/definitions")
	d.Get("/", h.ListDefinitions)
	d.Post("/", h.CreateDefinition)
	d.Get("/:id", h.GetDefinition)

	i := app.Group("/instances")
	i.Get("/", h.ListInstances)
	i.Post("/", h.StartInstance)
	i.Get("/:id", h.GetInstance)
	i.Post("/:id/cancel", h.CancelInstance)
	i.Post("/:id/suspend", h.SuspendInstance)
	i.Post("/:id/resume", h.ResumeInstance)
	i.Post("/:id/steps/:stepInstanceId/complete", h.CompleteStep)

	app.Get("/tasks", h.ListTasks)
	app.Get("/health", h.HealthCheck)
}
