// Package dispatch provides invocation of named business-logic services.
// Services register typed handler functions under a service/method pair;
// the engine only ever sees the returned value or the error.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrServiceNotRegistered indicates no service with the given name exists.
	ErrServiceNotRegistered = errors.New("service not registered")

	// ErrMethodNotRegistered indicates the service has no such method.
	ErrMethodNotRegistered = errors.New("method not registered")
)

// Invoker dispatches a call to a named service method.
type Invoker interface {
	Invoke(ctx context.Context, service, method string, params map[string]any) (any, error)
}

// HandlerFunc is a registered service method.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

// Registry is a name-keyed registry of service methods.
type Registry struct {
	logger   *slog.Logger
	services map[string]map[string]HandlerFunc
}

// NewRegistry creates an empty service registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "dispatch"),
		services: make(map[string]map[string]HandlerFunc),
	}
}

// Register adds a handler under the given service and method names,
// replacing any previous registration for the same pair.
func (r *Registry) Register(service, method string, handler HandlerFunc) {
	methods, ok := r.services[service]
	if !ok {
		methods = make(map[string]HandlerFunc)
		r.services[service] = methods
	}

	methods[method] = handler
}

// Invoke calls the registered handler for service/method with the given
// named parameters.
func (r *Registry) Invoke(ctx context.Context, service, method string, params map[string]any) (any, error) {
	methods, ok := r.services[service]
	if !ok {
		return nil, fmt.Errorf("service %q: %w", service, ErrServiceNotRegistered)
	}

	handler, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q on service %q: %w", method, service, ErrMethodNotRegistered)
	}

	r.logger.Debug("Invoking service method", "service", service, "method", method)

	return handler(ctx, params)
}
