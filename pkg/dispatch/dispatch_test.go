package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_Invoke(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()

	registry.Register("billing", "charge", func(_ context.Context, params map[string]any) (any, error) {
		amount, _ := params["amount"].(float64)

		return map[string]any{"charged": amount, "success": true}, nil
	})

	result, err := registry.Invoke(ctx, "billing", "charge", map[string]any{"amount": 99.5})
	require.NoError(t, err)

	fields, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 99.5, fields["charged"])
	assert.Equal(t, true, fields["success"])
}

func TestRegistry_Invoke_NotRegistered(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()

	_, err := registry.Invoke(ctx, "nope", "charge", nil)
	assert.ErrorIs(t, err, ErrServiceNotRegistered)

	registry.Register("billing", "charge", func(context.Context, map[string]any) (any, error) {
		return nil, nil
	})

	_, err = registry.Invoke(ctx, "billing", "refund", nil)
	assert.ErrorIs(t, err, ErrMethodNotRegistered)
}

func TestRegistry_Invoke_HandlerError(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()
	boom := errors.New("downstream unavailable")

	registry.Register("billing", "charge", func(context.Context, map[string]any) (any, error) {
		return nil, boom
	})

	_, err := registry.Invoke(ctx, "billing", "charge", nil)
	assert.ErrorIs(t, err, boom)
}
