package expression

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator() *ExprEvaluator {
	return NewEvaluator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluateCondition(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name      string
		condition string
		variables map[string]any
		want      bool
	}{
		{"empty condition is always true", "", nil, true},
		{"numeric comparison true", "amount > 100", map[string]any{"amount": 150}, true},
		{"numeric comparison false", "amount > 100", map[string]any{"amount": 50}, false},
		{"string equality", `status == "approved"`, map[string]any{"status": "approved"}, true},
		{"boolean variable", "approved", map[string]any{"approved": true}, true},
		{"compound expression", `amount > 100 && region == "eu"`, map[string]any{"amount": 200, "region": "eu"}, true},
		{"malformed condition is false", "amount >>> 1", map[string]any{"amount": 5}, false},
		{"unknown variable is false", "missing > 1", map[string]any{}, false},
		{"non boolean result is false", "amount + 1", map[string]any{"amount": 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.EvaluateCondition(tt.condition, tt.variables))
		})
	}
}

func TestEvaluate(t *testing.T) {
	e := newTestEvaluator()

	result, err := e.Evaluate("amount * 2", map[string]any{"amount": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	_, err = e.Evaluate("amount *", map[string]any{"amount": 21})
	assert.Error(t, err)
}

func TestEvaluate_DoesNotMutateVariables(t *testing.T) {
	e := newTestEvaluator()
	variables := map[string]any{"amount": 10}

	_, err := e.Evaluate("amount + 1", variables)
	require.NoError(t, err)

	assert.Equal(t, 10, variables["amount"])
}
