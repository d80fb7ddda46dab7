package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceError_WrapsSentinel(t *testing.T) {
	err := NewInstanceError("GetByID", "inst-1", ErrInstanceNotFound)

	assert.True(t, errors.Is(err, ErrInstanceNotFound))
	assert.True(t, IsInstanceNotFound(err))
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "inst-1")
}

func TestSentinelHelpers(t *testing.T) {
	assert.True(t, IsDefinitionNotFound(fmt.Errorf("load: %w", ErrDefinitionNotFound)))
	assert.True(t, IsStepInstanceNotFound(fmt.Errorf("complete: %w", ErrStepInstanceNotFound)))
	assert.False(t, IsInstanceNotFound(errors.New("boom")))
}
