package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaEnforcer_WithinLimit(t *testing.T) {
	q := NewQuotaEnforcer(10)

	for i := 0; i < 10; i++ {
		assert.NoError(t, q.Check("p1", "a"), "step %d should be allowed", i+1)
	}

	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.MaxSteps())
}

func TestQuotaEnforcer_ExceedsLimit(t *testing.T) {
	q := NewQuotaEnforcer(5)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Check("p1", "a"))
	}

	err := q.Check("p1", "b")
	require.Error(t, err)

	var stepsErr *StepsExceededError
	require.ErrorAs(t, err, &stepsErr)
	assert.Equal(t, "p1", stepsErr.ParticipantID)
	assert.Equal(t, "b", stepsErr.ActivityID)
	assert.Equal(t, 6, stepsErr.Steps)
	assert.Equal(t, 5, stepsErr.Limit)
}

func TestQuotaEnforcer_ZeroLimit(t *testing.T) {
	q := NewQuotaEnforcer(0)
	assert.True(t, IsStepsExceededError(q.Check("p1", "a")))
}

func TestStepsExceededError_Error(t *testing.T) {
	err := &StepsExceededError{ParticipantID: "p1", ActivityID: "lunch", Steps: 1001, Limit: 1000}

	msg := err.Error()
	assert.Contains(t, msg, "p1")
	assert.Contains(t, msg, "lunch")
	assert.Contains(t, msg, "1001")
	assert.Contains(t, msg, "1000")
}

func TestIsStepsExceededError_Wrapped(t *testing.T) {
	err := fmt.Errorf("select: %w", &StepsExceededError{Steps: 2, Limit: 1})
	assert.True(t, IsStepsExceededError(err))
	assert.False(t, IsStepsExceededError(fmt.Errorf("other")))
	assert.False(t, IsStepsExceededError(nil))
}
