package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStatusSet_AllowsConfiguredTransitions(t *testing.T) {
	s := DefaultStatusSet()

	assert.NoError(t, s.Validate(StatusWaitingPayment, StatusPaid))
	assert.NoError(t, s.Validate(StatusPaid, "sourcing"))
	assert.NoError(t, s.Validate("waiting_refund", StatusRefunded))
}

func TestStatusSet_RejectsUnknownTarget(t *testing.T) {
	s := DefaultStatusSet()

	err := s.Validate(StatusPaid, "shipped")
	var unknown *UnknownStatusError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "shipped", unknown.Status)
}

func TestStatusSet_RejectsUnlistedTransition(t *testing.T) {
	s := DefaultStatusSet()

	err := s.Validate("delivered", StatusPaid)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "delivered", invalid.From)
	assert.Equal(t, StatusPaid, invalid.To)

	// Terminal statuses have no outgoing transitions at all.
	assert.Error(t, s.Validate(StatusCanceled, StatusWaitingPayment))
	assert.Error(t, s.Validate(StatusRefunded, StatusPaid))
}

func TestStatusSet_NoOpChangeAllowed(t *testing.T) {
	s := DefaultStatusSet()
	assert.NoError(t, s.Validate(StatusCanceled, StatusCanceled))
}

func TestNewStatusSet_RejectsUnknownIDs(t *testing.T) {
	_, err := NewStatusSet(
		[]string{"a", "b"},
		map[string][]string{"a": {"c"}},
	)
	var unknown *UnknownStatusError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "c", unknown.Status)

	_, err = NewStatusSet(
		[]string{"a"},
		map[string][]string{"z": {"a"}},
	)
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "z", unknown.Status)
}

func TestStatusSet_IDsKeepConfiguredOrder(t *testing.T) {
	s, err := NewStatusSet([]string{"new", "done"}, map[string][]string{"new": {"done"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "done"}, s.IDs())
	assert.True(t, s.Contains("new"))
	assert.False(t, s.Contains("gone"))
}
