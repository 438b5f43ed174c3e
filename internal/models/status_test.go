package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusCreated, StatusQueued, StatusProcessing, StatusSent,
	StatusDelivered, StatusFailed, StatusCancelled,
}

// allowed mirrors the lifecycle table: every pair not listed here must be
// rejected without mutating the record.
var allowed = map[Status][]Status{
	StatusCreated:    {StatusQueued, StatusCancelled},
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusFailed},
	StatusSent:       {StatusDelivered},
	StatusDelivered:  {},
	StatusFailed:     {StatusCreated, StatusQueued},
	StatusCancelled:  {StatusQueued},
}

func isAllowed(from, to Status) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

func TestTransitionTable(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			n := &Notification{ID: NewID("ntf"), Status: from}
			err := n.TransitionTo(to)

			if isAllowed(from, to) {
				require.NoError(t, err, "%s -> %s should be legal", from, to)
				assert.Equal(t, to, n.Status)
			} else {
				require.Error(t, err, "%s -> %s should be rejected", from, to)
				assert.Equal(t, from, n.Status, "rejected transition must not mutate status")

				var de *Error
				require.True(t, errors.As(err, &de))
				assert.Equal(t, CodeTransition, de.Code)
			}
		}
	}
}

func TestTransitionToUnknownStatus(t *testing.T) {
	n := &Notification{Status: StatusCreated}
	err := n.TransitionTo(Status("bogus"))
	require.Error(t, err)
	assert.Equal(t, StatusCreated, n.Status)
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusFailed.Terminal())
	assert.False(t, StatusSent.Terminal())
}
