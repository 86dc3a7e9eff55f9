package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRunStatus(t *testing.T) {
	s, ok := ParseRunStatus(" Queued ")
	assert.True(t, ok)
	assert.Equal(t, RunStatusQueued, s)
	assert.Equal(t, "Queued", s.Label())

	_, ok = ParseRunStatus("paused")
	assert.False(t, ok)
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusCancelled.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
}

func TestShipmentStatusOpen(t *testing.T) {
	assert.True(t, ShipmentOrdered.Open())
	assert.True(t, ShipmentShipped.Open())
	assert.False(t, ShipmentReceived.Open())
	assert.False(t, ShipmentCancelled.Open())
}
