package domain

import "strings"

// RunStatus is the lifecycle state of a forecast run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

var runStatusLabels = map[RunStatus]string{
	RunStatusPending:   "Pending",
	RunStatusQueued:    "Queued",
	RunStatusRunning:   "Running",
	RunStatusCompleted: "Completed",
	RunStatusFailed:    "Failed",
	RunStatusCancelled: "Cancelled",
}

// Terminal reports whether no further transitions are possible
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Label returns a human-readable label for a run status.
func (s RunStatus) Label() string {
	if label, ok := runStatusLabels[s]; ok {
		return label
	}

	return "Unknown"
}

// ParseRunStatus returns the run status for a given label (case-insensitive).
func ParseRunStatus(label string) (RunStatus, bool) {
	s := RunStatus(strings.ToLower(strings.TrimSpace(label)))
	_, ok := runStatusLabels[s]

	return s, ok
}

// ShipmentStatus is the state of a pending shipment
type ShipmentStatus string

const (
	ShipmentOrdered   ShipmentStatus = "ordered"
	ShipmentShipped   ShipmentStatus = "shipped"
	ShipmentReceived  ShipmentStatus = "received"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

// Open reports whether the shipment still counts as inbound supply
func (s ShipmentStatus) Open() bool {
	return s == ShipmentOrdered || s == ShipmentShipped
}

// Urgency is the order urgency tier of a recommendation
type Urgency string

const (
	UrgencyMustOrder   Urgency = "must_order"
	UrgencyShouldOrder Urgency = "should_order"
	UrgencyOptional    Urgency = "optional"
	UrgencySkip        Urgency = "skip"
)
