package forecast

import (
	"fmt"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

var transitions = map[domain.RunStatus][]domain.RunStatus{
	domain.RunStatusPending: {domain.RunStatusRunning, domain.RunStatusQueued, domain.RunStatusCancelled},
	domain.RunStatusQueued:  {domain.RunStatusRunning, domain.RunStatusCancelled},
	domain.RunStatusRunning: {domain.RunStatusCompleted, domain.RunStatusFailed, domain.RunStatusCancelled},
}

// CanTransition reports whether a run may move from one status to another
func CanTransition(from, to domain.RunStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the run to the target status or returns ErrInvalidTransition
func Transition(run *domain.ForecastRun, to domain.RunStatus) error {
	if !CanTransition(run.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, run.Status, to)
	}
	run.Status = to
	if to != domain.RunStatusQueued {
		run.QueuePosition = nil
	}
	return nil
}
