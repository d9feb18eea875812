package orchestrator

import (
	"errors"
	"fmt"

	"waypoint/internal/database"
	"waypoint/internal/models"
)

var (
	// ErrProposalTimeout means the proposer did not answer in time. The
	// agent is skipped for the tick and no action is recorded.
	ErrProposalTimeout = errors.New("orchestrator: proposal timed out")

	// ErrProposalFailed wraps any other proposer error.
	ErrProposalFailed = errors.New("orchestrator: proposal failed")

	// ErrInvalidProposal means the proposer returned something the agent
	// is not allowed to propose.
	ErrInvalidProposal = errors.New("orchestrator: invalid proposal")

	// ErrInvalidTransition means the action is not in a state that allows
	// the requested operation. The action is left unchanged.
	ErrInvalidTransition = errors.New("orchestrator: invalid transition")

	// ErrExecutionFailed wraps an execution handler error.
	ErrExecutionFailed = errors.New("orchestrator: execution failed")

	// ErrExecutionInProgress means another caller holds the execution claim.
	ErrExecutionInProgress = errors.New("orchestrator: execution in progress")

	// ErrMissingDecider is returned when approve or decline has no actor.
	ErrMissingDecider = errors.New("orchestrator: decided_by is required")

	// ErrNotFound is returned for unknown action ids.
	ErrNotFound = database.ErrNotFound
)

// TransitionError reports an operation attempted from the wrong status.
type TransitionError struct {
	ActionID string
	Op       string
	Status   models.ActionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("orchestrator: cannot %s action %s in status %s", e.Op, e.ActionID, e.Status)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
