package domain

import (
	"fmt"
)

// InstanceState represents the overall status of an approval instance
type InstanceState string

const (
	// InstanceStateDraft indicates the request has not been submitted
	InstanceStateDraft InstanceState = "draft"
	// InstanceStatePending indicates one or more live actions await a decision
	InstanceStatePending InstanceState = "pending"
	// InstanceStateApproved indicates every resolved stage completed (terminal)
	InstanceStateApproved InstanceState = "approved"
	// InstanceStateRefused indicates a stage failed (terminal)
	InstanceStateRefused InstanceState = "refused"
)

// InstanceTransition represents an action that can change instance state
type InstanceTransition string

const (
	// TransitionSubmit creates the live instance from a draft request
	TransitionSubmit InstanceTransition = "Submit"
	// TransitionApprove marks the final stage as complete
	TransitionApprove InstanceTransition = "Approve"
	// TransitionRefuse fails the instance
	TransitionRefuse InstanceTransition = "Refuse"
)

// InstanceStateMachine enforces valid state transitions for approval
// instances. Invalid transitions return an error (fail-fast approach).
// Progression is strictly forward: terminal states have no outgoing
// transitions, so a completed instance can never accept a decision.
type InstanceStateMachine struct {
	// transitions maps (current state, transition) -> next state
	transitions map[stateTransitionKey]InstanceState
}

type stateTransitionKey struct {
	state      InstanceState
	transition InstanceTransition
}

// NewInstanceStateMachine creates a new state machine with the instance
// lifecycle rules.
// State diagram:
//
//	  Submit
//	    │
//	    ▼
//	[pending] ──Approve──► [approved]
//	    │
//	  Refuse
//	    │
//	    ▼
//	[refused]
func NewInstanceStateMachine() *InstanceStateMachine {
	sm := &InstanceStateMachine{
		transitions: make(map[stateTransitionKey]InstanceState),
	}

	sm.addTransition(InstanceStateDraft, TransitionSubmit, InstanceStatePending)
	sm.addTransition(InstanceStatePending, TransitionApprove, InstanceStateApproved)
	sm.addTransition(InstanceStatePending, TransitionRefuse, InstanceStateRefused)

	return sm
}

func (sm *InstanceStateMachine) addTransition(from InstanceState, via InstanceTransition, to InstanceState) {
	key := stateTransitionKey{state: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current state using the
// given action. Returns the new state or an error if the transition is
// invalid.
func (sm *InstanceStateMachine) Transition(current InstanceState, action InstanceTransition) (InstanceState, error) {
	key := stateTransitionKey{state: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *InstanceStateMachine) CanTransition(current InstanceState, action InstanceTransition) bool {
	key := stateTransitionKey{state: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}

// IsTerminal returns true if the state accepts no further transitions.
func (sm *InstanceStateMachine) IsTerminal(state InstanceState) bool {
	return state == InstanceStateApproved || state == InstanceStateRefused
}
