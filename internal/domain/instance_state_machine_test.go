package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceStateMachine_Transitions(t *testing.T) {
	sm := NewInstanceStateMachine()

	tests := []struct {
		name        string
		from        InstanceState
		action      InstanceTransition
		expectedTo  InstanceState
		shouldError bool
	}{
		// Valid transitions
		{"draft -> pending via Submit", InstanceStateDraft, TransitionSubmit, InstanceStatePending, false},
		{"pending -> approved via Approve", InstanceStatePending, TransitionApprove, InstanceStateApproved, false},
		{"pending -> refused via Refuse", InstanceStatePending, TransitionRefuse, InstanceStateRefused, false},

		// Invalid transitions
		{"draft -> approved (must submit first)", InstanceStateDraft, TransitionApprove, InstanceStateDraft, true},
		{"approved -> pending (terminal)", InstanceStateApproved, TransitionSubmit, InstanceStateApproved, true},
		{"refused -> approved (terminal)", InstanceStateRefused, TransitionApprove, InstanceStateRefused, true},
		{"pending -> pending via Submit (no resubmit)", InstanceStatePending, TransitionSubmit, InstanceStatePending, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			newState, err := sm.Transition(tc.from, tc.action)

			if tc.shouldError {
				assert.Error(t, err)
				assert.Equal(t, tc.from, newState, "State should not change on invalid transition")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedTo, newState)
			}
		})
	}
}

func TestInstanceStateMachine_CanTransition(t *testing.T) {
	sm := NewInstanceStateMachine()

	assert.True(t, sm.CanTransition(InstanceStateDraft, TransitionSubmit))
	assert.True(t, sm.CanTransition(InstanceStatePending, TransitionApprove))
	assert.False(t, sm.CanTransition(InstanceStateApproved, TransitionRefuse))
	assert.False(t, sm.CanTransition(InstanceStateRefused, TransitionSubmit))
}

func TestInstanceStateMachine_IsTerminal(t *testing.T) {
	sm := NewInstanceStateMachine()

	assert.False(t, sm.IsTerminal(InstanceStateDraft))
	assert.False(t, sm.IsTerminal(InstanceStatePending))
	assert.True(t, sm.IsTerminal(InstanceStateApproved))
	assert.True(t, sm.IsTerminal(InstanceStateRefused))
}
