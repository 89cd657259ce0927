package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Match(t *testing.T) {
	e := NewEngine()

	row := map[string]interface{}{
		"status":       "pending",
		"is_escalated": true,
		"timeout_days": 3,
	}

	tests := []struct {
		name     string
		expr     string
		expected bool
	}{
		{"equality", "status == 'pending'", true},
		{"negation", "status != 'approved'", true},
		{"boolean field", "is_escalated", true},
		{"conjunction", "status == 'pending' && is_escalated", true},
		{"numeric comparison", "timeout_days > 5", false},
		{"undefined variable is nil", "missing_field == nil", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Match(tc.expr, row)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestEngine_Match_NonBoolean(t *testing.T) {
	e := NewEngine()

	_, err := e.Match("timeout_days + 1", map[string]interface{}{"timeout_days": 3})
	assert.Error(t, err)
}

func TestEngine_Validate(t *testing.T) {
	e := NewEngine()

	assert.NoError(t, e.Validate("status == 'pending'"))
	assert.Error(t, e.Validate("status == ("))
}

func TestEngine_MatchList(t *testing.T) {
	e := NewEngine()

	rows := []map[string]interface{}{
		{"status": "pending"},
		{"status": "approved"},
		{"status": "pending"},
	}

	matched, err := e.MatchList("status == 'pending'", rows)
	require.NoError(t, err)
	assert.Len(t, matched, 2)

	// Empty expression matches everything
	all, err := e.MatchList("", rows)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
