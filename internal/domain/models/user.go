package models

import "time"

// User is an account that can log in. Approvers referenced by workflow
// steps are users; an inactive user can no longer act on pending work.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // constants.Role*
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReferenceItem is one entry of a seeded reference list (budget
// brackets, approval types, document types). ThresholdCents is only
// meaningful for budget brackets.
type ReferenceItem struct {
	ID             string `json:"id"`
	ListType       string `json:"list_type"` // constants.ListType*
	Key            string `json:"key"`
	Label          string `json:"label"`
	ThresholdCents int64  `json:"threshold_cents,omitempty"`
	SortOrder      int    `json:"sort_order"`
}
