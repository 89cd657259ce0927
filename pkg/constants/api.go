package constants

// HTTP header and context keys
const (
	HeaderAuthorization = "Authorization"
	ContextKeyUser      = "user"
)

// Standard response envelope keys
const (
	ResponseError = "error"
	FieldMessage  = "message"
)

// User roles. Authorization is checked against this closed set only,
// never against free-form role strings.
const (
	RoleAdmin     = "admin"
	RoleApprover  = "approver"
	RoleRequester = "requester"
)

// IsValidRole reports whether s is one of the known roles.
func IsValidRole(s string) bool {
	switch s {
	case RoleAdmin, RoleApprover, RoleRequester:
		return true
	}
	return false
}
