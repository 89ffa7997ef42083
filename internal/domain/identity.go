package domain

import "strings"

// Role is the caller's role as asserted by the authentication layer
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole maps a token claim onto a known role. Unknown roles are rejected
// rather than downgraded.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Identity is the authenticated caller attached to every ledger call.
// It is never persisted.
type Identity struct {
	UserID int64
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
