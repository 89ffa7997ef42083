package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType distinguishes the kinds of account a user may hold.
// A user holds at most one account of each type.
type AccountType string

const (
	AccountSavings  AccountType = "SAVINGS"
	AccountChecking AccountType = "CHECKING"
)

// ParseAccountType accepts the type in any letter case.
func ParseAccountType(s string) (AccountType, bool) {
	switch t := AccountType(strings.ToUpper(strings.TrimSpace(s))); t {
	case AccountSavings, AccountChecking:
		return t, true
	default:
		return "", false
	}
}

// Account is a balance-holding account owned by a single user
type Account struct {
	ID        int64
	OwnerID   int64
	Balance   decimal.Decimal
	Type      AccountType
	CreatedAt time.Time
	UpdatedAt time.Time
}
