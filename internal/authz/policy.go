// Package authz decides whether a caller may act on a resource.
//
// The rule set is ownership based with one deliberate asymmetry: an ADMIN may
// read, update, delete and transfer from any account, but deposits and
// withdrawals stay self-service for every role. Keep that asymmetry unless
// product signs off on changing it.
package authz

import (
	"github.com/chungtau/ledger-bank/internal/domain"
)

// Operation is the kind of action being authorized
type Operation string

const (
	OpRead     Operation = "read"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpDeposit  Operation = "deposit"
	OpWithdraw Operation = "withdraw"
	OpTransfer Operation = "transfer"
)

// Decision is the outcome of a policy check
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// adminAnyOwner lists the operations an ADMIN may perform on resources
// owned by someone else.
var adminAnyOwner = map[Operation]bool{
	OpRead:     true,
	OpUpdate:   true,
	OpDelete:   true,
	OpTransfer: true,
}

var knownOps = map[Operation]bool{
	OpRead:     true,
	OpCreate:   true,
	OpUpdate:   true,
	OpDelete:   true,
	OpDeposit:  true,
	OpWithdraw: true,
	OpTransfer: true,
}

// Decide is total: unknown roles and unknown operations are denied.
func Decide(caller domain.Identity, resourceOwnerID int64, op Operation) Decision {
	if !knownOps[op] {
		return Deny
	}

	switch caller.Role {
	case domain.RoleCustomer:
		return Decision(resourceOwnerID == caller.UserID)
	case domain.RoleAdmin:
		if resourceOwnerID == caller.UserID {
			return Allow
		}
		return Decision(adminAnyOwner[op])
	default:
		return Deny
	}
}

// DecideAny allows when the caller passes the check for at least one owner.
// Used for records that belong to more than one party, like transfers.
func DecideAny(caller domain.Identity, ownerIDs []int64, op Operation) Decision {
	for _, owner := range ownerIDs {
		if Decide(caller, owner, op) == Allow {
			return Allow
		}
	}
	// An admin may read records even when every party has since vanished.
	if len(ownerIDs) == 0 && caller.IsAdmin() && adminAnyOwner[op] {
		return Allow
	}
	return Deny
}

// Authorize converts a Deny into a Forbidden error tagged with op.
func Authorize(caller domain.Identity, resourceOwnerID int64, op Operation, callerOp string) error {
	if Decide(caller, resourceOwnerID, op) == Allow {
		return nil
	}
	return domain.Errorf(domain.KindForbidden, callerOp, "%s not permitted on this resource", op)
}
