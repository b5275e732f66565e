package policy

import (
	"context"

	"github.com/diewo77/go-quotations/gate"
)

// Owned is a record with an owning user. ok is false when the owner cannot
// be determined, e.g. a document whose quotation was not loaded.
type Owned interface {
	OwnerID() (id uint, ok bool)
}

// CreatorPolicy lets a user act on the quotations, documents, rates and
// settings they own. List and create calls carry no record and are left to
// role permissions.
type CreatorPolicy struct{}

func (CreatorPolicy) Can(_ context.Context, userID uint, _ gate.Action, record any) bool {
	if record == nil {
		return true
	}
	o, ok := record.(Owned)
	if !ok {
		return false
	}
	owner, known := o.OwnerID()
	return known && owner == userID
}

// AdminOverride grants admins every record and defers to next otherwise.
type AdminOverride struct {
	next    gate.Policy[uint]
	isAdmin func(ctx context.Context, userID uint) bool
}

func NewAdminOverride(next gate.Policy[uint], isAdmin func(ctx context.Context, userID uint) bool) *AdminOverride {
	return &AdminOverride{next: next, isAdmin: isAdmin}
}

func (p *AdminOverride) Can(ctx context.Context, userID uint, action gate.Action, record any) bool {
	return p.isAdmin(ctx, userID) || p.next.Can(ctx, userID, action, record)
}
