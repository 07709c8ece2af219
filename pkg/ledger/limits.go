package ledger

import "sync/atomic"

// LimitResolver returns the credit limit assigned to a new period record.
type LimitResolver interface {
	LimitFor(userID string) int
}

// PlanLimits resolves limits through a user → plan → credits mapping.
type PlanLimits struct {
	// Default applies to users without a plan or with an unknown plan.
	Default int

	// Plans maps plan names to per-period credit limits.
	Plans map[string]int

	// Users maps user ids to plan names.
	Users map[string]string
}

// LimitFor implements LimitResolver.
func (p PlanLimits) LimitFor(userID string) int {
	if plan, ok := p.Users[userID]; ok {
		if limit, ok := p.Plans[plan]; ok {
			return limit
		}
	}
	return p.Default
}

// DynamicLimits is a LimitResolver whose limits can be swapped at runtime.
// Existing records keep the limit they were created with.
type DynamicLimits struct {
	current atomic.Pointer[PlanLimits]
}

// NewDynamicLimits creates a resolver seeded with initial.
func NewDynamicLimits(initial PlanLimits) *DynamicLimits {
	d := &DynamicLimits{}
	d.Update(initial)
	return d
}

// Update replaces the active limits.
func (d *DynamicLimits) Update(p PlanLimits) {
	d.current.Store(&p)
}

// LimitFor implements LimitResolver.
func (d *DynamicLimits) LimitFor(userID string) int {
	p := d.current.Load()
	if p == nil {
		return 0
	}
	return p.LimitFor(userID)
}
