package venue

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Allowlist is the set of venues permitted to receive funds for exchange.
// Mutated only through the admin surface; read by every swap step.
type Allowlist struct {
	mu       sync.RWMutex
	approved map[common.Address]bool
}

// NewAllowlist creates an allowlist seeded with the given venues.
func NewAllowlist(seed ...common.Address) *Allowlist {
	a := &Allowlist{approved: make(map[common.Address]bool, len(seed))}
	for _, v := range seed {
		a.approved[v] = true
	}
	return a
}

// Set approves or revokes a venue. Idempotent; returns false if the entry
// was already in the requested state.
func (a *Allowlist) Set(venue common.Address, approved bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.approved[venue] == approved {
		return false
	}
	if approved {
		a.approved[venue] = true
	} else {
		delete(a.approved, venue)
	}
	return true
}

// IsApproved reports whether a venue may receive funds.
func (a *Allowlist) IsApproved(venue common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.approved[venue]
}

// Approved returns the currently approved venues.
func (a *Allowlist) Approved() []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]common.Address, 0, len(a.approved))
	for v := range a.approved {
		out = append(out, v)
	}
	return out
}
