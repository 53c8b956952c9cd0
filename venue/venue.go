package venue

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownVenue = errors.New("unknown venue")

// Venue is one external exchange. Exchange settles a swap on the shared
// state: it pulls amountIn of path[0] from the caller (via allowance) and
// pays the realized output of path[last] to the recipient. The returned
// amounts are advisory; callers that care measure balance deltas.
type Venue interface {
	Address() common.Address
	Name() string
	Exchange(caller common.Address, amountIn, minAmountOut *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) ([]*big.Int, error)
	Quote(amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// Registry maps venue addresses to live venue instances. Populated at
// startup, read by every operation.
type Registry struct {
	mu     sync.RWMutex
	venues map[common.Address]Venue
}

func NewRegistry() *Registry {
	return &Registry{venues: make(map[common.Address]Venue)}
}

// Register adds v under its own address, replacing any previous entry.
func (r *Registry) Register(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[v.Address()] = v
}

// Lookup resolves a venue address to its instance.
func (r *Registry) Lookup(addr common.Address) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, addr.Hex())
	}
	return v, nil
}

// Addresses returns all registered venue addresses.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]common.Address, 0, len(r.venues))
	for a := range r.venues {
		addrs = append(addrs, a)
	}
	return addrs
}
