package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNegativeAmount        = errors.New("negative amount")
)

type balanceKey struct {
	Token  common.Address
	Holder common.Address
}

type allowanceKey struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

// State is the execution substrate the engine runs on: token balances,
// allowances and native currency for a set of accounts, plus a block clock.
// All mutation happens inside Atomically, which serializes operations and
// rolls every change back if the operation fails. Primitive methods do not
// lock; callers reach them only from inside Atomically or View.
type State struct {
	mu         sync.Mutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	native     map[common.Address]*big.Int
	now        uint64
}

// NewState creates an empty state with the clock at t (unix seconds).
func NewState(t uint64) *State {
	return &State{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		native:     make(map[common.Address]*big.Int),
		now:        t,
	}
}

type snapshot struct {
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	native     map[common.Address]*big.Int
}

func (s *State) snapshot() *snapshot {
	snap := &snapshot{
		balances:   make(map[balanceKey]*big.Int, len(s.balances)),
		allowances: make(map[allowanceKey]*big.Int, len(s.allowances)),
		native:     make(map[common.Address]*big.Int, len(s.native)),
	}
	for k, v := range s.balances {
		snap.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.allowances {
		snap.allowances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.native {
		snap.native[k] = new(big.Int).Set(v)
	}
	return snap
}

func (s *State) restore(snap *snapshot) {
	s.balances = snap.balances
	s.allowances = snap.allowances
	s.native = snap.native
}

// Atomically runs fn under the state's exclusive operation lock. If fn
// returns an error, every state change made inside it is discarded and the
// error is returned unchanged. This is the all-or-nothing primitive the
// rest of the system relies on; nothing inside fn may assume partial
// effects survive a failure.
func (s *State) Atomically(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// View runs fn under the operation lock without snapshotting. For read-only
// access that must not interleave with an operation.
func (s *State) View(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Clone returns a deep copy of the state, detached from the original.
// Used by the simulator to rehearse an operation without touching anything.
func (s *State) Clone() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	return &State{
		balances:   snap.balances,
		allowances: snap.allowances,
		native:     snap.native,
		now:        s.now,
	}
}

// Now returns the current block time in unix seconds.
func (s *State) Now() uint64 {
	return s.now
}

// SetTime moves the block clock to t.
func (s *State) SetTime(t uint64) {
	s.now = t
}

// AdvanceTime moves the block clock forward by d seconds.
func (s *State) AdvanceTime(d uint64) {
	s.now += d
}

// BalanceOf returns holder's balance of token. Never nil.
func (s *State) BalanceOf(token, holder common.Address) *big.Int {
	if b, ok := s.balances[balanceKey{token, holder}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount of token to holder. Genesis/test funding only.
func (s *State) Mint(token, holder common.Address, amount *big.Int) {
	k := balanceKey{token, holder}
	if b, ok := s.balances[k]; ok {
		b.Add(b, amount)
		return
	}
	s.balances[k] = new(big.Int).Set(amount)
}

// Transfer moves amount of token from one holder to another.
func (s *State) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromKey := balanceKey{token, from}
	bal, ok := s.balances[fromKey]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s holder %s", ErrInsufficientBalance, token.Hex(), from.Hex())
	}
	bal.Sub(bal, amount)
	s.Mint(token, to, amount)
	return nil
}

// Approve sets spender's allowance over owner's token balance to amount,
// replacing any previous allowance.
func (s *State) Approve(token, owner, spender common.Address, amount *big.Int) {
	s.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

// Allowance returns what spender may still draw from owner. Never nil.
func (s *State) Allowance(token, owner, spender common.Address) *big.Int {
	if a, ok := s.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// TransferFrom moves amount of token from owner to recipient on behalf of
// spender, consuming the spender's allowance.
func (s *State) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	k := allowanceKey{token, owner, spender}
	allowed, ok := s.allowances[k]
	if !ok || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s owner %s spender %s", ErrInsufficientAllowance, token.Hex(), owner.Hex(), spender.Hex())
	}
	if err := s.Transfer(token, owner, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	return nil
}

// NativeBalanceOf returns holder's native-currency balance. Never nil.
func (s *State) NativeBalanceOf(holder common.Address) *big.Int {
	if b, ok := s.native[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// MintNative credits native currency to holder.
func (s *State) MintNative(holder common.Address, amount *big.Int) {
	if b, ok := s.native[holder]; ok {
		b.Add(b, amount)
		return
	}
	s.native[holder] = new(big.Int).Set(amount)
}

// TransferNative moves native currency between holders.
func (s *State) TransferNative(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal, ok := s.native[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native holder %s", ErrInsufficientBalance, from.Hex())
	}
	bal.Sub(bal, amount)
	s.MintNative(to, amount)
	return nil
}
