package simulator

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/lender"
	"github.com/michaelpento.lv/flasharb/plan"
	"github.com/michaelpento.lv/flasharb/venue"
)

// errRollback forces the substrate to discard every effect of a rehearsal.
var errRollback = errors.New("simulation rollback")

// Result is the outcome of rehearsing an operation. Estimate only: prices
// can move between simulation and execution, so the engine re-verifies
// everything with real balances.
type Result struct {
	Success bool
	Profit  *big.Int
	Err     error
}

// Simulator rehearses a full borrow-trade-repay operation against the live
// state and then reverts it, the way an eth_call probe would. Nothing it
// does survives; the measured profit is the only output.
type Simulator struct {
	state     *chain.State
	pool      *lender.Pool
	registry  *venue.Registry
	allowlist *venue.Allowlist
	self      common.Address
	logger    *zap.Logger
}

// New creates a simulator probing on behalf of self.
func New(state *chain.State, pool *lender.Pool, registry *venue.Registry, allowlist *venue.Allowlist, self common.Address, logger *zap.Logger) *Simulator {
	return &Simulator{
		state:     state,
		pool:      pool,
		registry:  registry,
		allowlist: allowlist,
		self:      self,
		logger:    logger,
	}
}

// probe receives the rehearsal loan, runs the plan, measures the outcome
// and always fails so the substrate unwinds the whole attempt.
type probe struct {
	sim     *Simulator
	payload []byte

	profit *big.Int
	runErr error
}

func (p *probe) Address() common.Address { return p.sim.self }

func (p *probe) OnLoanReceived(caller, asset common.Address, amount, fee *big.Int, initiator common.Address, params []byte) error {
	pipeline := engine.NewPipeline(p.sim.state, p.sim.registry, p.sim.allowlist, p.sim.self, p.sim.logger)

	decoded, err := plan.Decode(p.payload)
	if err != nil {
		p.runErr = err
		return errRollback
	}

	if err := pipeline.ExecuteAll(decoded.Swaps); err != nil {
		p.runErr = err
		return errRollback
	}

	owed := new(big.Int).Add(amount, fee)
	endBalance := p.sim.state.BalanceOf(asset, p.sim.self)
	profit, err := engine.ValidateProfit(endBalance, owed, decoded.MinProfit)
	if err != nil {
		p.runErr = err
		return errRollback
	}

	p.profit = profit
	return errRollback
}

// Simulate rehearses borrowing amount of asset against the given payload.
func (s *Simulator) Simulate(asset common.Address, amount *big.Int, payload []byte) *Result {
	pr := &probe{sim: s, payload: payload}

	err := s.pool.Borrow(s.self, pr, asset, amount, nil, 0)
	if !errors.Is(err, errRollback) {
		// The loan itself failed before the probe could measure anything.
		return &Result{Success: false, Err: err}
	}
	if pr.runErr != nil {
		return &Result{Success: false, Err: pr.runErr}
	}

	s.logger.Debug("simulation complete",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("estimated_profit", pr.profit.String()),
	)
	return &Result{Success: true, Profit: pr.profit}
}
