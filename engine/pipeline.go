package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/plan"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/venue"
)

// Pipeline executes the swap legs of a plan against live venues, in order.
// Realized output is always measured as the balance delta of the bought
// token, never taken from the venue's return value.
type Pipeline struct {
	state     *chain.State
	registry  *venue.Registry
	allowlist *venue.Allowlist
	self      common.Address
	logger    *zap.Logger
}

// NewPipeline creates a pipeline trading on behalf of self.
func NewPipeline(state *chain.State, registry *venue.Registry, allowlist *venue.Allowlist, self common.Address, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		state:     state,
		registry:  registry,
		allowlist: allowlist,
		self:      self,
		logger:    logger,
	}
}

// Execute runs a single swap step and returns the realized output.
func (p *Pipeline) Execute(step *plan.SwapStep) (*big.Int, error) {
	if !p.allowlist.IsApproved(step.Venue) {
		return nil, fmt.Errorf("%w: %s", ErrVenueNotApproved, step.Venue.Hex())
	}
	if len(step.Path) < 2 {
		return nil, fmt.Errorf("%w: got %d tokens", ErrInvalidPath, len(step.Path))
	}
	if step.Expired(p.state.Now()) {
		return nil, fmt.Errorf("%w: deadline %s, now %d", ErrDeadlineExpired, step.Deadline, p.state.Now())
	}

	v, err := p.registry.Lookup(step.Venue)
	if err != nil {
		return nil, err
	}

	// Scoped approval: exactly amountIn, granted per call. A revoked venue
	// never retains a standing allowance.
	p.state.Approve(step.TokenIn(), p.self, step.Venue, step.AmountIn)

	before := p.state.BalanceOf(step.TokenOut(), p.self)
	if _, err := v.Exchange(p.self, step.AmountIn, step.MinAmountOut, step.Path, p.self, step.Deadline); err != nil {
		return nil, err
	}
	after := p.state.BalanceOf(step.TokenOut(), p.self)

	// The delta is the truth; the venue's reported amounts are advisory.
	realized, err := bigmath.CheckedSub(after, before)
	if err != nil {
		return nil, fmt.Errorf("balance decreased across swap: %w", err)
	}

	p.logger.Info("swap executed",
		zap.String("venue", step.Venue.Hex()),
		zap.String("token_in", step.TokenIn().Hex()),
		zap.String("token_out", step.TokenOut().Hex()),
		zap.String("amount_in", step.AmountIn.String()),
		zap.String("amount_out", realized.String()),
	)
	return realized, nil
}

// ExecuteAll runs every step strictly in the given order. Later steps spend
// what earlier steps produced, so the ordering is load-bearing and is never
// parallelized. The first failure aborts the rest.
func (p *Pipeline) ExecuteAll(steps []plan.SwapStep) error {
	for i := range steps {
		if _, err := p.Execute(&steps[i]); err != nil {
			return &SwapError{Step: i, Venue: steps[i].Venue, Err: err}
		}
	}
	return nil
}
