package plan

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmptyPlan     = errors.New("plan has no swaps")
	ErrMissingField  = errors.New("plan field missing or nil")
	ErrNegativeValue = errors.New("plan field is negative")
)

// SwapStep describes one exchange leg. Constructed by the planner, executed
// once by the pipeline, never reused.
type SwapStep struct {
	Venue        common.Address
	Path         []common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Deadline     *big.Int // unix seconds, uint256 on the wire
}

// TokenIn returns the token sold by this step.
func (s *SwapStep) TokenIn() common.Address {
	return s.Path[0]
}

// TokenOut returns the token bought by this step.
func (s *SwapStep) TokenOut() common.Address {
	return s.Path[len(s.Path)-1]
}

// Expired reports whether the step's deadline has passed at block time now.
func (s *SwapStep) Expired(now uint64) bool {
	return s.Deadline.Cmp(new(big.Int).SetUint64(now)) < 0
}

// Plan is the decoded operation payload: an ordered swap chain plus the
// profit floor the whole operation must clear. Transient; it never outlives
// the operation it was decoded for.
type Plan struct {
	Swaps       []SwapStep
	MinProfit   *big.Int
	ProfitToken common.Address
}

// Validate checks field presence and bounds. Path lengths and deadlines are
// execution-time concerns and are checked by the pipeline, not here.
func (p *Plan) Validate() error {
	if len(p.Swaps) == 0 {
		return ErrEmptyPlan
	}
	if p.MinProfit == nil {
		return fmt.Errorf("%w: minProfit", ErrMissingField)
	}
	if p.MinProfit.Sign() < 0 {
		return fmt.Errorf("%w: minProfit", ErrNegativeValue)
	}
	for i := range p.Swaps {
		s := &p.Swaps[i]
		if s.AmountIn == nil || s.MinAmountOut == nil || s.Deadline == nil {
			return fmt.Errorf("%w: swap %d", ErrMissingField, i)
		}
		if s.AmountIn.Sign() <= 0 {
			return fmt.Errorf("swap %d: amountIn must be positive", i)
		}
		if s.MinAmountOut.Sign() < 0 {
			return fmt.Errorf("%w: swap %d minAmountOut", ErrNegativeValue, i)
		}
	}
	return nil
}
