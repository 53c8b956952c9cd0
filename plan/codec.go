package plan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Wire format: abi-encoded (swaps tuple[], minProfit uint256, profitToken
// address); each swap is (venue address, path address[], amountIn uint256,
// minAmountOut uint256, deadline uint256). Field order is fixed; the lender
// passes the bytes through opaquely and only the callback decodes them.

var planArguments = mustPlanArguments()

func mustPlanArguments() abi.Arguments {
	stepType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "venue", Type: "address"},
		{Name: "path", Type: "address[]"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "minAmountOut", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	})
	if err != nil {
		panic(fmt.Sprintf("plan: bad step tuple type: %v", err))
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(fmt.Sprintf("plan: bad uint256 type: %v", err))
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(fmt.Sprintf("plan: bad address type: %v", err))
	}
	return abi.Arguments{
		{Name: "swaps", Type: stepType},
		{Name: "minProfit", Type: uint256Type},
		{Name: "profitToken", Type: addressType},
	}
}

// wireStep mirrors the swap tuple components for abi binding.
type wireStep struct {
	Venue        common.Address
	Path         []common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Deadline     *big.Int
}

// Encode packs p into the opaque payload handed to the lender.
func Encode(p *Plan) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	steps := make([]wireStep, len(p.Swaps))
	for i, s := range p.Swaps {
		steps[i] = wireStep{
			Venue:        s.Venue,
			Path:         s.Path,
			AmountIn:     s.AmountIn,
			MinAmountOut: s.MinAmountOut,
			Deadline:     s.Deadline,
		}
	}

	data, err := planArguments.Pack(steps, p.MinProfit, p.ProfitToken)
	if err != nil {
		return nil, fmt.Errorf("failed to pack plan: %w", err)
	}
	return data, nil
}

// Decode unpacks and validates an opaque payload. Any structural defect is
// an error, never a panic; the caller decides how fatal that is.
func Decode(data []byte) (*Plan, error) {
	values, err := planArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack plan: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("expected 3 plan fields, got %d", len(values))
	}

	steps := *abi.ConvertType(values[0], new([]wireStep)).(*[]wireStep)
	minProfit, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("minProfit is not uint256")
	}
	profitToken, ok := values[2].(common.Address)
	if !ok {
		return nil, fmt.Errorf("profitToken is not an address")
	}

	p := &Plan{
		Swaps:       make([]SwapStep, len(steps)),
		MinProfit:   minProfit,
		ProfitToken: profitToken,
	}
	for i, s := range steps {
		p.Swaps[i] = SwapStep{
			Venue:        s.Venue,
			Path:         s.Path,
			AmountIn:     s.AmountIn,
			MinAmountOut: s.MinAmountOut,
			Deadline:     s.Deadline,
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
