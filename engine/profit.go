package engine

import (
	"fmt"
	"math/big"

	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// ValidateProfit accepts the operation iff endBalance covers the amount
// owed to the lender plus the caller's profit floor. On acceptance it
// returns the realized profit (may be zero). Arithmetic is checked: a
// negative input is a logic error, never a wrapped value.
func ValidateProfit(endBalance, amountOwed, minProfit *big.Int) (*big.Int, error) {
	if endBalance.Sign() < 0 || amountOwed.Sign() < 0 || minProfit.Sign() < 0 {
		return nil, fmt.Errorf("profit guard received negative input: end=%s owed=%s min=%s",
			endBalance, amountOwed, minProfit)
	}

	required := bigmath.Sum(amountOwed, minProfit)
	if endBalance.Cmp(required) < 0 {
		shortfall, err := bigmath.CheckedSub(required, endBalance)
		if err != nil {
			return nil, err
		}
		return nil, &InsufficientProfitError{Shortfall: shortfall}
	}

	profit, err := bigmath.CheckedSub(endBalance, amountOwed)
	if err != nil {
		return nil, err
	}
	return profit, nil
}
