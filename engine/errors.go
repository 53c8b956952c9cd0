package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Every failure aborts the whole operation; these sentinels classify why.
var (
	ErrUnauthorizedCallback = errors.New("callback not from trusted lender")
	ErrUntrustedInitiator   = errors.New("loan initiated by untrusted party")
	ErrMalformedPlan        = errors.New("malformed plan payload")
	ErrInvalidPath          = errors.New("swap path too short")
	ErrDeadlineExpired      = errors.New("swap deadline expired")
	ErrVenueNotApproved     = errors.New("venue not on allowlist")
	ErrInsufficientProfit   = errors.New("insufficient profit")
	ErrReentrantCall        = errors.New("reentrant call")
	ErrNotOwner             = errors.New("caller is not the owner")
	ErrNotOperator          = errors.New("caller is not the operator")
	ErrInvalidAmount        = errors.New("amount must be positive")
)

// SwapError wraps a failing swap step with its position in the plan.
type SwapError struct {
	Step  int
	Venue common.Address
	Err   error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap step %d (venue %s): %v", e.Step, e.Venue.Hex(), e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// InsufficientProfitError carries the shortfall for diagnostics. Matches
// ErrInsufficientProfit under errors.Is.
type InsufficientProfitError struct {
	Shortfall *big.Int
}

func (e *InsufficientProfitError) Error() string {
	return fmt.Sprintf("insufficient profit: short by %s", e.Shortfall)
}

func (e *InsufficientProfitError) Is(target error) bool {
	return target == ErrInsufficientProfit
}

// failureReason maps an operation error to a metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorizedCallback):
		return "unauthorized_callback"
	case errors.Is(err, ErrUntrustedInitiator):
		return "untrusted_initiator"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant_call"
	case errors.Is(err, ErrMalformedPlan):
		return "malformed_plan"
	case errors.Is(err, ErrVenueNotApproved):
		return "venue_not_approved"
	case errors.Is(err, ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, ErrDeadlineExpired):
		return "deadline_expired"
	case errors.Is(err, ErrInsufficientProfit):
		return "insufficient_profit"
	default:
		var swapErr *SwapError
		if errors.As(err, &swapErr) {
			return "swap_failed"
		}
		return "external"
	}
}
