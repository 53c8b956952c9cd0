package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Owner-gated maintenance surface. None of these touch an in-flight
// operation: operations are serialized by the substrate, and each of these
// runs as its own atomic step.

// SetVenueApproval toggles a venue on the allowlist. Idempotent.
func (o *Orchestrator) SetVenueApproval(caller, venueAddr common.Address, approved bool) error {
	if caller != o.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	if o.allowlist.Set(venueAddr, approved) {
		o.logger.Info("venue approval changed",
			zap.String("venue", venueAddr.Hex()),
			zap.Bool("approved", approved),
		)
	}
	return nil
}

// SweepToken transfers the orchestrator's full balance of token to the
// owner and returns the amount swept. Emergency path for stranded funds.
func (o *Orchestrator) SweepToken(caller, token common.Address) (*big.Int, error) {
	if caller != o.owner {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}

	var swept *big.Int
	err := o.state.Atomically(func() error {
		swept = o.state.BalanceOf(token, o.addr)
		if swept.Sign() == 0 {
			return nil
		}
		return o.state.Transfer(token, o.addr, o.owner, swept)
	})
	if err != nil {
		return nil, err
	}

	if swept.Sign() > 0 {
		o.logger.Info("token balance swept",
			zap.String("token", token.Hex()),
			zap.String("amount", swept.String()),
		)
	}
	return swept, nil
}

// SweepNative transfers the orchestrator's native-currency balance to the
// owner and returns the amount swept.
func (o *Orchestrator) SweepNative(caller common.Address) (*big.Int, error) {
	if caller != o.owner {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}

	var swept *big.Int
	err := o.state.Atomically(func() error {
		swept = o.state.NativeBalanceOf(o.addr)
		if swept.Sign() == 0 {
			return nil
		}
		return o.state.TransferNative(o.addr, o.owner, swept)
	})
	if err != nil {
		return nil, err
	}

	if swept.Sign() > 0 {
		o.logger.Info("native balance swept", zap.String("amount", swept.String()))
	}
	return swept, nil
}
