package lender

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
)

var (
	ErrInvalidAmount         = errors.New("loan amount must be positive")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrRepaymentFailed       = errors.New("loan repayment failed")
)

const bpsDenominator = 10_000

// Receiver is the callback contract a borrower must implement. The pool
// invokes OnLoanReceived after transferring the funds; the receiver must
// approve the pool for amount+fee before returning nil.
type Receiver interface {
	Address() common.Address
	OnLoanReceived(caller, asset common.Address, amount, fee *big.Int, initiator common.Address, params []byte) error
}

// Pool is a flash-loan lender holding liquidity on the shared state.
// Borrow runs transfer, callback and reclamation as one atomic operation;
// if any part fails the whole operation leaves no trace.
type Pool struct {
	state      *chain.State
	addr       common.Address
	premiumBps uint16
	logger     *zap.Logger
}

// NewPool creates a pool at addr charging premiumBps (basis points) per loan.
func NewPool(state *chain.State, addr common.Address, premiumBps uint16, logger *zap.Logger) *Pool {
	return &Pool{
		state:      state,
		addr:       addr,
		premiumBps: premiumBps,
		logger:     logger,
	}
}

func (p *Pool) Address() common.Address { return p.addr }

func (p *Pool) PremiumBps() uint16 { return p.premiumBps }

// FlashLoanFee returns the premium charged on a loan of amount.
func (p *Pool) FlashLoanFee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(p.premiumBps)))
	return fee.Div(fee, big.NewInt(bpsDenominator))
}

// Liquidity returns the pool's available balance of asset.
func (p *Pool) Liquidity(asset common.Address) *big.Int {
	return p.state.BalanceOf(asset, p.addr)
}

// Fund credits liquidity to the pool. Deployment/test seeding only.
func (p *Pool) Fund(asset common.Address, amount *big.Int) {
	p.state.Mint(asset, p.addr, amount)
}

// Borrow lends amount of asset to the recipient for the duration of one
// atomic operation: transfer, then the recipient's callback, then
// reclamation of amount+fee through the recipient's allowance. Callback
// errors propagate unchanged. referralCode is accepted for interface
// compatibility and only logged.
func (p *Pool) Borrow(caller common.Address, recipient Receiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	return p.state.Atomically(func() error {
		if p.state.BalanceOf(asset, p.addr).Cmp(amount) < 0 {
			return fmt.Errorf("%w: asset %s amount %s", ErrInsufficientLiquidity, asset.Hex(), amount)
		}

		fee := p.FlashLoanFee(amount)
		if err := p.state.Transfer(asset, p.addr, recipient.Address(), amount); err != nil {
			return fmt.Errorf("failed to disburse loan: %w", err)
		}

		if err := recipient.OnLoanReceived(p.addr, asset, amount, fee, caller, params); err != nil {
			return err
		}

		owed := new(big.Int).Add(amount, fee)
		if err := p.state.TransferFrom(asset, p.addr, recipient.Address(), p.addr, owed); err != nil {
			return fmt.Errorf("%w: %v", ErrRepaymentFailed, err)
		}

		p.logger.Debug("flash loan settled",
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.String()),
			zap.String("fee", fee.String()),
			zap.String("initiator", caller.Hex()),
			zap.Uint16("referral_code", referralCode),
		)
		return nil
	})
}
