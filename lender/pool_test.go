package lender

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/chain"
)

var (
	usdc     = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	poolAddr = common.HexToAddress("0xcccc000000000000000000000000000000000001")
	operator = common.HexToAddress("0x1111000000000000000000000000000000000001")
)

// stubReceiver repays what it is told to and records the callback.
type stubReceiver struct {
	state  *chain.State
	pool   common.Address
	addr   common.Address
	repay  bool
	err    error
	called bool

	gotAmount *big.Int
	gotFee    *big.Int
	gotInit   common.Address
}

func (r *stubReceiver) Address() common.Address { return r.addr }

func (r *stubReceiver) OnLoanReceived(caller, asset common.Address, amount, fee *big.Int, initiator common.Address, params []byte) error {
	r.called = true
	r.gotAmount = new(big.Int).Set(amount)
	r.gotFee = new(big.Int).Set(fee)
	r.gotInit = initiator
	if r.err != nil {
		return r.err
	}
	if r.repay {
		owed := new(big.Int).Add(amount, fee)
		r.state.Approve(asset, r.addr, r.pool, owed)
	}
	return nil
}

func newTestPool(t *testing.T) (*chain.State, *Pool, *stubReceiver) {
	st := chain.NewState(1_700_000_000)
	pool := NewPool(st, poolAddr, 5, zaptest.NewLogger(t)) // 0.05%
	pool.Fund(usdc, big.NewInt(1_000_000_000))
	recv := &stubReceiver{
		state: st,
		pool:  poolAddr,
		addr:  common.HexToAddress("0xbbbb000000000000000000000000000000000001"),
		repay: true,
	}
	return st, pool, recv
}

func TestFlashLoanFee(t *testing.T) {
	_, pool, _ := newTestPool(t)
	// 5 bps on 100 USDC (6 decimals) = 0.05 USDC.
	assert.Equal(t, int64(50_000), pool.FlashLoanFee(big.NewInt(100_000_000)).Int64())
	assert.Equal(t, int64(0), pool.FlashLoanFee(big.NewInt(100)).Int64())
}

func TestBorrowHappyPath(t *testing.T) {
	st, pool, recv := newTestPool(t)
	// The receiver needs the fee on hand to repay in full.
	st.Mint(usdc, recv.addr, big.NewInt(50_000))

	err := pool.Borrow(operator, recv, usdc, big.NewInt(100_000_000), []byte("payload"), 0)
	require.NoError(t, err)

	require.True(t, recv.called)
	assert.Equal(t, int64(100_000_000), recv.gotAmount.Int64())
	assert.Equal(t, int64(50_000), recv.gotFee.Int64())
	assert.Equal(t, operator, recv.gotInit)

	// Pool ends up richer by the fee; receiver spent it.
	assert.Equal(t, int64(1_000_050_000), pool.Liquidity(usdc).Int64())
	assert.Equal(t, int64(0), st.BalanceOf(usdc, recv.addr).Int64())
}

func TestBorrowCallbackErrorRollsBack(t *testing.T) {
	st, pool, recv := newTestPool(t)
	boom := errors.New("plan went sideways")
	recv.err = boom

	err := pool.Borrow(operator, recv, usdc, big.NewInt(100_000_000), nil, 0)
	require.ErrorIs(t, err, boom)

	// Zero effect: loan transfer undone too.
	assert.Equal(t, int64(1_000_000_000), pool.Liquidity(usdc).Int64())
	assert.Equal(t, int64(0), st.BalanceOf(usdc, recv.addr).Int64())
}

func TestBorrowWithoutRepaymentRollsBack(t *testing.T) {
	st, pool, recv := newTestPool(t)
	recv.repay = false

	err := pool.Borrow(operator, recv, usdc, big.NewInt(100_000_000), nil, 0)
	require.ErrorIs(t, err, ErrRepaymentFailed)

	assert.Equal(t, int64(1_000_000_000), pool.Liquidity(usdc).Int64())
	assert.Equal(t, int64(0), st.BalanceOf(usdc, recv.addr).Int64())
}

func TestBorrowExceedingLiquidity(t *testing.T) {
	_, pool, recv := newTestPool(t)

	err := pool.Borrow(operator, recv, usdc, big.NewInt(2_000_000_000), nil, 0)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.False(t, recv.called)
}

func TestBorrowRejectsNonPositiveAmount(t *testing.T) {
	_, pool, recv := newTestPool(t)

	require.ErrorIs(t, pool.Borrow(operator, recv, usdc, big.NewInt(0), nil, 0), ErrInvalidAmount)
	require.ErrorIs(t, pool.Borrow(operator, recv, usdc, nil, nil, 0), ErrInvalidAmount)
}
