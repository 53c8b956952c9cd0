package simulator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/lender"
	"github.com/michaelpento.lv/flasharb/plan"
	"github.com/michaelpento.lv/flasharb/venue"
)

var (
	usdc     = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	weth     = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
	poolAddr = common.HexToAddress("0xcccc000000000000000000000000000000000001")
	selfAddr = common.HexToAddress("0xbbbb000000000000000000000000000000000001")
	v1Addr   = common.HexToAddress("0xdddd000000000000000000000000000000000001")
	v2Addr   = common.HexToAddress("0xdddd000000000000000000000000000000000002")
)

// Two AMMs with skewed reserves: WETH is cheap on v1, dear on v2.
func newFixture(t *testing.T) (*chain.State, *Simulator, []byte) {
	logger := zaptest.NewLogger(t)
	st := chain.NewState(1_700_000_000)

	pool := lender.NewPool(st, poolAddr, 5, logger)
	pool.Fund(usdc, big.NewInt(10_000_000_000))

	v1 := venue.NewAMM(st, v1Addr, "v1", logger)
	v1.AddPool(usdc, weth, big.NewInt(100_000_000_000), big.NewInt(50_000_000_000))
	v2 := venue.NewAMM(st, v2Addr, "v2", logger)
	v2.AddPool(usdc, weth, big.NewInt(120_000_000_000), big.NewInt(50_000_000_000))

	registry := venue.NewRegistry()
	registry.Register(v1)
	registry.Register(v2)

	deadline := big.NewInt(1_700_000_000 + 120)
	p := &plan.Plan{
		Swaps: []plan.SwapStep{
			{Venue: v1Addr, Path: []common.Address{usdc, weth}, AmountIn: big.NewInt(100_000_000), MinAmountOut: big.NewInt(1), Deadline: deadline},
			{Venue: v2Addr, Path: []common.Address{weth, usdc}, AmountIn: big.NewInt(49_000_000), MinAmountOut: big.NewInt(1), Deadline: deadline},
		},
		MinProfit:   big.NewInt(0),
		ProfitToken: usdc,
	}
	payload, err := plan.Encode(p)
	require.NoError(t, err)

	sim := New(st, pool, registry, venue.NewAllowlist(v1Addr, v2Addr), selfAddr, logger)
	return st, sim, payload
}

func TestSimulateLeavesNoTrace(t *testing.T) {
	st, sim, payload := newFixture(t)

	before := st.BalanceOf(usdc, poolAddr)
	res := sim.Simulate(usdc, big.NewInt(100_000_000), payload)
	require.NoError(t, res.Err)
	require.True(t, res.Success)

	assert.Zero(t, st.BalanceOf(usdc, poolAddr).Cmp(before))
	assert.Zero(t, st.BalanceOf(usdc, selfAddr).Sign())
	assert.Zero(t, st.BalanceOf(weth, selfAddr).Sign())
}

func TestSimulateEstimatesProfit(t *testing.T) {
	// 100 USDC buys WETH on the cheap venue and sells it on the dear one;
	// the spread comfortably covers two 0.30% hops plus the 0.05% premium.
	_, sim, payload := newFixture(t)

	res := sim.Simulate(usdc, big.NewInt(100_000_000), payload)
	require.True(t, res.Success)
	assert.Positive(t, res.Profit.Sign())
}

func TestSimulateSurfacesPlanFailure(t *testing.T) {
	_, sim, _ := newFixture(t)

	res := sim.Simulate(usdc, big.NewInt(100_000_000), []byte("garbage"))
	require.False(t, res.Success)
	require.Error(t, res.Err)
}

func TestSimulateSurfacesGuardRejection(t *testing.T) {
	st, sim, _ := newFixture(t)

	deadline := big.NewInt(1_700_000_000 + 120)
	p := &plan.Plan{
		Swaps: []plan.SwapStep{
			// Round trip on the same venue always loses the swap fees.
			{Venue: v1Addr, Path: []common.Address{usdc, weth}, AmountIn: big.NewInt(100_000_000), MinAmountOut: big.NewInt(1), Deadline: deadline},
			{Venue: v1Addr, Path: []common.Address{weth, usdc}, AmountIn: big.NewInt(49_000_000), MinAmountOut: big.NewInt(1), Deadline: deadline},
		},
		MinProfit:   big.NewInt(0),
		ProfitToken: usdc,
	}
	payload, err := plan.Encode(p)
	require.NoError(t, err)

	before := st.BalanceOf(usdc, poolAddr)
	res := sim.Simulate(usdc, big.NewInt(100_000_000), payload)
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, engine.ErrInsufficientProfit)
	assert.Zero(t, st.BalanceOf(usdc, poolAddr).Cmp(before))
}
