package engine

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/lender"
	"github.com/michaelpento.lv/flasharb/plan"
	"github.com/michaelpento.lv/flasharb/venue"
)

// Test universe: USDC-denominated loans, two venues, 0.05% lender premium.
// Token amounts use 6 decimals, so 100 USDC = 100_000_000.
var (
	usdc = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	weth = common.HexToAddress("0xaaaa000000000000000000000000000000000002")

	poolAddr = common.HexToAddress("0xcccc000000000000000000000000000000000001")
	orchAddr = common.HexToAddress("0xbbbb000000000000000000000000000000000001")
	v1Addr   = common.HexToAddress("0xdddd000000000000000000000000000000000001")
	v2Addr   = common.HexToAddress("0xdddd000000000000000000000000000000000002")

	owner    = common.HexToAddress("0x1111000000000000000000000000000000000001")
	operator = common.HexToAddress("0x1111000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x1111000000000000000000000000000000000009")

	startTime = uint64(1_700_000_000)
)

// fixedVenue pays a preset output per call regardless of input. Lets tests
// pin exact swap results. reportOut, when set, is what the venue claims to
// have paid while actually paying out.
type fixedVenue struct {
	state     *chain.State
	addr      common.Address
	out       *big.Int
	reportOut *big.Int
	fail      error
	reenter   func() error
}

func (v *fixedVenue) Address() common.Address { return v.addr }
func (v *fixedVenue) Name() string            { return "fixed" }

func (v *fixedVenue) Quote(amountIn *big.Int, path []common.Address) (*big.Int, error) {
	return new(big.Int).Set(v.out), nil
}

func (v *fixedVenue) Exchange(caller common.Address, amountIn, minAmountOut *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) ([]*big.Int, error) {
	if v.fail != nil {
		return nil, v.fail
	}
	if v.reenter != nil {
		if err := v.reenter(); err != nil {
			return nil, err
		}
	}
	if err := v.state.TransferFrom(path[0], v.addr, caller, v.addr, amountIn); err != nil {
		return nil, err
	}
	if err := v.state.Transfer(path[len(path)-1], v.addr, recipient, v.out); err != nil {
		return nil, err
	}
	reported := v.out
	if v.reportOut != nil {
		reported = v.reportOut
	}
	return []*big.Int{new(big.Int).Set(amountIn), new(big.Int).Set(reported)}, nil
}

type testEngine struct {
	state *chain.State
	pool  *lender.Pool
	orch  *Orchestrator
	v1    *fixedVenue // USDC -> WETH: pays 98 WETH
	v2    *fixedVenue // WETH -> USDC: pays 101 USDC
}

func newTestEngine(t testing.TB) *testEngine {
	t.Helper()
	logger := zaptest.NewLogger(t)

	st := chain.NewState(startTime)
	pool := lender.NewPool(st, poolAddr, 5, logger)
	pool.Fund(usdc, big.NewInt(1_000_000_000))

	v1 := &fixedVenue{state: st, addr: v1Addr, out: big.NewInt(98_000_000)}
	v2 := &fixedVenue{state: st, addr: v2Addr, out: big.NewInt(101_000_000)}
	st.Mint(weth, v1Addr, big.NewInt(1_000_000_000))
	st.Mint(usdc, v2Addr, big.NewInt(1_000_000_000))

	registry := venue.NewRegistry()
	registry.Register(v1)
	registry.Register(v2)

	orch, err := NewOrchestrator(Config{
		Address:   orchAddr,
		Owner:     owner,
		Operator:  operator,
		State:     st,
		Lender:    pool,
		Registry:  registry,
		Allowlist: venue.NewAllowlist(v1Addr, v2Addr),
	}, logger)
	require.NoError(t, err)

	return &testEngine{state: st, pool: pool, orch: orch, v1: v1, v2: v2}
}

// twoHopPayload encodes the reference plan: 100 USDC -> 98 WETH at v1,
// then 98 WETH -> 101 USDC at v2.
func (e *testEngine) twoHopPayload(t testing.TB, minProfit int64) []byte {
	t.Helper()
	deadline := big.NewInt(int64(startTime) + 120)
	p := &plan.Plan{
		Swaps: []plan.SwapStep{
			{
				Venue:        v1Addr,
				Path:         []common.Address{usdc, weth},
				AmountIn:     big.NewInt(100_000_000),
				MinAmountOut: big.NewInt(98_000_000),
				Deadline:     deadline,
			},
			{
				Venue:        v2Addr,
				Path:         []common.Address{weth, usdc},
				AmountIn:     big.NewInt(98_000_000),
				MinAmountOut: big.NewInt(100_500_000),
				Deadline:     deadline,
			},
		},
		MinProfit:   big.NewInt(minProfit),
		ProfitToken: usdc,
	}
	data, err := plan.Encode(p)
	require.NoError(t, err)
	return data
}

func decodeForTest(data []byte) (*plan.Plan, error) {
	return plan.Decode(data)
}

func encodeForTest(t testing.TB, p *plan.Plan) []byte {
	t.Helper()
	data, err := plan.Encode(p)
	require.NoError(t, err)
	return data
}

// snapshotBalances captures everything the atomicity tests compare.
type balances struct {
	poolUSDC  *big.Int
	orchUSDC  *big.Int
	orchWETH  *big.Int
	ownerUSDC *big.Int
	v1WETH    *big.Int
	v2USDC    *big.Int
}

func (e *testEngine) balances() balances {
	return balances{
		poolUSDC:  e.state.BalanceOf(usdc, poolAddr),
		orchUSDC:  e.state.BalanceOf(usdc, orchAddr),
		orchWETH:  e.state.BalanceOf(weth, orchAddr),
		ownerUSDC: e.state.BalanceOf(usdc, owner),
		v1WETH:    e.state.BalanceOf(weth, v1Addr),
		v2USDC:    e.state.BalanceOf(usdc, v2Addr),
	}
}

func requireUnchanged(t *testing.T, before, after balances) {
	t.Helper()
	require.Zero(t, before.poolUSDC.Cmp(after.poolUSDC), "pool USDC changed")
	require.Zero(t, before.orchUSDC.Cmp(after.orchUSDC), "orchestrator USDC changed")
	require.Zero(t, before.orchWETH.Cmp(after.orchWETH), "orchestrator WETH changed")
	require.Zero(t, before.ownerUSDC.Cmp(after.ownerUSDC), "owner USDC changed")
	require.Zero(t, before.v1WETH.Cmp(after.v1WETH), "venue 1 WETH changed")
	require.Zero(t, before.v2USDC.Cmp(after.v2USDC), "venue 2 USDC changed")
}
