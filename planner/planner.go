package planner

import (
	"fmt"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/plan"
	"github.com/michaelpento.lv/flasharb/venue"
)

const (
	quoteCacheSize   = 512
	failureCacheSize = 256
)

// Route is a candidate arbitrage cycle: path[0] is the borrowed asset and
// also path[last]; venues[i] executes the hop path[i] -> path[i+1].
type Route struct {
	Venues []common.Address
	Path   []common.Address
}

func (r *Route) validate() error {
	if len(r.Path) < 3 {
		return fmt.Errorf("route needs at least two hops, got %d tokens", len(r.Path))
	}
	if r.Path[0] != r.Path[len(r.Path)-1] {
		return fmt.Errorf("route must end in the borrowed asset")
	}
	if len(r.Venues) != len(r.Path)-1 {
		return fmt.Errorf("route has %d venues for %d hops", len(r.Venues), len(r.Path)-1)
	}
	return nil
}

// Planner turns candidate routes into encoded plans and screens them with
// its own cost model before anything is submitted. The engine re-verifies
// with real balances; nothing here is trusted.
type Planner struct {
	registry    *venue.Registry
	premiumBps  uint16
	slippageBps uint16
	deadline    uint64 // seconds of validity per step
	gasCharge   *big.Int

	quotes   *lru.Cache // quoteKey -> *big.Int
	failures *lru.Cache // xxhash of payload -> struct{}
	logger   *zap.Logger
}

// Config tunes the planner's cost model.
type Config struct {
	PremiumBps   uint16   // lender premium, e.g. 5 = 0.05%
	SlippageBps  uint16   // tolerated adverse move per hop
	DeadlineSecs uint64   // per-step deadline horizon
	GasCharge    *big.Int // flat execution cost in asset base units
}

// New creates a planner quoting against the given registry.
func New(registry *venue.Registry, cfg Config, logger *zap.Logger) (*Planner, error) {
	quotes, err := lru.New(quoteCacheSize)
	if err != nil {
		return nil, err
	}
	failures, err := lru.New(failureCacheSize)
	if err != nil {
		return nil, err
	}
	gas := cfg.GasCharge
	if gas == nil {
		gas = new(big.Int)
	}
	return &Planner{
		registry:    registry,
		premiumBps:  cfg.PremiumBps,
		slippageBps: cfg.SlippageBps,
		deadline:    cfg.DeadlineSecs,
		gasCharge:   gas,
		quotes:      quotes,
		failures:    failures,
		logger:      logger,
	}, nil
}

type quoteKey struct {
	venue    common.Address
	tokenIn  common.Address
	tokenOut common.Address
	amountIn string
}

// quoteHop returns the estimated output of one hop, memoized until
// InvalidateQuotes is called for the next scan cycle.
func (p *Planner) quoteHop(venueAddr common.Address, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	key := quoteKey{venueAddr, tokenIn, tokenOut, amountIn.String()}
	if cached, ok := p.quotes.Get(key); ok {
		return cached.(*big.Int), nil
	}

	v, err := p.registry.Lookup(venueAddr)
	if err != nil {
		return nil, err
	}
	out, err := v.Quote(amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, err
	}
	p.quotes.Add(key, out)
	return out, nil
}

// InvalidateQuotes drops memoized quotes. Called once per scan cycle so
// quotes never outlive the prices they were read from.
func (p *Planner) InvalidateQuotes() {
	p.quotes.Purge()
}

// Estimate walks the route with live quotes and returns the expected net
// profit: final output minus principal, lender premium and the gas charge.
// Negative results are meaningful and reported as-is.
func (p *Planner) Estimate(route *Route, amountIn *big.Int) (*big.Int, error) {
	if err := route.validate(); err != nil {
		return nil, err
	}

	amount := new(big.Int).Set(amountIn)
	for i := 0; i < len(route.Path)-1; i++ {
		out, err := p.quoteHop(route.Venues[i], amount, route.Path[i], route.Path[i+1])
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amount = out
	}

	// Premium and gross margin in exact decimal, then back to base units.
	principal := decimal.NewFromBigInt(amountIn, 0)
	premium := principal.Mul(decimal.New(int64(p.premiumBps), -4)).Ceil()
	gross := decimal.NewFromBigInt(amount, 0)
	net := gross.Sub(principal).Sub(premium).Sub(decimal.NewFromBigInt(p.gasCharge, 0))

	p.logger.Debug("route estimated",
		zap.String("asset", route.Path[0].Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("estimated_out", amount.String()),
		zap.String("net_profit", net.String()),
	)
	return net.BigInt(), nil
}

// ShouldSubmit applies the submission rule: only plans whose own estimate
// clears the profit floor are worth an execution fee.
func (p *Planner) ShouldSubmit(estimate, minProfit *big.Int) bool {
	return estimate.Cmp(minProfit) >= 0
}

// BuildPlan turns a route into an encoded payload. Per-step minimum
// outputs are the current quotes shaded by the slippage tolerance, and
// deadlines are now+DeadlineSecs.
func (p *Planner) BuildPlan(route *Route, amountIn, minProfit *big.Int, now uint64) ([]byte, error) {
	if err := route.validate(); err != nil {
		return nil, err
	}

	deadline := new(big.Int).SetUint64(now + p.deadline)
	shade := decimal.New(1, 0).Sub(decimal.New(int64(p.slippageBps), -4))

	steps := make([]plan.SwapStep, len(route.Path)-1)
	amount := new(big.Int).Set(amountIn)
	for i := 0; i < len(route.Path)-1; i++ {
		out, err := p.quoteHop(route.Venues[i], amount, route.Path[i], route.Path[i+1])
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		minOut := decimal.NewFromBigInt(out, 0).Mul(shade).Floor().BigInt()
		steps[i] = plan.SwapStep{
			Venue:        route.Venues[i],
			Path:         []common.Address{route.Path[i], route.Path[i+1]},
			AmountIn:     amount,
			MinAmountOut: minOut,
			Deadline:     deadline,
		}
		amount = out
	}

	return plan.Encode(&plan.Plan{
		Swaps:       steps,
		MinProfit:   minProfit,
		ProfitToken: route.Path[0],
	})
}

// Fingerprint identifies a payload for failure deduplication.
func Fingerprint(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// MarkFailed remembers a payload that just failed on-chain.
func (p *Planner) MarkFailed(fingerprint uint64) {
	p.failures.Add(fingerprint, struct{}{})
}

// SeenFailure reports whether an identical payload recently failed.
// Resubmitting the exact same plan buys the exact same failure.
func (p *Planner) SeenFailure(fingerprint uint64) bool {
	return p.failures.Contains(fingerprint)
}
