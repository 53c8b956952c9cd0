package bot

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/lender"
	"github.com/michaelpento.lv/flasharb/planner"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/venue"
)

// candidate is a route resolved to addresses plus its sizing.
type candidate struct {
	route    *planner.Route
	asset    common.Address
	amountIn *big.Int
}

// Bot owns the whole trading world: the state substrate, the lender, the
// venues and the engine, plus the scan loop that feeds plans into it.
type Bot struct {
	cfg    *config.Config
	logger *zap.Logger

	state        *chain.State
	pool         *lender.Pool
	registry     *venue.Registry
	allowlist    *venue.Allowlist
	orchestrator *engine.Orchestrator
	planner      *planner.Planner
	simulator    *simulator.Simulator

	operator   common.Address
	candidates []candidate
	minProfit  *big.Int
	limiter    *rate.Limiter
	prom       *prometheus.Registry
}

// New builds a bot from config: it loads the universe file, seeds the
// substrate and wires every component.
func New(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	u, err := config.LoadUniverse(cfg.UniverseFile)
	if err != nil {
		return nil, err
	}

	minProfit, err := config.ParseAmount(cfg.MinProfit)
	if err != nil {
		return nil, fmt.Errorf("min_profit: %w", err)
	}
	borrowAmount, err := config.ParseAmount(cfg.BorrowAmount)
	if err != nil {
		return nil, fmt.Errorf("borrow_amount: %w", err)
	}
	gasCharge, err := config.ParseAmount(cfg.GasCharge)
	if err != nil {
		return nil, fmt.Errorf("gas_charge: %w", err)
	}

	st := chain.NewState(uint64(time.Now().Unix()))

	pool := lender.NewPool(st, common.HexToAddress(u.Lender.Address), u.Lender.PremiumBps, logger)
	for _, l := range u.Lender.Liquidity {
		token, _ := u.TokenAddress(l.Token)
		amount, _ := config.ParseAmount(l.Amount)
		pool.Fund(token, amount)
	}

	registry := venue.NewRegistry()
	allowlist := venue.NewAllowlist()
	for _, def := range u.Venues {
		addr := common.HexToAddress(def.Address)
		amm := venue.NewAMM(st, addr, def.Name, logger)
		for _, pd := range def.Pools {
			tokenA, _ := u.TokenAddress(pd.TokenA)
			tokenB, _ := u.TokenAddress(pd.TokenB)
			reserveA, _ := config.ParseAmount(pd.ReserveA)
			reserveB, _ := config.ParseAmount(pd.ReserveB)
			amm.AddPool(tokenA, tokenB, reserveA, reserveB)
		}
		registry.Register(amm)
		if def.Approved {
			allowlist.Set(addr, true)
		}
	}

	ledger := engine.NewLedger()
	orch, err := engine.NewOrchestrator(engine.Config{
		Address:   common.HexToAddress(u.Accounts.Orchestrator),
		Owner:     common.HexToAddress(u.Accounts.Owner),
		Operator:  common.HexToAddress(u.Accounts.Operator),
		State:     st,
		Lender:    pool,
		Registry:  registry,
		Allowlist: allowlist,
		Ledger:    ledger,
	}, logger)
	if err != nil {
		return nil, err
	}

	pl, err := planner.New(registry, planner.Config{
		PremiumBps:   u.Lender.PremiumBps,
		SlippageBps:  cfg.SlippageBps,
		DeadlineSecs: cfg.DeadlineSecs,
		GasCharge:    gasCharge,
	}, logger)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(u.Routes))
	for _, rd := range u.Routes {
		asset, _ := u.TokenAddress(rd.Asset)
		amountIn := borrowAmount
		if rd.AmountIn != "" {
			amountIn, _ = config.ParseAmount(rd.AmountIn)
		}
		path := make([]common.Address, len(rd.Path))
		for i, sym := range rd.Path {
			path[i], _ = u.TokenAddress(sym)
		}
		venues := make([]common.Address, len(rd.Venues))
		for i, name := range rd.Venues {
			venues[i], _ = u.VenueAddress(name)
		}
		candidates = append(candidates, candidate{
			route:    &planner.Route{Venues: venues, Path: path},
			asset:    asset,
			amountIn: amountIn,
		})
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(orch.Collectors()...)
	prom.MustRegister(ledger.Collectors()...)

	return &Bot{
		cfg:          cfg,
		logger:       logger,
		state:        st,
		pool:         pool,
		registry:     registry,
		allowlist:    allowlist,
		orchestrator: orch,
		planner:      pl,
		simulator:    simulator.New(st, pool, registry, allowlist, common.HexToAddress(u.Accounts.Orchestrator), logger),
		operator:     common.HexToAddress(u.Accounts.Operator),
		candidates:   candidates,
		minProfit:    minProfit,
		limiter:      rate.NewLimiter(rate.Limit(cfg.SubmitPerSec), cfg.SubmitBurst),
		prom:         prom,
	}, nil
}

// Orchestrator exposes the engine for the admin surface.
func (b *Bot) Orchestrator() *engine.Orchestrator { return b.orchestrator }

// Ledger exposes the engine's audit trail.
func (b *Bot) Ledger() *engine.Ledger { return b.orchestrator.Ledger() }

// Run drives the scan loop until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot starting",
		zap.Int("routes", len(b.candidates)),
		zap.Duration("scan_interval", b.cfg.ScanInterval),
	)

	if b.cfg.MetricsEnabled {
		go b.serveMetrics(ctx)
	}

	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping")
			return ctx.Err()
		case <-ticker.C:
			b.state.SetTime(uint64(time.Now().Unix()))
			b.scan(ctx)
		}
	}
}

// scan rehearses every candidate route once and submits the ones that
// survive estimation and simulation.
func (b *Bot) scan(ctx context.Context) {
	b.planner.InvalidateQuotes()

	for _, c := range b.candidates {
		if err := b.evaluate(ctx, c); err != nil {
			b.logger.Debug("route skipped",
				zap.String("asset", c.asset.Hex()),
				zap.Error(err),
			)
		}
	}
}

func (b *Bot) evaluate(ctx context.Context, c candidate) error {
	estimate, err := b.planner.Estimate(c.route, c.amountIn)
	if err != nil {
		return fmt.Errorf("estimate: %w", err)
	}
	if !b.planner.ShouldSubmit(estimate, b.minProfit) {
		return fmt.Errorf("estimate %s below floor %s", estimate, b.minProfit)
	}

	payload, err := b.planner.BuildPlan(c.route, c.amountIn, b.minProfit, b.state.Now())
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	fp := planner.Fingerprint(payload)
	if b.planner.SeenFailure(fp) {
		return fmt.Errorf("identical plan recently failed")
	}

	if res := b.simulator.Simulate(c.asset, c.amountIn, payload); !res.Success {
		b.planner.MarkFailed(fp)
		return fmt.Errorf("simulation: %w", res.Err)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := b.orchestrator.Initiate(b.operator, c.asset, c.amountIn, payload); err != nil {
		b.planner.MarkFailed(fp)
		return fmt.Errorf("initiate: %w", err)
	}

	ops, profit := b.Ledger().Stats()
	b.logger.Info("operation settled",
		zap.String("asset", c.asset.Hex()),
		zap.String("amount_in", c.amountIn.String()),
		zap.Uint64("total_operations", ops),
		zap.String("cumulative_profit", profit.String()),
	)
	return nil
}

func (b *Bot) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(b.prom, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: b.cfg.MetricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	b.logger.Info("metrics listening", zap.String("addr", b.cfg.MetricsAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		b.logger.Error("metrics server failed", zap.Error(err))
	}
}
