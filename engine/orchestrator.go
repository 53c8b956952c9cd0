package engine

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/lender"
	"github.com/michaelpento.lv/flasharb/plan"
	"github.com/michaelpento.lv/flasharb/venue"
)

// Orchestrator is the top-level controller of one borrow-trade-repay
// operation: it requests the loan, authenticates the lender's callback,
// drives the swap pipeline, verifies profitability, authorizes repayment
// and sweeps the surplus to the owner. It holds no recoverable state of its
// own; a failed operation is rolled back wholesale by the substrate.
type Orchestrator struct {
	state     *chain.State
	pool      *lender.Pool
	pipeline  *Pipeline
	allowlist *venue.Allowlist
	ledger    *Ledger
	logger    *zap.Logger

	addr     common.Address
	owner    common.Address
	operator common.Address

	// Admission state for the one genuine reentrancy hazard: a venue
	// calling back into the engine mid-operation.
	mu               sync.Mutex
	busy             bool
	awaitingCallback bool

	metrics struct {
		operations       prometheus.Counter
		successes        prometheus.Counter
		failures         *prometheus.CounterVec
		executionLatency prometheus.Histogram
		activeOperations prometheus.Gauge
	}
}

// Config carries the identities and collaborators of an orchestrator.
type Config struct {
	Address  common.Address
	Owner    common.Address
	Operator common.Address

	State     *chain.State
	Lender    *lender.Pool
	Registry  *venue.Registry
	Allowlist *venue.Allowlist
	Ledger    *Ledger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if cfg.State == nil || cfg.Lender == nil || cfg.Registry == nil || cfg.Allowlist == nil {
		return nil, fmt.Errorf("orchestrator config is missing a collaborator")
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewLedger()
	}

	o := &Orchestrator{
		state:     cfg.State,
		pool:      cfg.Lender,
		allowlist: cfg.Allowlist,
		ledger:    cfg.Ledger,
		logger:    logger,
		addr:      cfg.Address,
		owner:     cfg.Owner,
		operator:  cfg.Operator,
	}
	o.pipeline = NewPipeline(cfg.State, cfg.Registry, cfg.Allowlist, cfg.Address, logger)

	o.metrics.operations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_operations_total",
		Help: "Number of initiated arbitrage operations",
	})
	o.metrics.successes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_operations_success_total",
		Help: "Number of arbitrage operations that settled",
	})
	o.metrics.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbitrage_operations_failed_total",
		Help: "Number of aborted arbitrage operations by reason",
	}, []string{"reason"})
	o.metrics.executionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbitrage_execution_latency_seconds",
		Help:    "Latency of arbitrage operations end to end",
		Buckets: prometheus.DefBuckets,
	})
	o.metrics.activeOperations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbitrage_active_operations",
		Help: "Number of operations currently in flight",
	})

	return o, nil
}

// Address returns the orchestrator's own identity on the substrate.
func (o *Orchestrator) Address() common.Address { return o.addr }

// Ledger returns the engine's audit trail.
func (o *Orchestrator) Ledger() *Ledger { return o.ledger }

// Collectors returns the orchestrator's prometheus collectors.
func (o *Orchestrator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.metrics.operations,
		o.metrics.successes,
		o.metrics.failures,
		o.metrics.executionLatency,
		o.metrics.activeOperations,
	}
}

// enter marks the engine busy for one operation. Fails if an operation is
// already in flight, which inside a single operation means reentrancy.
func (o *Orchestrator) enter() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrReentrantCall
	}
	o.busy = true
	o.awaitingCallback = true
	return nil
}

// exit clears the admission state on every exit path.
func (o *Orchestrator) exit() {
	o.mu.Lock()
	o.busy = false
	o.awaitingCallback = false
	o.mu.Unlock()
}

// claimCallback consumes the one expected lender callback for the current
// operation. A second callback, or one arriving outside an operation, is a
// reentrancy violation.
func (o *Orchestrator) claimCallback() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.busy || !o.awaitingCallback {
		return ErrReentrantCall
	}
	o.awaitingCallback = false
	return nil
}

// Initiate starts one arbitrage operation: borrow amount of asset, run the
// encoded plan, repay and keep the surplus. Operator-only. The call returns
// only after the lender has fully settled or rolled back the operation.
func (o *Orchestrator) Initiate(caller, asset common.Address, amount *big.Int, payload []byte) error {
	if caller != o.operator {
		return fmt.Errorf("%w: %s", ErrNotOperator, caller.Hex())
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := o.enter(); err != nil {
		return err
	}
	defer o.exit()

	start := time.Now()
	o.metrics.operations.Inc()
	o.metrics.activeOperations.Inc()
	defer func() {
		o.metrics.activeOperations.Dec()
		o.metrics.executionLatency.Observe(time.Since(start).Seconds())
	}()

	if err := o.pool.Borrow(o.addr, o, asset, amount, payload, 0); err != nil {
		o.metrics.failures.WithLabelValues(failureReason(err)).Inc()
		o.logger.Warn("arbitrage operation aborted",
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.String()),
			zap.String("reason", failureReason(err)),
			zap.Error(err),
		)
		return err
	}

	o.metrics.successes.Inc()
	return nil
}

// OnLoanReceived is the lender callback: funds have been transferred and
// this method must leave the pool authorized to reclaim amount+fee, or
// fail. The checks run in a fixed order, each fatal.
func (o *Orchestrator) OnLoanReceived(caller, asset common.Address, amount, fee *big.Int, initiator common.Address, params []byte) error {
	if caller != o.pool.Address() {
		return fmt.Errorf("%w: %s", ErrUnauthorizedCallback, caller.Hex())
	}
	if initiator != o.addr {
		return fmt.Errorf("%w: %s", ErrUntrustedInitiator, initiator.Hex())
	}
	if err := o.claimCallback(); err != nil {
		return err
	}

	p, err := plan.Decode(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if p.ProfitToken != asset {
		return fmt.Errorf("%w: profit token %s differs from borrowed asset %s",
			ErrMalformedPlan, p.ProfitToken.Hex(), asset.Hex())
	}

	startBalance := o.state.BalanceOf(asset, o.addr)

	if err := o.pipeline.ExecuteAll(p.Swaps); err != nil {
		return err
	}

	owed := new(big.Int).Add(amount, fee)
	endBalance := o.state.BalanceOf(asset, o.addr)

	profit, err := ValidateProfit(endBalance, owed, p.MinProfit)
	if err != nil {
		return err
	}

	// Authorize reclamation of exactly amount+fee, then settle the books
	// and sweep the surplus. From here on nothing can fail: the allowance
	// and balance both cover what the lender will pull.
	o.state.Approve(asset, o.addr, o.pool.Address(), owed)
	o.ledger.Record(profit)

	if profit.Sign() > 0 {
		if err := o.state.Transfer(asset, o.addr, o.owner, profit); err != nil {
			return fmt.Errorf("failed to sweep profit: %w", err)
		}
	}

	o.logger.Info("arbitrage executed",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()),
		zap.String("start_balance", startBalance.String()),
		zap.String("end_balance", endBalance.String()),
		zap.String("profit", profit.String()),
		zap.Int("swaps", len(p.Swaps)),
	)
	return nil
}
