package engine

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// Ledger is the monotone audit trail: how many operations succeeded and how
// much profit they realized in total. Record is called exactly once per
// successful operation; there is no decrement path.
type Ledger struct {
	mu               sync.Mutex
	operations       uint64
	cumulativeProfit *big.Int

	metrics struct {
		operations prometheus.Counter
		profit     prometheus.Counter
	}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	l := &Ledger{cumulativeProfit: new(big.Int)}

	l.metrics.operations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_operations_succeeded_total",
		Help: "Number of fully settled arbitrage operations",
	})
	l.metrics.profit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_profit_total",
		Help: "Cumulative realized profit in base units of the borrowed asset",
	})

	return l
}

// Record adds one successful operation with the given profit.
func (l *Ledger) Record(profit *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.operations++
	l.cumulativeProfit.Add(l.cumulativeProfit, profit)

	l.metrics.operations.Inc()
	l.metrics.profit.Add(float64(profit.Uint64()))
}

// Stats returns the operation count and a copy of the cumulative profit.
func (l *Ledger) Stats() (uint64, *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.operations, bigmath.Clone(l.cumulativeProfit)
}

// Collectors returns the ledger's prometheus collectors for registration.
func (l *Ledger) Collectors() []prometheus.Collector {
	return []prometheus.Collector{l.metrics.operations, l.metrics.profit}
}

// RecordedOperations reads the operation counter back out of prometheus.
// Cross-checks the in-memory count on the stats surface.
func (l *Ledger) RecordedOperations() float64 {
	return counterValue(l.metrics.operations)
}

func counterValue(c prometheus.Counter) float64 {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	out := &dto.Metric{}
	if err := m.Write(out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}
