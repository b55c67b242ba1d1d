// internal/metrics/collector.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine's Prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	instructions    *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	volume          *prometheus.CounterVec
	fees            *prometheus.CounterVec
	treasuryBalance prometheus.Gauge
	poolReserves    *prometheus.GaugeVec
}

// NewCollector creates the instruments and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trender",
			Name:      "instructions_total",
			Help:      "Processed program instructions by outcome.",
		}, []string{"instruction", "status", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trender",
			Name:      "transaction_duration_seconds",
			Help:      "Time spent processing a transaction, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"instruction"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trender",
			Name:      "settled_lamports_total",
			Help:      "Lamports paid into or out of pool vaults.",
		}, []string{"instruction"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trender",
			Name:      "fees_lamports_total",
			Help:      "Protocol fees credited to the treasury.",
		}, []string{"instruction"}),
		treasuryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trender",
			Name:      "treasury_balance_lamports",
			Help:      "Treasury lamports above the rent-exempt floor.",
		}),
		poolReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trender",
			Name:      "pool_reserved_currency_lamports",
			Help:      "Currency reserve per pool.",
		}, []string{"pool"}),
	}

	for _, m := range []prometheus.Collector{
		c.instructions, c.duration, c.volume, c.fees, c.treasuryBalance, c.poolReserves,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordInstruction counts one instruction outcome. Code is "" on success.
func (c *Collector) RecordInstruction(ctx context.Context, instruction, code string, duration time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case code != "":
		status = "failed"
	}
	c.instructions.WithLabelValues(instruction, status, code).Inc()
	c.duration.WithLabelValues(instruction).Observe(duration.Seconds())
}

// RecordSettlement adds vault volume and treasury fees for one instruction.
func (c *Collector) RecordSettlement(instruction string, lamports, fee uint64) {
	if c == nil {
		return
	}
	c.volume.WithLabelValues(instruction).Add(float64(lamports))
	c.fees.WithLabelValues(instruction).Add(float64(fee))
}

// UpdateTreasuryBalance sets the withdrawable treasury balance.
func (c *Collector) UpdateTreasuryBalance(lamports uint64) {
	if c == nil {
		return
	}
	c.treasuryBalance.Set(float64(lamports))
}

// UpdatePoolReserve sets the currency reserve of one pool.
func (c *Collector) UpdatePoolReserve(pool string, lamports float64) {
	if c == nil {
		return
	}
	c.poolReserves.WithLabelValues(pool).Set(lamports)
}

// Reset clears every labelled series; used between test runs.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.instructions.Reset()
	c.duration.Reset()
	c.volume.Reset()
	c.fees.Reset()
	c.poolReserves.Reset()
	c.treasuryBalance.Set(0)
}
