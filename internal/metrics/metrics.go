// Package metrics exposes Prometheus collectors for the split ledger and its
// RPC surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/microsplit/internal/ledger"
	"github.com/mmynk/microsplit/internal/ledgererr"
	"github.com/mmynk/microsplit/internal/models"
)

var _ ledger.Observer = (*Metrics)(nil)

// Metrics records ledger transitions and RPC outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	created     prometheus.Counter
	paid        prometheus.Counter
	closed      prometheus.Counter
	rejected    *prometheus.CounterVec
	transferred prometheus.Counter
	remainder   prometheus.Counter
	refunded    prometheus.Counter
	rpcRequests *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microsplit_splits_created_total",
			Help: "Number of splits created.",
		}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microsplit_payments_total",
			Help: "Number of participant payments applied.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microsplit_splits_closed_total",
			Help: "Number of fully paid splits closed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microsplit_rejections_total",
			Help: "Rejected ledger operations by operation and error code.",
		}, []string{"op", "code"}),
		transferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microsplit_value_transferred_total",
			Help: "Units moved from participants to creators.",
		}),
		remainder: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microsplit_rounding_remainder_total",
			Help: "Units absorbed by creators because totals did not divide evenly.",
		}),
		refunded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microsplit_deposits_refunded_total",
			Help: "Storage deposit units returned to creators on close.",
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microsplit_rpc_requests_total",
			Help: "RPC requests by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "microsplit_rpc_duration_seconds",
			Help:    "RPC handling latency by procedure.",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure"}),
	}
	for _, c := range []prometheus.Collector{
		m.created, m.paid, m.closed, m.rejected, m.transferred,
		m.remainder, m.refunded, m.rpcRequests, m.rpcLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SplitCreated(r *models.SplitRecord) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.remainder.Add(float64(r.Remainder()))
}

func (m *Metrics) SplitPaid(_ *models.SplitRecord, amount uint64) {
	if m == nil {
		return
	}
	m.paid.Inc()
	m.transferred.Add(float64(amount))
}

func (m *Metrics) SplitClosed(r *models.SplitRecord) {
	if m == nil {
		return
	}
	m.closed.Inc()
	m.refunded.Add(float64(r.Deposit))
}

func (m *Metrics) Rejected(op string, code ledgererr.Code) {
	if m == nil {
		return
	}
	label := string(code)
	if label == "" {
		label = "internal"
	}
	m.rejected.WithLabelValues(op, label).Inc()
}

// ObserveRPC records one handled RPC.
func (m *Metrics) ObserveRPC(procedure, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcLatency.WithLabelValues(procedure).Observe(elapsed.Seconds())
}
