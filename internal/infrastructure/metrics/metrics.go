package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	transitions    *prometheus.CounterVec
	signRequests   *prometheus.CounterVec
	watcherMatches prometheus.Counter
	watchers       prometheus.Gauge
	reconnects     prometheus.Counter
}

var (
	defaultOnce sync.Once
	defaultReg  *Metrics
)

// Default returns the collectors registered on the global prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultReg = New(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustline_credit",
			Subsystem: "loan",
			Name:      "transitions_total",
			Help:      "Applied loan lifecycle transitions by trigger and resulting status.",
		}, []string{"trigger", "status"}),
		signRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustline_credit",
			Subsystem: "signing",
			Name:      "requests_total",
			Help:      "Wallet sign requests by step and final outcome.",
		}, []string{"step", "outcome"}),
		watcherMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trustline_credit",
			Subsystem: "watcher",
			Name:      "matches_total",
			Help:      "Validated payments that matched a loan's repayment terms.",
		}),
		watchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trustline_credit",
			Subsystem: "watcher",
			Name:      "active",
			Help:      "Repayment watchers currently subscribed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trustline_credit",
			Subsystem: "ledger",
			Name:      "reconnects_total",
			Help:      "Ledger websocket reconnect attempts.",
		}),
	}
	reg.MustRegister(m.transitions, m.signRequests, m.watcherMatches, m.watchers, m.reconnects)
	return m
}

func (m *Metrics) ObserveTransition(trigger, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(trigger, status).Inc()
}

func (m *Metrics) ObserveSignRequest(step, outcome string) {
	if m == nil {
		return
	}
	m.signRequests.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) WatcherMatched() {
	if m == nil {
		return
	}
	m.watcherMatches.Inc()
}

func (m *Metrics) SetActiveWatchers(n int) {
	if m == nil {
		return
	}
	m.watchers.Set(float64(n))
}

func (m *Metrics) LedgerReconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
