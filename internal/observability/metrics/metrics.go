package metrics

import "github.com/prometheus/client_golang/prometheus"

// TenancyMetrics exposes counters/histograms for the guard and switch flows.
type TenancyMetrics struct {
	guardDecisions *prometheus.CounterVec
	switchTotal    *prometheus.CounterVec
	switchLatency  prometheus.Histogram
	loginTotal     *prometheus.CounterVec
}

func NewTenancyMetrics(reg prometheus.Registerer) *TenancyMetrics {
	m := &TenancyMetrics{
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard outcomes by decision",
		}, []string{"decision"}),
		switchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "tenancy",
			Name:      "clinic_switch_total",
			Help:      "Clinic switch attempts by outcome",
		}, []string{"outcome"}),
		switchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shifa",
			Subsystem: "tenancy",
			Name:      "clinic_switch_seconds",
			Help:      "Latency of clinic switch handling",
			Buckets:   prometheus.DefBuckets,
		}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "identity",
			Name:      "login_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.guardDecisions, m.switchTotal, m.switchLatency, m.loginTotal)
	return m
}

// ObserveGuardDecision counts a guard outcome ("authorized", "unauthenticated", ...).
func (m *TenancyMetrics) ObserveGuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(decision).Inc()
}

// ObserveSwitch counts a clinic switch attempt ("switched", "noop", "denied", "error").
func (m *TenancyMetrics) ObserveSwitch(outcome string) {
	if m == nil {
		return
	}
	m.switchTotal.WithLabelValues(outcome).Inc()
}

// ObserveSwitchLatency records how long a switch took.
func (m *TenancyMetrics) ObserveSwitchLatency(seconds float64) {
	if m == nil {
		return
	}
	m.switchLatency.Observe(seconds)
}

// ObserveLogin counts a login attempt ("success", "failure", "throttled").
func (m *TenancyMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginTotal.WithLabelValues(outcome).Inc()
}
