package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kiosk counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Blacklist metrics
	RequestsBlocked prometheus.Counter
	PagesClosed     *prometheus.CounterVec

	// Lifecycle metrics
	PhaseTransitions *prometheus.CounterVec
	Restarts         *prometheus.CounterVec
	OpenBrowsers     prometheus.Gauge

	// Gate metrics
	GateAttempts *prometheus.CounterVec

	// Watch metrics
	Snapshots *prometheus.CounterVec

	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_requests_blocked_total",
			Help: "Outgoing requests failed by the blacklist",
		}),
		PagesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_pages_closed_total",
				Help: "Pages closed by kioskd",
			},
			[]string{"reason"},
		),
		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_phase_transitions_total",
				Help: "Session phases entered",
			},
			[]string{"phase"},
		),
		Restarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_restarts_total",
				Help: "Terminations by exit code and wipe decision",
			},
			[]string{"code", "wipe"},
		),
		OpenBrowsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kioskd_open_browsers",
			Help: "Browser instances held by the registry",
		}),
		GateAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_gate_attempts_total",
				Help: "Kiosk gate credential checks",
			},
			[]string{"result"},
		),
		Snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_watch_snapshots_total",
				Help: "Snapshots received from the config watch service",
			},
			[]string{"stream"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kioskd_uptime_seconds",
		Help: "Seconds since the process started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RequestBlocked() {
	if m == nil {
		return
	}
	m.RequestsBlocked.Inc()
}

func (m *Metrics) PageClosed(reason string) {
	if m == nil {
		return
	}
	m.PagesClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) PhaseEntered(phase string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(phase).Inc()
}

func (m *Metrics) Restarted(code int, wipe bool) {
	if m == nil {
		return
	}
	wiped := "false"
	if wipe {
		wiped = "true"
	}
	m.Restarts.WithLabelValues(strconv.Itoa(code), wiped).Inc()
}

func (m *Metrics) BrowsersOpen(n int) {
	if m == nil {
		return
	}
	m.OpenBrowsers.Set(float64(n))
}

func (m *Metrics) GateAttempt(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.GateAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SnapshotReceived(stream string) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(stream).Inc()
}
