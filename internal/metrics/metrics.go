package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register;
// until then every Inc/Set helper is a no-op so the supervisor can call
// them unconditionally.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "frpherd",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful frpc starts.",
		},
	)
	processStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "frpherd",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of explicit frpc stops.",
		},
	)
	processRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "frpherd",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of frpc restarts.",
		},
	)
	unexpectedExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "frpherd",
			Subsystem: "process",
			Name:      "unexpected_exits_total",
			Help:      "Number of times frpc died without an explicit stop.",
		},
	)
	processRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "frpherd",
			Subsystem: "process",
			Name:      "running",
			Help:      "Whether frpc is currently running (1 or 0).",
		},
	)
	outputLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "frpherd",
			Subsystem: "process",
			Name:      "output_lines_total",
			Help:      "Number of output lines captured from frpc.",
		},
	)
	reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "frpherd",
			Subsystem: "reload",
			Name:      "attempts_total",
			Help:      "Number of config reload attempts by outcome.",
		}, []string{"outcome"},
	)
)

// Register registers all collectors with reg and enables the helpers.
// Safe to call once per process.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		processStarts, processStops, processRestarts,
		unexpectedExits, processRunning, outputLines, reloads,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	regOK.Store(true)
	return nil
}

// Serve exposes /metrics on addr using the given gatherer. It blocks, so
// callers run it on its own goroutine.
func Serve(addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

func IncProcessStarts() {
	if regOK.Load() {
		processStarts.Inc()
	}
}

func IncProcessStops() {
	if regOK.Load() {
		processStops.Inc()
	}
}

func IncProcessRestarts() {
	if regOK.Load() {
		processRestarts.Inc()
	}
}

func IncUnexpectedExits() {
	if regOK.Load() {
		unexpectedExits.Inc()
	}
}

func SetProcessRunning(running bool) {
	if !regOK.Load() {
		return
	}
	if running {
		processRunning.Set(1)
	} else {
		processRunning.Set(0)
	}
}

func IncOutputLines() {
	if regOK.Load() {
		outputLines.Inc()
	}
}

func IncReloads(outcome string) {
	if regOK.Load() {
		reloads.WithLabelValues(outcome).Inc()
	}
}
