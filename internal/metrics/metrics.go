package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Inbound webhook signals accepted"},
		[]string{"action", "symbol"},
	)
	SignalsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_routed_total", Help: "Signals dispatched to an account engine"},
		[]string{"account"},
	)
	SignalsUnmatched = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signals_unmatched_total", Help: "Signals that matched no enabled account"},
	)
	GateExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gate_executions_total", Help: "Sequence gate fire events"},
		[]string{"account", "action"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "swaps_total", Help: "Swap attempts by terminal status"},
		[]string{"account", "status"},
	)
	EngineRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_rejects_total", Help: "Executions rejected before a swap attempt"},
		[]string{"account", "reason"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, SignalsRouted, SignalsUnmatched, GateExecutions, SwapsTotal, EngineRejects)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
