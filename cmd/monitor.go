package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "jsdm"

// monitor exposes chain progress as prometheus gauges
type monitor struct {
	registry *prometheus.Registry
	stopped  chan struct{}
	server   *http.Server

	Iteration *prometheus.GaugeVec
	Total     *prometheus.GaugeVec
	Retained  *prometheus.GaugeVec
	Failures  prometheus.Counter
}

func newMonitor() *monitor {
	m := &monitor{
		registry: prometheus.NewRegistry(),
		Iteration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "iteration",
			Help:      "Last reported iteration of each chain",
		}, []string{"chain"}),
		Total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "iterations_total",
			Help:      "Iterations each chain will run",
		}, []string{"chain"}),
		Retained: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "retained_samples",
			Help:      "Draws kept so far by each chain",
		}, []string{"chain"}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "failures_total",
			Help:      "Chains stopped by an error",
		}),
	}
	m.registry.MustRegister(m.Iteration, m.Total, m.Retained, m.Failures)
	return m
}

// Start serves the metrics on addr
func (m *monitor) Start(addr string) error {
	if m.server != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	// Help the user and redirect to the only thing available
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/metrics", http.StatusTemporaryRedirect)
	})

	m.stopped = make(chan struct{})
	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Actual server that will close the stopped channel on exit
	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		fmt.Fprintf(os.Stderr, "HTTP now available at %v (see /metrics)\n", m.server.Addr)
		close(started)
		m.server.ListenAndServe()
	}()

	<-started
	return nil
}

func (m *monitor) Stop() {
	if m.server == nil {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
		fmt.Fprintf(os.Stderr, "HTTP Info Stopped\n")
	case <-time.After(2 * time.Second):
		fmt.Fprintf(os.Stderr, "HTTP would NOT stop: just continuing on\n")
	}
}

// Reporter returns the progress reporter of one chain
func (m *monitor) Reporter(chain int) chainGauges {
	label := strconv.Itoa(chain)
	return chainGauges{
		iteration: m.Iteration.WithLabelValues(label),
		total:     m.Total.WithLabelValues(label),
		retained:  m.Retained.WithLabelValues(label),
	}
}

type chainGauges struct {
	iteration, total, retained prometheus.Gauge
}

// Progress implements sampler.Reporter
func (g chainGauges) Progress(iter, total, slot int) {
	g.iteration.Set(float64(iter))
	g.total.Set(float64(total))
	if slot >= 0 {
		g.retained.Set(float64(slot + 1))
	}
}
