// Package metrics exposes the progress of a load test run as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const prefix = "atstress_"

const (
	kindLabel  = "kind"
	phaseLabel = "phase"
)

// Metrics is safe to use from concurrent workers. A nil *Metrics records nothing.
type Metrics struct {
	workersLaunched prometheus.Counter
	workersReady    prometheus.Counter
	workersFailed   prometheus.Counter
	jobsRunning     prometheus.Gauge
	cleanupFailures *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
	pingRoundTrip   prometheus.Gauge
	pingFailures    prometheus.Counter
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		workersLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "workers_launched_total",
			Help: "Number of workers launched",
		}),
		workersReady: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "workers_ready_total",
			Help: "Number of workers that completed their setup successfully",
		}),
		workersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "workers_failed_total",
			Help: "Number of workers that failed terminally or never became ready",
		}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "jobs_running",
			Help: "Number of workers whose training job was confirmed running",
		}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cleanup_failures_total",
			Help: "Number of cleanup steps that failed after all retries",
		}, []string{kindLabel}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "phase_duration_seconds",
			Help:    "Time spent in each phase of a run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
		}, []string{phaseLabel}),
		pingRoundTrip: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "ping_round_trip_seconds",
			Help: "Round trip of the last successful ping",
		}),
		pingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "ping_failures_total",
			Help: "Number of pings for which the service was unavailable",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.workersLaunched,
		m.workersReady,
		m.workersFailed,
		m.jobsRunning,
		m.cleanupFailures,
		m.phaseDuration,
		m.pingRoundTrip,
		m.pingFailures,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) WorkerLaunched() {
	if m != nil {
		m.workersLaunched.Inc()
	}
}

func (m *Metrics) WorkerReady(failed bool, jobRunning bool) {
	if m == nil {
		return
	}
	if failed {
		m.workersFailed.Inc()
		return
	}
	m.workersReady.Inc()
	if jobRunning {
		m.jobsRunning.Inc()
	}
}

func (m *Metrics) CleanupFailed(kind string) {
	if m != nil {
		m.cleanupFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PhaseCompleted(phase string, d time.Duration) {
	if m != nil {
		m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

func (m *Metrics) Ping(available bool, roundTrip time.Duration) {
	if m == nil {
		return
	}
	if !available {
		m.pingFailures.Inc()
		return
	}
	m.pingRoundTrip.Set(roundTrip.Seconds())
}

// Serve exposes gatherer on /metrics until ctx is done. A port of 0 disables the endpoint.
func Serve(ctx context.Context, port uint16, gatherer prometheus.Gatherer) error {
	if port == 0 {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("serving metrics on %s/metrics", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
