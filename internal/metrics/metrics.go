// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/poller"
	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/status"
)

const namespace = "nilan"

// Cycle outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeAborted  = "aborted"
	OutcomeError    = "error"
)

// Exporter mirrors device state and link health into Prometheus metrics.
// Enumerations export their raw code.
type Exporter struct {
	registry *prometheus.Registry

	values         *prometheus.GaugeVec
	cycles         *prometheus.CounterVec
	readFailures   *prometheus.CounterVec
	commands       *prometheus.CounterVec
	health         prometheus.Gauge
	secondsInError prometheus.Gauge
}

// New creates an exporter with its own registry.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),

		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attribute_value",
			Help:      "Last decoded value per attribute; enumerations report their code.",
		}, []string{"attribute"}),

		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"outcome"}),

		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed register reads per attribute.",
		}, []string{"attribute"}),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_total",
			Help:      "Commands written to the device by attribute and outcome.",
		}, []string{"attribute", "outcome"}),

		health: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_health",
			Help:      "Link health code: 0 unknown, 1 ok, 2 error, 3 degraded, 4 disabled.",
		}),

		secondsInError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seconds_in_error",
			Help:      "Seconds since the link left the ok state.",
		}),
	}

	e.registry.MustRegister(
		e.values,
		e.cycles,
		e.readFailures,
		e.commands,
		e.health,
		e.secondsInError,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Registry exposes the exporter's registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Observe records one poll cycle.
func (e *Exporter) Observe(res poller.Result, snap state.Snapshot, h status.Snapshot) {
	switch {
	case res.Aborted != nil:
		e.cycles.WithLabelValues(OutcomeAborted).Inc()
	case len(res.Failed) > 0:
		e.cycles.WithLabelValues(OutcomeDegraded).Inc()
	default:
		e.cycles.WithLabelValues(OutcomeOK).Inc()
	}

	for _, fe := range res.Failed {
		e.readFailures.WithLabelValues(string(fe.Attribute)).Inc()
	}

	for _, f := range snap.Fields {
		if v, ok := f.Value.Number(); ok {
			e.values.WithLabelValues(string(f.Spec.Name)).Set(v)
		}
	}

	e.health.Set(float64(h.Health))
	e.secondsInError.Set(float64(h.SecondsInError))
}

// Command records one command outcome.
func (e *Exporter) Command(a registers.Attribute, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	e.commands.WithLabelValues(string(a), outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on listen+path until ctx ends.
func (e *Exporter) Serve(ctx context.Context, listen, path string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle(path, e.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("metrics listening", zap.String("listen", listen), zap.String("path", path))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
