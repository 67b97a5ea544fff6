// Package metrics contains the Prometheus metrics of the service.
package metrics

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the namespace of all service metrics.
const Namespace = "vpn_analytics"

// Analytics is the Prometheus-based implementation of the [api.Metrics]
// interface.
type Analytics struct {
	// tracked is the total number of accepted track requests.
	tracked prometheus.Counter

	// rejected is the total number of track requests with invalid payloads.
	rejected prometheus.Counter

	// connections is the number of events held by the store.
	connections prometheus.Gauge

	// rollupErrors is the total number of failed rollup writes.
	rollupErrors prometheus.Counter
}

// NewAnalytics registers the service metrics in reg and returns a properly
// initialized *Analytics.
func NewAnalytics(reg prometheus.Registerer) (m *Analytics, err error) {
	const (
		eventsTracked  = "events_tracked_total"
		eventsRejected = "events_rejected_total"
		connections    = "connections"
		rollupErrors   = "rollup_errors_total"
	)

	m = &Analytics{
		tracked: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      eventsTracked,
			Namespace: Namespace,
			Help:      "Total number of tracked connection events.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      eventsRejected,
			Namespace: Namespace,
			Help:      "Total number of rejected track requests.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      connections,
			Namespace: Namespace,
			Help:      "Number of connection events held in memory.",
		}),
		rollupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      rollupErrors,
			Namespace: Namespace,
			Help:      "Total number of failed rollup writes.",
		}),
	}

	var errs []error
	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   eventsTracked,
		Value: m.tracked,
	}, {
		Key:   eventsRejected,
		Value: m.rejected,
	}, {
		Key:   connections,
		Value: m.connections,
	}, {
		Key:   rollupErrors,
		Value: m.rollupErrors,
	}}

	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	return m, nil
}

// OnTracked implements the [api.Metrics] interface for *Analytics.
func (m *Analytics) OnTracked(_ context.Context, total int) {
	m.tracked.Inc()
	m.connections.Set(float64(total))
}

// OnRejected implements the [api.Metrics] interface for *Analytics.
func (m *Analytics) OnRejected(_ context.Context) {
	m.rejected.Inc()
}

// OnRollupError implements the [api.Metrics] interface for *Analytics.
func (m *Analytics) OnRollupError(_ context.Context) {
	m.rollupErrors.Inc()
}

// SetUpGauge registers a gauge with a constant 1 value labeled with the
// service version in reg.
func SetUpGauge(reg prometheus.Registerer, version, revision string) (err error) {
	upGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "up",
		Namespace: Namespace,
		Help:      "A metric with a constant '1' value labeled by the service version.",
		ConstLabels: prometheus.Labels{
			"version":  version,
			"revision": revision,
		},
	})

	err = reg.Register(upGauge)
	if err != nil {
		return fmt.Errorf("registering up gauge: %w", err)
	}

	upGauge.Set(1)

	return nil
}
