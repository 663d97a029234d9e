package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/domain/event"
)

const namespace = "portal"

// Metrics holds the portal collectors and the registry that serves them
type Metrics struct {
	registry *prometheus.Registry

	workflowEvents  *prometheus.CounterVec
	amountTotal     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	exportedVoucher prometheus.Counter
}

// New creates collectors on a private registry.
// Go runtime and process collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		workflowEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_events_total",
				Help:      "Total number of committed workflow events by type and form type",
			},
			[]string{"type", "form_type"},
		),
		amountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submitted_amount_total",
				Help:      "Sum of submitted request amounts by form type",
			},
			[]string{"form_type"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		exportedVoucher: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_vouchers_total",
			Help:      "Total number of voucher rows written to transaction exports",
		}),
	}
}

// Register subscribes the event counters to every workflow event type
func (m *Metrics) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeRequestSubmitted,
		event.TypeRequestManagerApproved,
		event.TypeRequestManagerRejected,
		event.TypeRequestAdminApproved,
		event.TypeRequestAdminRejected,
		event.TypeVoucherCompleted,
	} {
		d.Subscribe(t, "metrics", m.HandleEvent)
	}
}

// HandleEvent counts one committed event
func (m *Metrics) HandleEvent(_ context.Context, evt *event.Event) error {
	formType := evt.GetPayloadString(event.KeyFormType)
	m.workflowEvents.WithLabelValues(evt.Type.String(), formType).Inc()
	if evt.Type == event.TypeRequestSubmitted {
		if amount := evt.GetPayloadFloat(event.KeyAmount); amount > 0 {
			m.amountTotal.WithLabelValues(formType).Add(amount)
		}
	}
	return nil
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveExport records rows written by a transaction export
func (m *Metrics) ObserveExport(rows int) {
	m.exportedVoucher.Add(float64(rows))
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
