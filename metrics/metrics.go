// Package metrics exposes Prometheus counters for associations and stored
// instances. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dicomstore"

// Association outcomes used as the "result" label.
const (
	AssociationAccepted = "accepted"
	AssociationRejected = "rejected"
	AssociationAborted  = "aborted"
)

// Metrics contains the collectors of one SCP or SCU.
type Metrics struct {
	AssociationsTotal  *prometheus.CounterVec
	ActiveAssociations prometheus.Gauge
	InstancesReceived  *prometheus.CounterVec
	BytesReceived      prometheus.Counter
	StoreDuration      prometheus.Histogram
	InstancesSent      *prometheus.CounterVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		AssociationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scp",
				Name:      "associations_total",
				Help:      "Association requests by outcome",
			},
			[]string{"result"},
		),
		ActiveAssociations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scp",
				Name:      "active_associations",
				Help:      "Associations currently open",
			},
		),
		InstancesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scp",
				Name:      "instances_received_total",
				Help:      "C-STORE requests answered, by status class",
			},
			[]string{"status"},
		),
		BytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scp",
				Name:      "received_bytes_total",
				Help:      "Data set bytes received in C-STORE requests",
			},
		),
		StoreDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scp",
				Name:      "store_duration_seconds",
				Help:      "Time spent decoding and persisting one instance",
				Buckets:   prometheus.DefBuckets,
			},
		),
		InstancesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scu",
				Name:      "instances_sent_total",
				Help:      "C-STORE sub-operations by status class",
			},
			[]string{"status"},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.AssociationsTotal,
		m.ActiveAssociations,
		m.InstancesReceived,
		m.BytesReceived,
		m.StoreDuration,
		m.InstancesSent,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding m plus Go runtime and process collectors.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, nil
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// NewServer returns an HTTP server exposing reg on /metrics at addr.
func NewServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// AssociationOpened records a negotiated association.
func (m *Metrics) AssociationOpened() {
	if m == nil {
		return
	}
	m.AssociationsTotal.WithLabelValues(AssociationAccepted).Inc()
	m.ActiveAssociations.Inc()
}

// AssociationClosed records the end of an association opened with AssociationOpened.
func (m *Metrics) AssociationClosed(aborted bool) {
	if m == nil {
		return
	}
	m.ActiveAssociations.Dec()
	if aborted {
		m.AssociationsTotal.WithLabelValues(AssociationAborted).Inc()
	}
}

// AssociationRejected records a rejected association request.
func (m *Metrics) AssociationRejected() {
	if m == nil {
		return
	}
	m.AssociationsTotal.WithLabelValues(AssociationRejected).Inc()
}

// InstanceReceived records one answered C-STORE request.
func (m *Metrics) InstanceReceived(statusClass string, size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InstancesReceived.WithLabelValues(statusClass).Inc()
	m.BytesReceived.Add(float64(size))
	m.StoreDuration.Observe(elapsed.Seconds())
}

// InstanceSent records one C-STORE sub-operation outcome on the SCU side.
func (m *Metrics) InstanceSent(statusClass string) {
	if m == nil {
		return
	}
	m.InstancesSent.WithLabelValues(statusClass).Inc()
}
