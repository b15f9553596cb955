// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.  A nil *Metrics
// is valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	RegionsCreated      prometheus.Counter
	RegionsDeleted      prometheus.Counter
	UsersCreated        prometheus.Counter
	UsersDeleted        prometheus.Counter
	TransactionFailures *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RegionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "georegions_regions_created_total",
			Help: "Total number of regions created",
		}),
		RegionsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "georegions_regions_deleted_total",
			Help: "Total number of regions deleted, including cascades",
		}),
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "georegions_users_created_total",
			Help: "Total number of users created",
		}),
		UsersDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "georegions_users_deleted_total",
			Help: "Total number of users deleted",
		}),
		TransactionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "georegions_transaction_failures_total",
			Help: "Multi-document transactions that were aborted",
		}, []string{"operation"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "georegions_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncRegionsCreated() {
	if m != nil {
		m.RegionsCreated.Inc()
	}
}

func (m *Metrics) AddRegionsDeleted(n int) {
	if m != nil {
		m.RegionsDeleted.Add(float64(n))
	}
}

func (m *Metrics) IncUsersCreated() {
	if m != nil {
		m.UsersCreated.Inc()
	}
}

func (m *Metrics) IncUsersDeleted() {
	if m != nil {
		m.UsersDeleted.Inc()
	}
}

// IncTransactionFailure counts an aborted transaction for operation.
func (m *Metrics) IncTransactionFailure(operation string) {
	if m != nil {
		m.TransactionFailures.WithLabelValues(operation).Inc()
	}
}

// ObserveRequest records the latency of one HTTP request in seconds.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
	}
}
