package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pkaminski/adspulse/internal/logger"
)

// PrometheusSink implements Sink on the Prometheus client library.
// Registration errors are logged and the affected collector keeps working
// unregistered, so a duplicate registration never takes the process down.
type PrometheusSink struct {
	jobsCompletedTotal   *prometheus.CounterVec
	apiRequestsTotal     *prometheus.CounterVec
	apiRequestDuration   *prometheus.HistogramVec
	recordsUpsertedTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a Prometheus metrics sink registered on reg.
// Parameters:
//   - reg: registry the collectors are registered with, typically
//     prometheus.DefaultRegisterer.
// Returns:
//   - *PrometheusSink: functional sink even if some registrations failed.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		jobsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adspulse_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal status.",
		}, []string{"kind", "status"}),
		apiRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adspulse_ads_api_requests_total",
			Help: "Total number of outbound ads API requests.",
		}, []string{"op", "status_class"}),
		apiRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adspulse_ads_api_request_duration_seconds",
			Help:    "Latency of outbound ads API requests in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		recordsUpsertedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adspulse_records_upserted_total",
			Help: "Total number of performance records written to the store.",
		}, []string{"source"}),
	}
	s.register(reg, s.jobsCompletedTotal, "adspulse_jobs_completed_total")
	s.register(reg, s.apiRequestsTotal, "adspulse_ads_api_requests_total")
	s.register(reg, s.apiRequestDuration, "adspulse_ads_api_request_duration_seconds")
	s.register(reg, s.recordsUpsertedTotal, "adspulse_records_upserted_total")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		logger.Warn("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) JobCompleted(kind, status string) {
	s.jobsCompletedTotal.WithLabelValues(kind, status).Inc()
}

func (s *PrometheusSink) APIRequest(op, statusClass string, duration time.Duration) {
	s.apiRequestsTotal.WithLabelValues(op, statusClass).Inc()
	s.apiRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (s *PrometheusSink) RecordsUpserted(source string, n int) {
	s.recordsUpsertedTotal.WithLabelValues(source).Add(float64(n))
}
