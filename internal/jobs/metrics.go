// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	discrepancies *prometheus.CounterVec
	now           func() time.Time
}

var (
	globalOnce    sync.Once
	globalMetrics *Metrics
)

// NewMetrics registers the job collectors with registerer. Passing nil
// shares one set registered on the global registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	globalOnce.Do(func() { globalMetrics = register(prometheus.DefaultRegisterer) })
	return globalMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_total",
			Help: "Job executions by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backoffice_job_last_success_timestamp_seconds",
			Help: "Unix time of the most recent successful run.",
		}, []string{"job"}),
		discrepancies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_stock_discrepancies_total",
			Help: "Items whose stored quantity disagrees with their movement history.",
		}, []string{"reason"}),
		now: time.Now,
	}
}

// Run is one in-progress job execution.
type Run struct {
	m       *Metrics
	job     string
	started time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Run {
	r := &Run{m: m, job: job, started: time.Now()}
	if m != nil {
		r.started = m.now()
	}
	return r
}

// End records the outcome of the run and hands err back to the caller.
func (r *Run) End(err error) error {
	if r == nil || r.m == nil || r.job == "" {
		return err
	}
	finished := r.m.now()
	r.m.duration.WithLabelValues(r.job).Observe(finished.Sub(r.started).Seconds())
	if err != nil {
		r.m.runs.WithLabelValues(r.job, outcomeFailure).Inc()
		return err
	}
	r.m.runs.WithLabelValues(r.job, outcomeSuccess).Inc()
	r.m.lastSuccess.WithLabelValues(r.job).Set(float64(finished.Unix()))
	return nil
}

// AddDiscrepancies counts items a reconciliation found out of balance.
func (m *Metrics) AddDiscrepancies(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.discrepancies.WithLabelValues(reason).Add(float64(count))
}
