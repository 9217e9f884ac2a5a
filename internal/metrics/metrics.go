package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "crisisreport"

// Metrics holds the Prometheus metrics of one report run. They live in their
// own registry so a run can be pushed as a whole.
type Metrics struct {
	Registry *prometheus.Registry

	Datasets       *prometheus.CounterVec
	LookupFailures *prometheus.CounterVec
	CrisisErrors   prometheus.Counter
	ActivityMax    prometheus.Gauge
	RowsPublished  prometheus.Gauge
	LastRun        prometheus.Gauge
	RunDuration    prometheus.Gauge
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Datasets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisisreport",
			Name:      "datasets_total",
			Help:      "Datasets evaluated, by outcome (new, updated, dropped, skipped)",
		}, []string{"status"}),
		LookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisisreport",
			Name:      "lookup_failures_total",
			Help:      "Failed catalog, activity or user lookups",
		}, []string{"op"}),
		CrisisErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crisisreport",
			Name:      "crisis_errors_total",
			Help:      "Crises that could not be processed",
		}),
		ActivityMax: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisisreport",
			Name:      "activity_list_max",
			Help:      "Longest activity list fetched in the last run",
		}),
		RowsPublished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisisreport",
			Name:      "rows_published",
			Help:      "Rows written to the report in the last run",
		}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisisreport",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisisreport",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}
}

func (m *Metrics) ObserveDataset(status string) {
	m.Datasets.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLookupFailure(op string) {
	m.LookupFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveCrisisError() {
	m.CrisisErrors.Inc()
}

// ObserveRun records the totals of a finished run.
func (m *Metrics) ObserveRun(rows, maxActivities int, started, finished time.Time) {
	m.RowsPublished.Set(float64(rows))
	m.ActivityMax.Set(float64(maxActivities))
	m.LastRun.Set(float64(finished.Unix()))
	m.RunDuration.Set(finished.Sub(started).Seconds())
}

// Push sends every metric to the Pushgateway at url, replacing the previous
// push of this job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	return push.New(url, jobName).Gatherer(m.Registry).PushContext(ctx)
}
