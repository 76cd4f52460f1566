package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments one profiling run.
type Metrics struct {
	LinesTotal          prometheus.Counter
	RecordsTotal        *prometheus.CounterVec
	ParseErrorsTotal    prometheus.Counter
	MissingSourceTotal  prometheus.Counter
	RecipesTotal        prometheus.Counter
	FailedFamiliesTotal prometheus.Counter
	FamiliesDiscovered  prometheus.Gauge
}

// NewMetrics registers the pipeline metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "profiler_lines_total",
			Help: "Input lines processed, excluding blanks and comments.",
		}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profiler_records_total",
			Help: "Parsed records by type.",
		}, []string{"type"}),
		ParseErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "profiler_parse_errors_total",
			Help: "Lines rejected as parse errors.",
		}),
		MissingSourceTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "profiler_missing_source_total",
			Help: "Metric lines dropped for a missing source tag.",
		}),
		RecipesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "profiler_recipes_total",
			Help: "Recipes written, including span and histogram recipes.",
		}),
		FailedFamiliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "profiler_failed_families_total",
			Help: "Families skipped after a recipe generation failure.",
		}),
		FamiliesDiscovered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "profiler_families_discovered",
			Help: "Metric families discovered in the current batch.",
		}),
	}
}
