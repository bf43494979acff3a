// Package promcollector exports flatfilter engine metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, err := promcollector.New(reg)
//	if err != nil {
//	    return err
//	}
//	eng, err := flatfilter.Open(ctx, store, flatfilter.WithMetricsCollector(mc))
//	http.Handle("/metrics", promcollector.Handler(reg))
package promcollector

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/flatfilter"
)

var _ flatfilter.MetricsCollector = (*Collector)(nil)

// Options configures a Collector.
type Options struct {
	// Namespace prefixes every metric name. Default: "flatfilter".
	Namespace string
	// ConstLabels are attached to every metric, e.g. the list name.
	ConstLabels prometheus.Labels
	// LoadBuckets are the histogram buckets of load durations in seconds.
	LoadBuckets []float64
}

// Collector implements flatfilter.MetricsCollector with Prometheus metrics.
type Collector struct {
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	loadBytes    prometheus.Counter
	swaps        prometheus.Counter
	generation   prometheus.Gauge
	filters      prometheus.Gauge
	rejects      *prometheus.CounterVec
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, optFns ...func(o *Options)) (*Collector, error) {
	opts := Options{
		Namespace:   "flatfilter",
		LoadBuckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Collector{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "loads_total",
			Help:        "Load attempts by result.",
			ConstLabels: opts.ConstLabels,
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "load_duration_seconds",
			Help:        "Time from opening a blob to a verified generation.",
			ConstLabels: opts.ConstLabels,
			Buckets:     opts.LoadBuckets,
		}),
		loadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "load_bytes_total",
			Help:        "Stored bytes read by loads.",
			ConstLabels: opts.ConstLabels,
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "swaps_total",
			Help:        "Generations installed.",
			ConstLabels: opts.ConstLabels,
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "generation",
			Help:        "Generation being served.",
			ConstLabels: opts.ConstLabels,
		}),
		filters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "filters",
			Help:        "Network filters in the generation being served.",
			ConstLabels: opts.ConstLabels,
		}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rejects_total",
			Help:        "Loads refused, by stage.",
			ConstLabels: opts.ConstLabels,
		}, []string{"stage"}),
	}

	for _, m := range []prometheus.Collector{c.loads, c.loadDuration, c.loadBytes, c.swaps, c.generation, c.filters, c.rejects} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordLoad implements flatfilter.MetricsCollector.
func (c *Collector) RecordLoad(bytes int64, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.loads.WithLabelValues(result).Inc()
	c.loadDuration.Observe(duration.Seconds())
	if bytes > 0 {
		c.loadBytes.Add(float64(bytes))
	}
}

// RecordSwap implements flatfilter.MetricsCollector.
func (c *Collector) RecordSwap(generation uint64, numFilters int) {
	c.swaps.Inc()
	c.generation.Set(float64(generation))
	c.filters.Set(float64(numFilters))
}

// RecordReject implements flatfilter.MetricsCollector.
func (c *Collector) RecordReject(stage string) {
	c.rejects.WithLabelValues(stage).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
