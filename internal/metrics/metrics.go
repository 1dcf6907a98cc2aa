// Package metrics exports demultiplexing statistics in the Prometheus
// text format, for node_exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikothomas/windchime/demux"
)

// Collectors holds the demux metrics on their own registry.
type Collectors struct {
	Registry *prometheus.Registry
	Pairs    *prometheus.CounterVec
	Samples  *prometheus.GaugeVec
}

// NewCollectors registers the demux metrics.
func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "windchime_demux_pairs_total",
			Help: "Read pairs processed by outcome.",
		}, []string{"outcome"}),
		Samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "windchime_demux_sample_pairs",
			Help: "Read pairs assigned to each sample in the last run.",
		}, []string{"sample"}),
	}
	c.Registry.MustRegister(c.Pairs, c.Samples)
	return c
}

// Observe adds the statistics of one run.
func (c *Collectors) Observe(stats *demux.RunStatistics) {
	c.Pairs.WithLabelValues(demux.Assigned.String()).Add(float64(stats.TotalAssigned()))
	c.Pairs.WithLabelValues(demux.NoMatch.String()).Add(float64(stats.NoMatch))
	c.Pairs.WithLabelValues(demux.Ambiguous.String()).Add(float64(stats.Ambiguous))
	c.Pairs.WithLabelValues(demux.TooShort.String()).Add(float64(stats.TooShort))
	c.Pairs.WithLabelValues("malformed").Add(float64(stats.Malformed))
	for i, sample := range stats.Samples {
		c.Samples.WithLabelValues(sample).Set(float64(stats.Assigned[i]))
	}
}

// WriteTextfile writes the statistics of a run to filename.
func WriteTextfile(filename string, stats *demux.RunStatistics) error {
	c := NewCollectors()
	c.Observe(stats)
	return prometheus.WriteToTextfile(filename, c.Registry)
}
