package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ProgressGauge publishes the visited fraction of each query phase. It
// implements output.ProgressSink.
type ProgressGauge struct {
	gauge *prometheus.GaugeVec
	phase string
	total int
}

// Progress returns a sink for one query run.
func (c *Collector) Progress() *ProgressGauge {
	return &ProgressGauge{gauge: c.queryProgress}
}

func (p *ProgressGauge) InitPhase(phase, total int) {
	p.phase = strconv.Itoa(phase)
	p.total = total
	p.gauge.WithLabelValues(p.phase).Set(0)
}

// Step clamps at 1; a phase of unknown size stays at 0.
func (p *ProgressGauge) Step(step int) {
	if p.total > 0 {
		p.gauge.WithLabelValues(p.phase).Set(min(float64(step)/float64(p.total), 1))
	}
}
