package render

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated while rendering. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SlotsRendered  prometheus.Counter
	SlotsSkipped   *prometheus.CounterVec
	Regions        *prometheus.CounterVec
	RegionDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	slotsRendered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionmap_slots_rendered_total",
		Help: "Chunk slots that painted at least one pixel",
	})

	slotsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_slots_skipped_total",
		Help: "Chunk slots left at background color, by reason",
	}, []string{"reason"})

	regions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_regions_total",
		Help: "Region render attempts, by outcome",
	}, []string{"status"})

	regionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "regionmap_region_render_seconds",
		Help:    "Time spent decoding and painting one region",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	if reg != nil {
		reg.MustRegister(slotsRendered, slotsSkipped, regions, regionDuration)
	}

	return &Metrics{
		SlotsRendered:  slotsRendered,
		SlotsSkipped:   slotsSkipped,
		Regions:        regions,
		RegionDuration: regionDuration,
	}
}

func (m *Metrics) slotRendered() {
	if m != nil {
		m.SlotsRendered.Inc()
	}
}

func (m *Metrics) slotSkipped(reason string) {
	if m != nil {
		m.SlotsSkipped.WithLabelValues(reason).Inc()
	}
}

// ObserveRegion records the outcome of one region render.
func (m *Metrics) ObserveRegion(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.Regions.WithLabelValues(status).Inc()
	m.RegionDuration.Observe(took.Seconds())
}
