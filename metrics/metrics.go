// Prometheus instrumentation for the motion subsystem. All collector
// types are nil-safe so instrumented code never has to guard call sites.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Planner counts path-search outcomes and cache effectiveness.
type Planner struct {
	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter
	strategies *prometheus.CounterVec
	notFound   prometheus.Counter
}

// NewPlanner registers planner collectors on reg.
func NewPlanner(reg prometheus.Registerer) *Planner {
	f := promauto.With(reg)
	return &Planner{
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "daq_planner_cache_hits_total",
			Help: "Path cache hits that survived re-validation.",
		}),
		cacheMiss: f.NewCounter(prometheus.CounterOpts{
			Name: "daq_planner_cache_misses_total",
			Help: "Path searches that could not be served from cache.",
		}),
		strategies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daq_planner_strategy_success_total",
			Help: "Successful path searches by strategy.",
		}, []string{"strategy"}),
		notFound: f.NewCounter(prometheus.CounterOpts{
			Name: "daq_planner_path_not_found_total",
			Help: "Path searches that exhausted every strategy.",
		}),
	}
}

func (p *Planner) CacheHit() {
	if p != nil {
		p.cacheHits.Inc()
	}
}

func (p *Planner) CacheMiss() {
	if p != nil {
		p.cacheMiss.Inc()
	}
}

func (p *Planner) StrategySuccess(name string) {
	if p != nil {
		p.strategies.WithLabelValues(name).Inc()
	}
}

func (p *Planner) PathNotFound() {
	if p != nil {
		p.notFound.Inc()
	}
}

// Motion counts move outcomes and durations.
type Motion struct {
	moves     prometheus.Counter
	skips     *prometheus.CounterVec
	axisFault *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMotion registers motion collectors on reg.
func NewMotion(reg prometheus.Registerer) *Motion {
	f := promauto.With(reg)
	return &Motion{
		moves: f.NewCounter(prometheus.CounterOpts{
			Name: "daq_motion_moves_total",
			Help: "Completed probe moves.",
		}),
		skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daq_motion_skips_total",
			Help: "Skipped probe moves by reason.",
		}, []string{"reason"}),
		axisFault: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daq_motion_axis_faults_total",
			Help: "Axis faults observed during synchronized segments.",
		}, []string{"axis"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "daq_motion_move_duration_seconds",
			Help:    "Wall time of completed probe moves.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (m *Motion) MoveCompleted(d time.Duration) {
	if m != nil {
		m.moves.Inc()
		m.duration.Observe(d.Seconds())
	}
}

func (m *Motion) MoveSkipped(reason string) {
	if m != nil {
		m.skips.WithLabelValues(reason).Inc()
	}
}

func (m *Motion) AxisFault(axis string) {
	if m != nil {
		m.axisFault.WithLabelValues(axis).Inc()
	}
}
