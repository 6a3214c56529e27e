package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/mpcsim/internal/opt"
)

// SolverCollector exports re-plan telemetry to prometheus. It satisfies
// mpc.Recorder.
type SolverCollector struct {
	solves    *prometheus.CounterVec
	fallbacks prometheus.Counter
	duration  *prometheus.HistogramVec
}

func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	c := &SolverCollector{
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpcsim_solves_total",
				Help: "Total number of horizon problems solved, by status",
			},
			[]string{"status"},
		),
		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mpcsim_fallbacks_total",
				Help: "Re-plans that applied the zero fallback input",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mpcsim_solve_duration_seconds",
				Help:    "Wall time of optimizer calls",
				Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
			},
			[]string{"status"},
		),
	}
	for _, col := range []prometheus.Collector{c.solves, c.fallbacks, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *SolverCollector) ObserveSolve(status opt.Status, elapsed time.Duration) {
	c.solves.WithLabelValues(status.String()).Inc()
	c.duration.WithLabelValues(status.String()).Observe(elapsed.Seconds())
}

func (c *SolverCollector) ObserveFallback(step int, status opt.Status) {
	c.fallbacks.Inc()
}
