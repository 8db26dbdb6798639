package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var passDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gridrows",
	Name:      "pass_duration_seconds",
	Help:      "Duration of row model recompute passes.",
	Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
}, []string{"pass"})

// Register exports the pass timings to reg.
func Register(reg prometheus.Registerer) error {
	return reg.Register(passDuration)
}

func observe(pass string, d time.Duration) {
	passDuration.WithLabelValues(pass).Observe(d.Seconds())
}
