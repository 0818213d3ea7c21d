package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo is a constant 1 carrying version labels.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_build_info",
			Help: "Beacon marketplace API build information.",
		},
		[]string{"version", "commit", "store"},
	)
)

// InitBuildInfo registers beacon_build_info once and sets the current labels.
func InitBuildInfo(version, commit, store string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, store).Set(1)
}
