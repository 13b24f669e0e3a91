package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsTotal counts raised alerts by severity.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Name:      "alerts_total",
			Help:      "Total number of security alerts raised",
		},
		[]string{"severity"},
	)

	// ChecksTotal counts completed monitor passes.
	ChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Name:      "checks_total",
			Help:      "Total number of completed monitoring passes",
		},
	)

	// RotationBacklog tracks credentials currently overdue for rotation.
	RotationBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vaultguard",
			Name:      "rotation_backlog",
			Help:      "Number of credentials overdue for rotation",
		},
	)

	// PermissionFixesTotal counts permission drifts corrected in place.
	PermissionFixesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vaultguard",
			Name:      "permission_fixes_total",
			Help:      "Total number of filesystem permission drifts corrected",
		},
	)
)
