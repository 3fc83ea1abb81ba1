// Package metrics - счётчики и датчики Prometheus демона.
// Регистрируются в глобальном реестре через promauto и отдаются мостом на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faust"

var (
	// DeviceEvents: входящие события устройства.
	// Labels: type (window, audio, screen, boot, inventory, overlay_action, ringer)
	DeviceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_events_total",
		Help:      "Device events received over the bridge",
	}, []string{"type"})

	// EventsFiltered: события, отброшенные конвейером фильтров.
	// Labels: stage (ignored, self, class, duplicate, overlay, stale, dropped)
	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_filtered_total",
		Help:      "Window events dropped by the filter pipeline",
	}, []string{"stage"})

	// Decisions: решения координатора.
	// Labels: decision (home, grace, pass, cooldown, overlay, allowed)
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Coordinator decisions by rule",
	}, []string{"decision"})

	// Overlays: исходы оверлея.
	// Labels: outcome (shown, proceed, cancel, screen_off, failed, dismissed)
	Overlays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "overlays_total",
		Help:      "Overlay lifecycle outcomes",
	}, []string{"outcome"})

	PenaltyPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "penalty_points_total",
		Help:      "Points actually debited by penalties",
	}, []string{"kind"})

	// MinedPoints: начисленные очки майнинга.
	// Labels: source (tick, catchup)
	MinedPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mined_points_total",
		Help:      "Points credited by mining",
	}, []string{"source"})

	// MiningState: 1, если майнинг разрешён.
	MiningState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mining_state",
		Help:      "1 when mining is allowed, 0 when blocked",
	})

	// OverlayState: 0 IDLE, 1 SHOWING, 2 DISMISSING.
	OverlayState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "overlay_state",
		Help:      "Overlay state machine: 0 idle, 1 showing, 2 dismissing",
	})

	// Balance: текущий баланс WP по потоку журнала.
	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "balance_points",
		Help:      "Current ledger balance in WP",
	})

	DeviceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_connected",
		Help:      "1 while a device session is attached",
	})
)

// BoolGauge переводит флаг в значение датчика.
func BoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
