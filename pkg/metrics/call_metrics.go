package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call session and signaling metrics
var (
	CallsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_initiated_total",
		Help: "Total number of calls admitted by the session manager",
	}, []string{"call_type"})

	CallsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_completed_total",
		Help: "Total number of calls that reached a terminal status",
	}, []string{"call_type", "status", "end_reason"})

	CallsAdmissionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_admission_rejected_total",
		Help: "Total number of call initiations rejected before a record was created",
	}, []string{"reason"}) // "access_denied", "unavailable", "invalid"

	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calls_active",
		Help: "Number of calls currently in a non-terminal status",
	})

	CallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Duration of answered calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"call_type"})

	SignalingMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_messages_total",
		Help: "Total number of signaling messages processed",
	}, []string{"kind", "direction"}) // direction: "in", "out"

	SignalingRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_rejected_total",
		Help: "Total number of signaling messages rejected by relay authorization",
	}, []string{"kind"})

	SignalingDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_dropped_total",
		Help: "Total number of best-effort signaling messages dropped silently",
	}, []string{"kind", "reason"}) // reason: "offline", "unauthorized", "backpressure"

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_websocket_connections",
		Help: "Number of live signaling WebSocket connections",
	})

	WebSocketConnectionUnauthorizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_websocket_connection_unauthorized_total",
		Help: "Total number of rejected WebSocket connections",
	})

	PresenceOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "Number of users currently marked online",
	})

	PresenceSweepEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_sweep_evictions_total",
		Help: "Total number of orphaned presence entries force-marked offline by the sweep",
	})
)
