package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TradeGate.
type Metrics struct {
	// --- Event channel ---
	EventsEnqueued     *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	EventsApplied      *prometheus.CounterVec
	EventDuration      *prometheus.HistogramVec
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- Session ---
	ConnectionState   prometheus.Gauge
	HandshakeDuration prometheus.Histogram
	ReconnectAttempts prometheus.Counter
	Disconnects       *prometheus.CounterVec
	LoginFailures     prometheus.Counter

	// --- Request correlation ---
	PendingRequests prometheus.Gauge
	RequestTimeouts *prometheus.CounterVec
	StaleResponses  prometheus.Counter

	// --- Orders ---
	OrdersSubmitted  *prometheus.CounterVec
	OrdersRejected   *prometheus.CounterVec
	OrdersTerminal   *prometheus.CounterVec
	OrdersActive     prometheus.Gauge
	CancelsRequested prometheus.Counter
	TradesRecorded   *prometheus.CounterVec
	TurnoverTotal    *prometheus.CounterVec

	// --- Market data ---
	TicksReceived      *prometheus.CounterVec
	TicksFiltered      *prometheus.CounterVec
	TicksEmitted       *prometheus.CounterVec
	SubscriptionsWant  prometheus.Gauge
	SubscriptionsAcked prometheus.Gauge

	// --- Queries ---
	QueryRequests  *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	QueryThrottled prometheus.Counter

	// --- Publisher ---
	PublishDrops  prometheus.Counter
	PublishErrors prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	handshakeBuckets := []float64{
		0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	}

	return &Metrics{
		EventsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_events_enqueued_total",
			Help: "Events accepted onto the event channel",
		}, []string{"event_type"}),

		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_events_dropped_total",
			Help: "Events dropped because the channel was full",
		}, []string{"event_type"}),

		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_events_applied_total",
			Help: "Events consumed and applied by the engine",
		}, []string{"event_type"}),

		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradegate_event_apply_duration_seconds",
			Help:    "Time to apply a single event",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradegate_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradegate_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradegate_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradegate_connection_state",
			Help: "Current session state as an ordinal",
		}),

		HandshakeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradegate_handshake_duration_seconds",
			Help:    "Connect to Ready duration",
			Buckets: handshakeBuckets,
		}),

		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_reconnect_attempts_total",
			Help: "Reconnection attempts started",
		}),

		Disconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_disconnects_total",
			Help: "Front disconnections by gateway reason code",
		}, []string{"reason"}),

		LoginFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_login_failures_total",
			Help: "Failed authenticate/login/settlement steps",
		}),

		PendingRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradegate_pending_requests",
			Help: "In-flight correlated requests",
		}),

		RequestTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_request_timeouts_total",
			Help: "Requests swept after exceeding their deadline",
		}, []string{"kind"}),

		StaleResponses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_stale_responses_total",
			Help: "Responses for requests no longer pending",
		}),

		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_orders_submitted_total",
			Help: "Orders accepted for submission",
		}, []string{"instrument"}),

		OrdersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_orders_rejected_total",
			Help: "Orders rejected before or after submission",
		}, []string{"instrument", "reason"}),

		OrdersTerminal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_orders_terminal_total",
			Help: "Orders reaching a terminal status",
		}, []string{"instrument", "status"}),

		OrdersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradegate_orders_active",
			Help: "Orders currently in a non-terminal status",
		}),

		CancelsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_cancels_requested_total",
			Help: "Cancel requests sent to the gateway",
		}),

		TradesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_trades_recorded_total",
			Help: "Trade fills recorded",
		}, []string{"instrument"}),

		TurnoverTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_turnover_total",
			Help: "Cumulative traded turnover (price * volume)",
		}, []string{"instrument"}),

		TicksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_ticks_received_total",
			Help: "Ticks received from the market front",
		}, []string{"instrument"}),

		TicksFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_ticks_filtered_total",
			Help: "Ticks suppressed by a filter",
		}, []string{"instrument", "filter"}),

		TicksEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_ticks_emitted_total",
			Help: "Ticks delivered to consumers",
		}, []string{"instrument"}),

		SubscriptionsWant: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradegate_subscriptions_desired",
			Help: "Instruments the session wants subscribed",
		}),

		SubscriptionsAcked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradegate_subscriptions_confirmed",
			Help: "Instruments the gateway has acknowledged",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_query_requests_total",
			Help: "Query requests by kind and status",
		}, []string{"kind", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradegate_query_duration_seconds",
			Help:    "Round-trip query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"kind"}),

		QueryThrottled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_query_throttled_total",
			Help: "Queries delayed by the rate limiter",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_publish_errors_total",
			Help: "NATS publish failures",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
