package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PS360 poller metrics
var (
	// PS360PollCycles counts completed poll cycles by outcome
	PS360PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps360_poll_cycles_total",
			Help: "Completed PS360 poll cycles by status",
		},
		[]string{"status"},
	)

	// PS360OrdersSeen counts updated orders returned by BrowseOrders
	PS360OrdersSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ps360_orders_seen_total",
			Help: "Updated orders returned by BrowseOrders",
		},
	)

	// PS360ReportEvents counts tracked report events by type
	PS360ReportEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps360_report_events_total",
			Help: "Tracked PS360 report events by type",
		},
		[]string{"type"},
	)

	// PS360Sessions counts RAS session sign-ins by outcome
	PS360Sessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps360_sessions_total",
			Help: "PS360 RAS session sign-ins by status",
		},
		[]string{"status"},
	)

	// SOAPRequestDuration tracks RAS SOAP round-trip latency per operation
	SOAPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ps360_soap_request_duration_seconds",
			Help:    "PS360 SOAP request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// SOAPRequestsTotal counts RAS SOAP requests per operation and status
	SOAPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps360_soap_requests_total",
			Help: "PS360 SOAP requests by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// XMPP presence metrics
var (
	// XMPPReconnects counts connection attempts to the PACS chat server
	XMPPReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xmpp_reconnects_total",
			Help: "XMPP connection attempts",
		},
	)

	// XMPPStanzas counts received stanzas by kind
	XMPPStanzas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmpp_stanzas_received_total",
			Help: "Received XMPP stanzas by kind",
		},
		[]string{"kind"},
	)

	// PresenceUpdates counts presence changes written to Postgres
	PresenceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_updates_total",
			Help: "PACS presence changes written to the database",
		},
		[]string{"presence"},
	)

	// BotReplies counts echobot replies by command and outcome
	BotReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_replies_total",
			Help: "Echobot replies by command and outcome",
		},
		[]string{"command", "outcome"},
	)
)

// Shared infrastructure metrics
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// WebSocketClients tracks currently connected presence-feed clients
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients_current",
			Help: "Currently connected presence feed clients",
		},
	)

	// WebSocketSlowClientsEvicted counts clients dropped for full buffers
	WebSocketSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_clients_evicted_total",
			Help: "Presence feed clients evicted due to full send buffer",
		},
	)

	// DBWriteErrors counts failed writes to the users table by operation
	DBWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_write_errors_total",
			Help: "Failed users table writes by operation",
		},
		[]string{"operation"},
	)

	// LeaderState reports whether this instance holds the poller lease
	LeaderState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_leader",
			Help: "1 when this instance holds the PS360 poller lease",
		},
	)
)
