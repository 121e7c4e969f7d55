package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ticket_chat"

var (
	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Currently connected realtime clients.",
	})
	HubRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "rooms",
		Help:      "Ticket rooms with at least one member.",
	})
	HubEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "events_total",
		Help:      "Inbound realtime events by name.",
	}, []string{"event"})
	HubErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "errors_total",
		Help:      "Error events sent back to clients by code.",
	}, []string{"code"})
	HubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "slow_consumers_dropped_total",
		Help:      "Connections closed because their send buffer was full.",
	})
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tickets",
		Name:      "messages_appended_total",
		Help:      "Messages durably appended, by content kind.",
	}, []string{"kind"})
	TicketOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tickets",
		Name:      "operations_total",
		Help:      "Ticket lifecycle operations by name and outcome.",
	}, []string{"op", "outcome"})
)
