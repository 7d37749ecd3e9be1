// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	ReasonQueueFull     = "queue_full"
	ReasonParseError    = "parse_error"
	ReasonUnwatched     = "unwatched"
	ReasonSinkQueueFull = "sink_queue_full"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drone_relay_messages_received_total",
			Help: "Messages delivered by the broker, by topic",
		},
		[]string{"topic"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drone_relay_messages_dropped_total",
			Help: "Messages dropped before reaching the history, by reason",
		},
		[]string{"reason"},
	)

	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drone_relay_history_records",
			Help: "Records currently held in the history",
		},
	)

	RecordsLostToClear = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drone_relay_records_lost_to_clear_total",
			Help: "Records discarded by a clear while another request window was open",
		},
	)

	CommandsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drone_relay_commands_published_total",
			Help: "Commands published to devices, by kind",
		},
		[]string{"kind"},
	)

	CommandCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drone_relay_command_completions_total",
			Help: "Resolved pending commands, by kind and outcome (ack or elapsed)",
		},
		[]string{"kind", "outcome"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drone_relay_sink_errors_total",
			Help: "Record sink failures, by sink",
		},
		[]string{"sink"},
	)
)
