package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat metrics for message lifecycle, bookkeeping and realtime delivery
var (
	ChatMessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Total number of send attempts by outcome",
	}, []string{"status"}) // "persisted", "rejected", "error"

	ChatMessageRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_rejected_total",
		Help: "Total number of messages rejected before persistence",
	}, []string{"reason"}) // "validation", "forbidden", "not_found"

	ChatSideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_side_effect_failures_total",
		Help: "Total number of best-effort follow-up failures after a message was persisted",
	}, []string{"kind"}) // "conversation_update", "realtime", "event", "mark_read"

	ChatRealtimePublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_realtime_publish_total",
		Help: "Total number of realtime events published to Redis",
	}, []string{"type", "status"})

	ChatRealtimeSubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_realtime_subscriptions_active",
		Help: "Current number of active realtime subscriptions",
	})

	ChatRealtimeDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_realtime_decode_errors_total",
		Help: "Total number of realtime payloads that could not be decoded",
	})

	ChatConversationOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_conversation_opened_total",
		Help: "Total number of get-or-create calls by outcome",
	}, []string{"outcome"}) // "created", "reused"

	ChatParticipantCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_participant_cache_total",
		Help: "Participant view cache lookups by result",
	}, []string{"result"}) // "hit", "miss", "error"

	ChatWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_websocket_connections",
		Help: "Current number of active WebSocket connections",
	})

	ChatWebSocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_messages_total",
		Help: "Total number of WebSocket frames",
	}, []string{"direction"}) // "in", "out"

	ChatClientMessageDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_message_dropped_total",
		Help: "Total number of events dropped for slow WebSocket clients",
	}, []string{"reason"})
)
