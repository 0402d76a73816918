package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Counter and latency names emitted by the relayer.
const (
	MessagesReceived  = "messages_received"
	MessagesDropped   = "messages_dropped"
	MessagesHandled   = "messages_handled"
	PollFailures      = "poll_failures"
	FeeBroadcasts     = "fee_broadcasts"
	FeeBroadcastFails = "fee_broadcast_failures"
	TransactOutcome   = "transact"
	PipelineLatency   = "pipeline"
)
