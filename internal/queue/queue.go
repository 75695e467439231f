// Package queue connects the service to RabbitMQ. Analysis requests arrive
// on a durable queue bound to the main application exchange; terminal
// results go out on a separate topic exchange. The wire format is the same
// JSON the HTTP API uses.
package queue

import "time"

const (
	RequestQueue      = "gap_analysis_requests"
	RequestExchange   = "scholarai.exchange"
	RequestRoutingKey = "gap.analysis.request"

	ResponseExchange   = "gap_analysis_responses"
	ResponseRoutingKey = "gap.analysis.response"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 15 * time.Second
	publishTimeout     = 10 * time.Second
)
