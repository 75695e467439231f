package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Handler receives decoded analysis requests from the queue. A non-nil
// error rejects the delivery without requeueing.
type Handler func(ctx context.Context, req models.AnalysisRequest) error

// Consumer reads analysis requests from the request queue and hands them to
// the configured Handler. Lost connections are re-established with
// exponential backoff until the context is cancelled.
type Consumer struct {
	url      string
	prefetch int
	handler  Handler
	failures *Publisher
	logger   *slog.Logger
}

// NewConsumer builds a consumer. failures may be nil; undecodable messages
// are then dropped after logging instead of answered with a FAILED response.
func NewConsumer(url string, prefetch int, handler Handler, failures *Publisher, logger *slog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		url:      url,
		prefetch: prefetch,
		handler:  handler,
		failures: failures,
		logger:   logger,
	}
}

// Start consumes until ctx is cancelled. It blocks; run it on its own
// goroutine. Only a cancelled context returns; broker failures are retried
// forever.
func (c *Consumer) Start(ctx context.Context) error {
	delay := reconnectBaseDelay
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("queue consumer disconnected, reconnecting",
			"error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// consumeOnce holds one connection for its lifetime: declare topology,
// then drain deliveries until the channel dies or ctx is cancelled.
func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	if err := ch.ExchangeDeclare(RequestExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare request exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(RequestQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare request queue: %w", err)
	}
	if err := ch.QueueBind(RequestQueue, RequestRoutingKey, RequestExchange, false, nil); err != nil {
		return fmt.Errorf("bind request queue: %w", err)
	}

	deliveries, err := ch.Consume(RequestQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	c.logger.Info("queue consumer listening",
		"queue", RequestQueue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery decodes and dispatches one message. Decode failures are
// acked (redelivery cannot fix them) and answered with a FAILED response;
// handler failures reject without requeue.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var req models.AnalysisRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		c.logger.Error("undecodable analysis request", "error", err)
		if c.failures != nil {
			requestID, correlationID := partialIdentity(d.Body)
			if pubErr := c.failures.PublishFailure(ctx, requestID, correlationID,
				"Failed to process request: invalid JSON"); pubErr != nil {
				c.logger.Error("failed to publish error response", "error", pubErr)
			}
		}
		if err := d.Ack(false); err != nil {
			c.logger.Error("ack failed", "error", err)
		}
		return
	}

	c.logger.Info("analysis request received",
		"paper_id", req.PaperID,
		"correlation_id", req.CorrelationID)

	if err := c.handler(ctx, req); err != nil {
		c.logger.Error("analysis request rejected",
			"error", err, "correlation_id", req.CorrelationID)
		if c.failures != nil {
			if pubErr := c.failures.PublishFailure(ctx, req.RequestID, req.CorrelationID,
				fmt.Sprintf("Failed to start analysis: %v", err)); pubErr != nil {
				c.logger.Error("failed to publish error response", "error", pubErr)
			}
		}
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("nack failed", "error", nackErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", "error", err)
	}
}

// partialIdentity pulls whatever identifiers survive from a malformed body
// so the error response can still be correlated.
func partialIdentity(body []byte) (requestID, correlationID string) {
	var partial struct {
		RequestID     string `json:"request_id"`
		CorrelationID string `json:"correlation_id"`
	}
	_ = json.Unmarshal(body, &partial)
	requestID = partial.RequestID
	correlationID = partial.CorrelationID
	if requestID == "" {
		requestID = "unknown"
	}
	if correlationID == "" {
		correlationID = "unknown"
	}
	return requestID, correlationID
}
