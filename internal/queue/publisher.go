package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Publisher emits analysis results on the response exchange. Safe for
// concurrent use; a single AMQP channel is guarded by a mutex.
type Publisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// NewPublisher connects to RabbitMQ and declares the response exchange.
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ResponseExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare response exchange: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, logger: logger}, nil
}

// PublishResult sends a terminal analysis result. Messages are persistent
// and carry the correlation id so the consumer on the other side can match
// responses to requests.
func (p *Publisher) PublishResult(ctx context.Context, result models.AnalysisResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, ResponseExchange, ResponseRoutingKey, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: result.CorrelationID,
			Headers: amqp.Table{
				"request_id": result.RequestID,
				"status":     result.Status,
			},
			Body: body,
		})
	if err != nil {
		return fmt.Errorf("publish result: %w", err)
	}

	p.logger.Info("published analysis result",
		"analysis_id", result.AnalysisID,
		"correlation_id", result.CorrelationID,
		"status", result.Status)
	return nil
}

// PublishFailure sends a FAILED response for a request that never reached
// the pipeline, e.g. an undecodable message body.
func (p *Publisher) PublishFailure(ctx context.Context, requestID, correlationID, message string) error {
	return p.PublishResult(ctx, models.AnalysisResult{
		RequestID:     requestID,
		CorrelationID: correlationID,
		Status:        models.AnalysisStatusFailed,
		Message:       message,
		Gaps:          []models.Gap{},
	})
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
