package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/logging"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes trade events to a Kafka topic, keyed by user ID so that
// one user's events stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewPublisher creates a Publisher for the given brokers and topic
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *zap.Logger) *Publisher {
	return &Publisher{writer: w, logger: logging.OrNop(logger)}
}

// Publish encodes and writes a single event
func (p *Publisher) Publish(ctx context.Context, event domain.TradeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("type", string(event.Type)),
		zap.String("order_id", event.OrderID.String()),
	)
	return nil
}

// Close flushes pending messages and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// LogPublisher is the EventPublisher used when no brokers are configured.
// It writes each event to the log.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logging.OrNop(logger)}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.TradeEvent) error {
	p.logger.Info("trade event",
		zap.String("type", string(event.Type)),
		zap.String("order_id", event.OrderID.String()),
		zap.String("user_id", event.UserID.String()),
		zap.String("symbol", event.Symbol),
		zap.String("side", string(event.Side)),
		zap.String("quantity", event.Quantity.String()),
		zap.String("price", event.Price.String()),
		zap.String("reason", event.Reason),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
