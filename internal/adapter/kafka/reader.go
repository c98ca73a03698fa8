package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// EventReader consumes trade events, used by operator tooling
type EventReader struct {
	reader *kafka.Reader
}

// NewEventReader creates a reader. An empty groupID reads the topic from the
// latest offset without committing.
func NewEventReader(brokers []string, topic, groupID string) *EventReader {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6,
		MaxWait:  500 * time.Millisecond,
	}
	if groupID == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	return &EventReader{reader: kafka.NewReader(cfg)}
}

// Next blocks until the next event arrives or ctx ends
func (r *EventReader) Next(ctx context.Context) (domain.TradeEvent, error) {
	var event domain.TradeEvent

	m, err := r.reader.ReadMessage(ctx)
	if err != nil {
		return event, err
	}
	if err := decodeEvent(m, &event); err != nil {
		return event, err
	}
	return event, nil
}

// Close closes the underlying reader
func (r *EventReader) Close() error {
	return r.reader.Close()
}

func decodeEvent(m kafka.Message, event *domain.TradeEvent) error {
	if err := json.Unmarshal(m.Value, event); err != nil {
		return fmt.Errorf("bad event at offset %d: %w", m.Offset, err)
	}
	return nil
}
