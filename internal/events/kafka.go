// Package events forwards committed audit entries to Kafka so downstream
// consumers can follow scenario changes without polling the change log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/metrics"
)

// DefaultTopic receives audit entries when no topic is configured.
const DefaultTopic = "ptc.audit"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes audit entries to a Kafka topic, one message per entry,
// keyed by user and entity so one entity's history stays on one partition.
type Publisher struct {
	w       messageWriter
	metrics *metrics.Metrics
	// async writers report delivery through their completion callback.
	async bool
}

// NewPublisher creates a publisher for the given brokers and topic. Writes
// are queued and delivered in the background; delivery results land in
// the metrics and the log.
func NewPublisher(brokers []string, topic string, m *metrics.Metrics) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
			Completion:   completion(m),
		},
		metrics: m,
		async:   true,
	}
}

func completion(m *metrics.Metrics) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		m.Published(len(msgs), err)
		if err != nil {
			slog.Warn("delivering audit events", "count", len(msgs), "error", err)
		}
	}
}

// Publish implements audit.Publisher.
func (p *Publisher) Publish(ctx context.Context, changes []audit.Change) error {
	if len(changes) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(changes))
	for _, c := range changes {
		value, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding change %s: %w", c.ChangeID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(c.UserID + "/" + c.EntityType + "/" + c.EntityID),
			Value: value,
			Time:  c.Timestamp,
			Headers: []kafka.Header{
				{Key: "change_id", Value: []byte(c.ChangeID)},
				{Key: "field", Value: []byte(c.Field)},
			},
		})
	}

	err := p.w.WriteMessages(ctx, msgs...)
	if !p.async || err != nil {
		p.metrics.Published(len(msgs), err)
	}
	if err != nil {
		return fmt.Errorf("writing %d audit events: %w", len(msgs), err)
	}
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.w.Close()
}
