// Package events publishes outlet snapshots to Kafka after a persisted run.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/model"
)

// EventType labels outlet messages.
const EventType = "outlet.upserted"

// Writer is the subset of *kafka.Writer used here.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka producer.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// OutletEvent is the JSON value of each message.
type OutletEvent struct {
	Type       string       `json:"type"`
	RunID      string       `json:"run_id"`
	Outlet     model.Outlet `json:"outlet"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Publisher writes one message per outlet, keyed by outlet name so every
// update for an outlet lands on the same partition.
type Publisher struct {
	writer Writer
	now    func() time.Time
}

// NewPublisher wraps an existing writer.
func NewPublisher(w Writer) *Publisher {
	return &Publisher{writer: w, now: time.Now}
}

// NewKafkaPublisher creates a Publisher backed by kafka-go.
func NewKafkaPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, eris.New("events: kafka brokers and topic are required")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 50 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}
	return NewPublisher(w), nil
}

// Publish sends outlets as one batch.
func (p *Publisher) Publish(ctx context.Context, runID string, outlets []model.Outlet) error {
	if len(outlets) == 0 {
		return nil
	}
	occurred := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(outlets))
	for _, o := range outlets {
		value, err := json.Marshal(OutletEvent{Type: EventType, RunID: runID, Outlet: o, OccurredAt: occurred})
		if err != nil {
			return eris.Wrapf(err, "events: encode %q", o.Name)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.Name),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(EventType)},
				{Key: "run_id", Value: []byte(runID)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return eris.Wrap(err, "events: write messages")
	}
	zap.L().Info("events: published outlets", zap.String("run_id", runID), zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
