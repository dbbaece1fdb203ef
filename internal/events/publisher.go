// Package events publishes processed-call events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"call-sheets-webhook/internal/models"
	"call-sheets-webhook/internal/observability/metrics"
)

// Event types carried in the eventType header and payload.
const (
	EventTypeRecorded = "call.transcript.recorded"
	EventTypeDropped  = "call.transcript.dropped"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes processed-call events to separate Kafka topics for
// written and dropped deliveries.
type Publisher struct {
	writerRecorded messageWriter
	writerDropped  messageWriter
	principal      string
	topicRecorded  string
	topicDropped   string
	enabled        bool
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicRecorded string
	TopicDropped  string
	Principal     string
	Enabled       bool
}

// New creates a publisher. Without brokers, or when disabled, it only logs.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicRecorded: cfg.TopicRecorded,
			topicDropped:  cfg.TopicDropped,
			enabled:       false,
			metrics:       m,
		}
	}

	// Longer dial timeout for DNS resolution inside clusters
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRecorded", cfg.TopicRecorded).
		Str("topicDropped", cfg.TopicDropped).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerRecorded: newWriter(cfg.TopicRecorded),
		writerDropped:  newWriter(cfg.TopicDropped),
		principal:      cfg.Principal,
		topicRecorded:  cfg.TopicRecorded,
		topicDropped:   cfg.TopicDropped,
		enabled:        true,
		metrics:        m,
	}
}

// PublishRecorded publishes an event for a delivery that produced a row.
func (p *Publisher) PublishRecorded(ctx context.Context, ev models.CallProcessed) error {
	ev.EventType = EventTypeRecorded
	return p.publish(ctx, p.writerRecorded, p.topicRecorded, "recorded", ev)
}

// PublishDropped publishes an event for a delivery that did not produce a row.
func (p *Publisher) PublishDropped(ctx context.Context, ev models.CallProcessed) error {
	ev.EventType = EventTypeDropped
	return p.publish(ctx, p.writerDropped, p.topicDropped, "dropped", ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType string, ev models.CallProcessed) error {
	start := time.Now()

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = start.UnixMilli()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	key := ev.ConversationID
	if key == "" {
		key = ev.EventID
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.EventType)},
			{Key: "eventId", Value: []byte(ev.EventID)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerRecorded != nil {
		if e := p.writerRecorded.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing recorded writer")
			err = e
		}
	}
	if p.writerDropped != nil {
		if e := p.writerDropped.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing dropped writer")
			err = e
		}
	}
	return err
}
