package events

import (
	"context"
	"fmt"
	"property-distance-service/internal/domain"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher emits every freshly computed distance record to a topic so
// downstream consumers can react without polling the store.
type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaPublisher creates an async producer; delivery failures are logged
// from the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	logger = logger.With().Str("component", "kafka_publisher").Str("topic", topic).Logger()
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				logger.Warn().Err(err).Int("messages", len(msgs)).Msg("distance record delivery failed")
			}
		},
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishDistance(ctx context.Context, rec domain.DistanceRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish distance record %d:%d: %w", rec.EntityAID, rec.EntityBID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type legPayload struct {
	DistanceMeters int  `json:"distanceMeters"`
	TimeSeconds    int  `json:"timeSeconds"`
	Estimated      bool `json:"estimated"`
}

type recordPayload struct {
	EntityAID    int64       `json:"entityAId"`
	EntityBID    int64       `json:"entityBId"`
	Walking      *legPayload `json:"walking,omitempty"`
	Driving      *legPayload `json:"driving,omitempty"`
	CalculatedAt time.Time   `json:"calculatedAt"`
}

func toLegPayload(l *domain.Leg) *legPayload {
	if l == nil {
		return nil
	}
	return &legPayload{DistanceMeters: l.DistanceMeters, TimeSeconds: l.TimeSeconds, Estimated: l.Estimated}
}

// serializeToMessage marshals a record into a Kafka message keyed by pair,
// so updates for one pair stay ordered within a partition.
func serializeToMessage(rec domain.DistanceRecord) (kafkago.Message, error) {
	data, err := json.Marshal(recordPayload{
		EntityAID:    rec.EntityAID,
		EntityBID:    rec.EntityBID,
		Walking:      toLegPayload(rec.Walking),
		Driving:      toLegPayload(rec.Driving),
		CalculatedAt: rec.CalculatedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize distance record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%d:%d", rec.EntityAID, rec.EntityBID)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "calculated_at", Value: []byte(rec.CalculatedAt.Format(time.RFC3339Nano))},
		},
	}, nil
}
