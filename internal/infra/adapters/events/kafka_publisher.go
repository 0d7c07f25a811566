// File: internal/infra/adapters/events/kafka_publisher.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes entitlement events to one topic, keyed by owner id
// so a consumer sees each owner's changes in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zerolog.Logger
}

// NewSaramaProducer builds a sync producer that waits for all in-sync replicas.
func NewSaramaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers empty")
	}
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Version = sarama.V2_8_0_0
	return sarama.NewSyncProducer(cfg.Brokers, sc)
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zerolog.Logger) *KafkaPublisher {
	l := logger.With().Str("component", "KafkaPublisher").Str("topic", topic).Logger()
	return &KafkaPublisher{producer: producer, topic: topic, log: &l}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs ...adapter.EntitlementEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(evs))
	for _, ev := range evs {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.OwnerID),
			Value: sarama.ByteEncoder(b),
			Headers: []sarama.RecordHeader{
				{Key: []byte("type"), Value: []byte(ev.Type)},
			},
		})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.producer.SendMessages(msgs)
	for _, ev := range evs {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IncEventPublished(string(ev.Type), status)
	}
	if err != nil {
		p.log.Error().Err(err).Int("count", len(evs)).Msg("publish entitlement events failed")
		return fmt.Errorf("kafka send: %w", err)
	}
	p.log.Debug().Int("count", len(evs)).Msg("entitlement events published")
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }
