package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"ocpihub/internal/ocpi"
)

// KafkaSink publishes domain events to a Kafka topic. It is an ordinary
// notifier subscriber: publish failures are logged and never fail the
// mutation that produced the event.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// kafkaEvent is the record value written to the topic.
type kafkaEvent struct {
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewKafkaSink connects to the brokers and ensures the topic exists.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopics(ctx, 1, 1, nil, topic); err != nil {
		// Topic may already exist; anything else surfaces on first produce.
		logger.Warn("kafka topic creation", "topic", topic, "error", err)
	}

	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

// Subscribe registers the sink on every event kind of the notifier.
func (s *KafkaSink) Subscribe(n *Notifier) {
	n.OnLocationAdded(func(ctx context.Context, l ocpi.Location) {
		s.publish(ctx, "LocationAdded", l.ID, l)
	})
	n.OnLocationChanged(func(ctx context.Context, _, updated ocpi.Location) {
		s.publish(ctx, "LocationChanged", updated.ID, updated)
	})
	n.OnLocationRemoved(func(ctx context.Context, l ocpi.Location) {
		s.publish(ctx, "LocationRemoved", l.ID, nil)
	})
	n.OnEVSEAdded(func(ctx context.Context, locationID string, e ocpi.EVSE) {
		s.publish(ctx, "EVSEAdded", locationID+"/"+e.UID, e)
	})
	n.OnEVSEChanged(func(ctx context.Context, locationID string, _, updated ocpi.EVSE) {
		s.publish(ctx, "EVSEChanged", locationID+"/"+updated.UID, updated)
	})
	n.OnEVSEStatusChanged(func(ctx context.Context, locationID string, e ocpi.EVSE, _, updated ocpi.EVSEStatus) {
		s.publish(ctx, "EVSEStatusChanged", locationID+"/"+e.UID, updated)
	})
	n.OnEVSERemoved(func(ctx context.Context, locationID string, e ocpi.EVSE) {
		s.publish(ctx, "EVSERemoved", locationID+"/"+e.UID, nil)
	})
	n.OnTariffAdded(func(ctx context.Context, t ocpi.Tariff) {
		s.publish(ctx, "TariffAdded", t.ID, t)
	})
	n.OnTariffChanged(func(ctx context.Context, _, updated ocpi.Tariff) {
		s.publish(ctx, "TariffChanged", updated.ID, updated)
	})
	n.OnTariffRemoved(func(ctx context.Context, t ocpi.Tariff) {
		s.publish(ctx, "TariffRemoved", t.ID, nil)
	})
	n.OnSessionAdded(func(ctx context.Context, sess ocpi.Session) {
		s.publish(ctx, "SessionAdded", sess.ID, sess)
	})
	n.OnSessionChanged(func(ctx context.Context, _, updated ocpi.Session) {
		s.publish(ctx, "SessionChanged", updated.ID, updated)
	})
	n.OnSessionRemoved(func(ctx context.Context, sess ocpi.Session) {
		s.publish(ctx, "SessionRemoved", sess.ID, nil)
	})
	n.OnTokenStatusAdded(func(ctx context.Context, t ocpi.TokenStatus) {
		s.publish(ctx, "TokenStatusAdded", t.Token.UID, t)
	})
	n.OnTokenStatusChanged(func(ctx context.Context, _, updated ocpi.TokenStatus) {
		s.publish(ctx, "TokenStatusChanged", updated.Token.UID, updated)
	})
	n.OnTokenStatusRemoved(func(ctx context.Context, t ocpi.TokenStatus) {
		s.publish(ctx, "TokenStatusRemoved", t.Token.UID, nil)
	})
	n.OnCDRAdded(func(ctx context.Context, c ocpi.CDR) {
		s.publish(ctx, "CDRAdded", c.ID, c)
	})
	n.OnCDRChanged(func(ctx context.Context, _, updated ocpi.CDR) {
		s.publish(ctx, "CDRChanged", updated.ID, updated)
	})
	n.OnCDRRemoved(func(ctx context.Context, c ocpi.CDR) {
		s.publish(ctx, "CDRRemoved", c.ID, nil)
	})
}

func (s *KafkaSink) publish(ctx context.Context, kind, key string, payload any) {
	value, err := json.Marshal(kafkaEvent{
		Kind:      kind,
		Key:       key,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("marshal kafka event", "kind", kind, "key", key, "error", err)
		return
	}
	rec := &kgo.Record{Topic: s.topic, Key: []byte(key), Value: value}
	s.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("produce kafka event", "kind", kind, "key", key, "error", err)
		}
	})
}

// Close flushes outstanding records and closes the client.
func (s *KafkaSink) Close(ctx context.Context) {
	if err := s.client.Flush(ctx); err != nil {
		s.logger.Warn("kafka flush", "error", err)
	}
	s.client.Close()
}
