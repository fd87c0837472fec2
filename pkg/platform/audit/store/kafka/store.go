// Package kafka publishes audit events to a Kafka topic.
//
// The producer is synchronous: Append blocks until the broker acknowledges the
// record. Compliance events must not be lost, so delivery failures surface to
// the publisher rather than being swallowed here.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	id "carbonledger/pkg/domain"
	audit "carbonledger/pkg/platform/audit"
)

// Store implements audit.Store by producing JSON records to Kafka.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects to the given brokers and ensures the audit topic exists.
func New(ctx context.Context, brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Store{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// record is the wire representation of an audit event.
type record struct {
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	FacilityID uint64    `json:"facility_id,omitempty"`
	EventID    uint64    `json:"event_id,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(record{
		Category:   string(event.Category),
		Timestamp:  event.Timestamp,
		Actor:      event.Actor.String(),
		Action:     event.Action,
		FacilityID: uint64(event.FacilityID),
		EventID:    uint64(event.EventID),
		Amount:     event.Amount,
		Subject:    event.Subject.String(),
		RequestID:  event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	// Key by actor so per-principal ordering survives partitioning.
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Actor.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// ListByActor is not supported for the Kafka sink; consumers own the read
// side. Implemented to satisfy audit.Store for publisher wiring.
func (s *Store) ListByActor(_ context.Context, _ id.Identity) ([]audit.Event, error) {
	return nil, errors.New("kafka audit store is write-only")
}

func (s *Store) Close() {
	s.client.Close()
}
