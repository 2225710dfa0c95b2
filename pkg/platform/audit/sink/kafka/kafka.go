// Package kafka sinks audit events to Kafka, one topic per event category,
// so downstream consumers (SIEM, compliance archive, ops dashboards) each
// subscribe to the retention profile they need.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	id "grantor/pkg/domain"
	audit "grantor/pkg/platform/audit"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	TopicSecurity   = "grantor.audit.security"
	TopicCompliance = "grantor.audit.compliance"
	TopicOperations = "grantor.audit.operations"
)

func topicFor(category audit.EventCategory) string {
	switch category {
	case audit.CategorySecurity:
		return TopicSecurity
	case audit.CategoryCompliance:
		return TopicCompliance
	default:
		return TopicOperations
	}
}

// Sink implements audit.Store by producing events to Kafka. Writes are
// synchronous: Append returns once the broker acknowledged the record, which
// keeps the fail-closed semantics of compliance events intact.
type Sink struct {
	client *kgo.Client
}

// New dials the brokers and ensures the audit topics exist.
func New(ctx context.Context, brokers []string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	if err := ensureTopics(ctx, client); err != nil {
		client.Close()
		return nil, err
	}
	return &Sink{client: client}, nil
}

func ensureTopics(ctx context.Context, client *kgo.Client) error {
	admin := kadm.NewClient(client)
	existing, err := admin.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	for _, topic := range []string{TopicSecurity, TopicCompliance, TopicOperations} {
		if existing.Has(topic) {
			continue
		}
		if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
			return fmt.Errorf("create kafka topic %s: %w", topic, err)
		}
	}
	return nil
}

// Append produces the event to its category topic, keyed by subject so one
// subject's trail stays ordered within a partition.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: topicFor(event.Category),
		Key:   []byte(event.SubjectID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListBySubject is not served from Kafka; trails are read by downstream
// consumers. Present to satisfy audit.Store for wiring symmetry.
func (s *Sink) ListBySubject(context.Context, id.SubjectID) ([]audit.Event, error) {
	return nil, fmt.Errorf("audit trail reads are not served from kafka")
}

// Close flushes buffered records and releases the client.
func (s *Sink) Close() {
	s.client.Close()
}
