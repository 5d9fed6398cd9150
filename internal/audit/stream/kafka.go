// Package stream publishes committed audit entries to Kafka.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"docflow/internal/audit"
)

// Kafka produces one record per entry, keyed by document ID so a document's
// trail stays ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

func NewKafka(client *kgo.Client, topic string) *Kafka {
	return &Kafka{client: client, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(entry.DocumentID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "tenant_id", Value: []byte(entry.TenantID.String())},
			{Key: "outcome", Value: []byte(entry.Outcome)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}
