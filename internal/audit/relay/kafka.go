package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"securevault/internal/audit"
)

// KafkaProducer publishes audit payloads to per-category topics
// (<prefix>.compliance, <prefix>.security, <prefix>.operations), keyed by
// entry ID so replays stay idempotent for consumers.
type KafkaProducer struct {
	client      *kgo.Client
	topicPrefix string
}

// NewKafkaProducer connects to the brokers and ensures the category topics
// exist.
func NewKafkaProducer(ctx context.Context, brokers []string, topicPrefix string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &KafkaProducer{client: client, topicPrefix: topicPrefix}
	if err := p.ensureTopics(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func (p *KafkaProducer) ensureTopics(ctx context.Context) error {
	adm := kadm.NewClient(p.client)
	topics := []string{
		p.topic(audit.CategoryCompliance),
		p.topic(audit.CategorySecurity),
		p.topic(audit.CategoryOperations),
	}
	resps, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

func (p *KafkaProducer) Publish(ctx context.Context, category audit.Category, key string, payload []byte) error {
	record := &kgo.Record{
		Topic: p.topic(category),
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}

func (p *KafkaProducer) topic(category audit.Category) string {
	return p.topicPrefix + "." + string(category)
}
