package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"matrixpay/internal/platform/config"
)

// KafkaSink publishes engine events for the notification/email collaborators
// and any other downstream consumer. Events are keyed by member so per-member
// ordering survives partitioning.
type KafkaSink struct {
	client *kgo.Client
	cfg    config.KafkaConfig
}

// NewKafkaSink connects a producer. Returns nil if no brokers are configured.
func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSink{client: client, cfg: cfg}, nil
}

// EnsureTopics creates the engine's topics if they do not exist yet.
func (s *KafkaSink) EnsureTopics(ctx context.Context) error {
	adm := kadm.NewClient(s.client)
	topics := []string{s.cfg.MemberJoinedTopic, s.cfg.StageTopic, s.cfg.CommissionTopic}
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

func (s *KafkaSink) Deliver(ctx context.Context, event Event) error {
	topic := s.topicFor(event.Type)
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.MemberID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", topic, err)
	}
	return nil
}

func (s *KafkaSink) topicFor(t EventType) string {
	switch t {
	case EventStageCompleted:
		return s.cfg.StageTopic
	case EventCommissionCredited:
		return s.cfg.CommissionTopic
	default:
		// Wallet and join events stay on the internal bus (Redis) only.
		return ""
	}
}

func (s *KafkaSink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
