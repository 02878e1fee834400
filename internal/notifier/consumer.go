package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"matrixpay/internal/platform/config"
)

// MemberJoinedPayload is the wire shape of the registration flow's inbound
// event. The account is already fully validated by the time it is emitted.
type MemberJoinedPayload struct {
	MemberID    string `json:"member_id,omitempty"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	SponsorCode string `json:"sponsor_code,omitempty"`
}

// Consumer feeds inbound member-joined events into the enrollment flow.
// Delivery is at-least-once; every downstream write is idempotent, so a
// redelivered event settles as a no-op.
type Consumer struct {
	client *kgo.Client
	handle func(ctx context.Context, payload MemberJoinedPayload) error
	logger *slog.Logger
}

// NewConsumer returns nil when no brokers are configured (HTTP ingestion
// still works).
func NewConsumer(cfg config.KafkaConfig, logger *slog.Logger, handle func(ctx context.Context, payload MemberJoinedPayload) error) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.MemberJoinedTopic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return &Consumer{client: client, handle: handle, logger: logger}, nil
}

// Run polls until the context is cancelled. Offsets commit only after the
// handler returns, so a crash mid-batch replays rather than skips.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return context.Canceled
				}
				c.logger.WarnContext(ctx, "kafka fetch error",
					"topic", fe.Topic,
					"error", fe.Err.Error(),
				)
			}
		}

		var failed bool
		fetches.EachRecord(func(record *kgo.Record) {
			var payload MemberJoinedPayload
			if err := json.Unmarshal(record.Value, &payload); err != nil {
				c.logger.WarnContext(ctx, "dropping malformed member-joined event",
					"error", err.Error(),
				)
				return
			}
			if err := c.handle(ctx, payload); err != nil {
				// Leave the batch uncommitted; the events replay safely.
				failed = true
				c.logger.ErrorContext(ctx, "member-joined handling failed",
					"handle", payload.Handle,
					"error", err.Error(),
				)
				return
			}
		})
		if failed {
			continue
		}

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.WarnContext(ctx, "offset commit failed", "error", err.Error())
		}
	}
}
