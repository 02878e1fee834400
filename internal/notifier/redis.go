package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	platformredis "matrixpay/internal/platform/redis"
)

// LiveChannel is the pub/sub channel live-UI subscribers listen on. Fan-out
// is best-effort; subscribers reconcile by re-querying on reconnect.
const LiveChannel = "matrixpay.live"

// RedisSink pushes every event onto the live channel so connected UIs can
// refresh without polling.
type RedisSink struct {
	client *platformredis.Client
}

// NewRedisSink returns nil when Redis is not configured.
func NewRedisSink(client *platformredis.Client) *RedisSink {
	if client == nil {
		return nil
	}
	return &RedisSink{client: client}
}

func (s *RedisSink) Deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, LiveChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish live event: %w", err)
	}
	return nil
}
