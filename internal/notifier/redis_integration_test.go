//go:build integration

package notifier_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"matrixpay/internal/notifier"
	"matrixpay/internal/platform/config"
	platformredis "matrixpay/internal/platform/redis"
	id "matrixpay/pkg/domain"
	"matrixpay/pkg/testutil/containers"
)

type RedisSinkSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	client *platformredis.Client
}

func TestRedisSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSinkSuite))
}

func (s *RedisSinkSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())

	client, err := platformredis.New(config.RedisConfig{URL: s.redis.Addr})
	s.Require().NoError(err)
	s.Require().NotNil(client)
	s.client = client
}

func (s *RedisSinkSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *RedisSinkSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisSinkSuite) TestDeliverPublishesToLiveChannel() {
	ctx := context.Background()

	sub := s.redis.Client.Subscribe(ctx, notifier.LiveChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	s.Require().NoError(err, "subscription confirmation")

	sink := notifier.NewRedisSink(s.client)
	s.Require().NotNil(sink)

	memberID := id.NewMemberID()
	s.Require().NoError(sink.Deliver(ctx, notifier.Event{
		Type:     notifier.EventCommissionCredited,
		At:       time.Now().UTC(),
		MemberID: memberID,
		Stage:    2,
		Amount:   2_000_00,
	}))

	select {
	case msg := <-sub.Channel():
		var got notifier.Event
		s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &got))
		s.Equal(notifier.EventCommissionCredited, got.Type)
		s.Equal(memberID, got.MemberID)
		s.Equal(int64(2_000_00), got.Amount)
	case <-time.After(10 * time.Second):
		s.FailNow("no live event received")
	}
}

// TestNotifierFanOut runs the whole pipeline: publish through the buffered
// inbox, drain via Run, observe the event on the live channel.
func (s *RedisSinkSuite) TestNotifierFanOut() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := s.redis.Client.Subscribe(ctx, notifier.LiveChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := notifier.New(logger, 16, notifier.NewRedisSink(s.client))
	go func() { _ = events.Run(ctx) }()

	memberID := id.NewMemberID()
	events.StageCompleted(ctx, memberID, 4)

	select {
	case msg := <-sub.Channel():
		var got notifier.Event
		s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &got))
		s.Equal(notifier.EventStageCompleted, got.Type)
		s.Equal(memberID, got.MemberID)
		s.Equal(4, got.Stage)
	case <-time.After(10 * time.Second):
		s.FailNow("no live event received")
	}
}
