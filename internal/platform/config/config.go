package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean; every
// value has a development default so the binary runs with no environment.
type Server struct {
	Addr             string
	PostgresURL      string
	Redis            RedisConfig
	Kafka            KafkaConfig
	JWTSigningKey    string
	EventSharedToken string
	ShutdownTimeout  time.Duration
}

// RedisConfig tunes the go-redis client used for live-view fan-out.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig locates the broker set and names the topics this service owns.
type KafkaConfig struct {
	Brokers           []string
	MemberJoinedTopic string
	StageTopic        string
	CommissionTopic   string
	ConsumerGroup     string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:             envOr("MATRIXPAY_ADDR", ":8080"),
		PostgresURL:      os.Getenv("MATRIXPAY_POSTGRES_URL"),
		JWTSigningKey:    envOr("MATRIXPAY_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		EventSharedToken: envOr("MATRIXPAY_EVENT_TOKEN", "dev-event-token"),
		ShutdownTimeout:  10 * time.Second,
		Redis: RedisConfig{
			URL:          os.Getenv("MATRIXPAY_REDIS_URL"),
			PoolSize:     envInt("MATRIXPAY_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MATRIXPAY_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:           envList("MATRIXPAY_KAFKA_BROKERS"),
			MemberJoinedTopic: envOr("MATRIXPAY_TOPIC_MEMBER_JOINED", "matrixpay.member.joined"),
			StageTopic:        envOr("MATRIXPAY_TOPIC_STAGE_COMPLETED", "matrixpay.stage.completed"),
			CommissionTopic:   envOr("MATRIXPAY_TOPIC_COMMISSION_CREDITED", "matrixpay.commission.credited"),
			ConsumerGroup:     envOr("MATRIXPAY_CONSUMER_GROUP", "matrixpay-engine"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
