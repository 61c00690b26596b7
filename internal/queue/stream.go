package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type AlertKind string

const (
	AlertLoggingFailure    AlertKind = "logging_failure"
	AlertDeductionAnomaly  AlertKind = "deduction_anomaly"
	AlertPersistenceOutage AlertKind = "persistence_failure"
)

// Alert is an operator notification about a request that completed with
// an accounting or logging problem.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
}

// AlertStream carries operator alerts over a Redis stream consumed by one
// group. Each delivery attempt is its own stream entry.
type AlertStream struct {
	redis    *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

type Message struct {
	ID    string
	Alert Alert
}

func NewAlertStream(rdb *redis.Client, stream, group, consumer string, block time.Duration) *AlertStream {
	return &AlertStream{
		redis:    rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
	}
}

// EnsureGroup creates the consumer group, starting from new alerts only.
func (q *AlertStream) EnsureGroup(ctx context.Context) error {
	if q == nil {
		return fmt.Errorf("alert stream is nil")
	}
	err := q.redis.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create stream group: %w", err)
	}
	return nil
}

// Publish appends an alert, assigning an id and timestamp when missing.
// Retries republish the same id with Attempts incremented.
func (q *AlertStream) Publish(ctx context.Context, a Alert) (string, error) {
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}

	id, err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish alert: %w", err)
	}
	return id, nil
}

// Read returns up to count undelivered alerts for this consumer, blocking
// for the configured duration. Entries without a decodable payload are
// skipped and stay pending.
func (q *AlertStream) Read(ctx context.Context, count int64) ([]Message, error) {
	res, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    q.block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	out := make([]Message, 0)
	for _, s := range res {
		for _, m := range s.Messages {
			raw, ok := m.Values["payload"]
			if !ok {
				continue
			}

			var b []byte
			switch v := raw.(type) {
			case string:
				b = []byte(v)
			case []byte:
				b = v
			default:
				continue
			}

			var a Alert
			if err := json.Unmarshal(b, &a); err != nil {
				continue
			}
			out = append(out, Message{ID: m.ID, Alert: a})
		}
	}
	return out, nil
}

// Ack settles an alert entry and deletes it, so a retried alert never
// coexists with its earlier attempt.
func (q *AlertStream) Ack(ctx context.Context, messageID string) error {
	if err := q.redis.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.redis.XDel(ctx, q.stream, messageID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *AlertStream) Consumer() string {
	return q.consumer
}
