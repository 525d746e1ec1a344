package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"footpredict/internal/model"
	"footpredict/internal/publish"

	"github.com/redis/go-redis/v9"
)

const (
	ConsumerGroup   = "announcers"
	ConsumerName    = "announcer-1"
	ReadBlockMillis = 5000
)

// Consumer reads predictions from the Redis stream via consumer group.
type Consumer struct {
	client *redis.Client
}

// NewConsumer returns a Redis stream consumer.
func NewConsumer(client *redis.Client) *Consumer {
	return &Consumer{client: client}
}

// EnsureGroup creates the consumer group if it does not exist (MKSTREAM so empty stream is created).
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	return c.client.XGroupCreateMkStream(ctx, publish.StreamKey, ConsumerGroup, "0").Err()
}

// ReadPredictions blocks and reads new messages for this consumer. Every message id is
// returned for acking; messages with an unreadable payload are skipped.
func (c *Consumer) ReadPredictions(ctx context.Context) ([]publish.Payload, []string, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: ConsumerName,
		Streams:  []string{publish.StreamKey, ">"},
		Count:    10,
		Block:    ReadBlockMillis * time.Millisecond,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, nil, err
	}
	if err == redis.Nil || len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil, nil
	}

	var out []publish.Payload
	var ids []string
	for _, msg := range streams[0].Messages {
		ids = append(ids, msg.ID)
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			continue
		}
		var p publish.Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, ids, nil
}

// Ack acknowledges processed message IDs.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.client.XAck(ctx, publish.StreamKey, ConsumerGroup, ids...).Err()
}

// ReadModelInfo returns the summary written by the predictor, or nil before the first retrain.
func (c *Consumer) ReadModelInfo(ctx context.Context) (*model.Info, error) {
	b, err := c.client.Get(ctx, publish.ModelInfoKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info model.Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("unmarshal model info: %w", err)
	}
	return &info, nil
}

// ReadLatest returns the latest stored prediction for a fixture, or nil if there is none.
func (c *Consumer) ReadLatest(ctx context.Context, fixtureID string) (*publish.Payload, error) {
	b, err := c.client.Get(ctx, publish.LatestKeyPrefix+fixtureID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out publish.Payload
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal prediction: %w", err)
	}
	return &out, nil
}
