package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"footpredict/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	StreamKey          = "footpredict:predictions"
	SentKeyPrefix      = "footpredict:prediction_sent:"
	SentKeyTTL         = 8 * 24 * time.Hour
	LatestKeyPrefix    = "footpredict:prediction:"
	LatestTTL          = 7 * 24 * time.Hour
	ModelInfoKey       = "footpredict:model_info"
	streamMaxLenApprox = 10000
)

// Payload is the prediction message for the announcer.
type Payload struct {
	EventID     string           `json:"event_id"`
	Prediction  model.Prediction `json:"prediction"`
	KickoffUTC  string           `json:"kickoff_utc,omitempty"`
	PublishedAt time.Time        `json:"published_at"`
}

// Producer writes predictions to a Redis stream and keeps the latest prediction per fixture.
type Producer struct {
	client *redis.Client
	now    func() time.Time
}

// NewProducer returns a prediction producer.
func NewProducer(client *redis.Client) *Producer {
	return &Producer{client: client, now: time.Now}
}

// AlreadySent reports whether a prediction for this fixture was already announced.
func (p *Producer) AlreadySent(ctx context.Context, fixtureID string) (bool, error) {
	_, err := p.client.Get(ctx, SentKeyPrefix+fixtureID).Result()
	if err == redis.Nil {
		return false, nil
	}
	return err == nil, err
}

// Publish writes the prediction to the stream and marks the fixture as sent.
func (p *Producer) Publish(ctx context.Context, f model.Fixture, pred model.Prediction) (string, error) {
	if pred.FixtureID == "" {
		return "", fmt.Errorf("publish: prediction has no fixture id")
	}
	body, err := p.payload(f, pred)
	if err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLenApprox,
		Approx: true,
		Values: map[string]interface{}{
			"payload":          string(body),
			"fixture_id":       pred.FixtureID,
			"snapshot_version": pred.SnapshotVersion,
		},
	}).Result()
	if err != nil {
		return "", err
	}
	return id, p.client.Set(ctx, SentKeyPrefix+pred.FixtureID, pred.SnapshotVersion, SentKeyTTL).Err()
}

// WriteLatest stores the current prediction for a fixture so it can be looked up later.
func (p *Producer) WriteLatest(ctx context.Context, f model.Fixture, pred model.Prediction) error {
	if pred.FixtureID == "" {
		return fmt.Errorf("write latest: prediction has no fixture id")
	}
	body, err := p.payload(f, pred)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, LatestKeyPrefix+pred.FixtureID, string(body), LatestTTL).Err()
}

// WriteModelInfo stores the summary of the published snapshot for the announcer's /model command.
func (p *Producer) WriteModelInfo(ctx context.Context, info model.Info) error {
	body, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal model info: %w", err)
	}
	return p.client.Set(ctx, ModelInfoKey, string(body), 0).Err()
}

func (p *Producer) payload(f model.Fixture, pred model.Prediction) ([]byte, error) {
	payload := Payload{
		EventID:     uuid.NewString(),
		Prediction:  pred,
		PublishedAt: p.now().UTC(),
	}
	if !f.Kickoff.IsZero() {
		payload.KickoffUTC = f.Kickoff.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction: %w", err)
	}
	return body, nil
}
