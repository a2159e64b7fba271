package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher emits events onto a campaign's topic.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a publisher over the given Redis client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish sends one event to its campaign topic.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, topic(evt.CampaignID), body).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
