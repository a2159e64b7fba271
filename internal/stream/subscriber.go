package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/brightwave/campaign-engine/internal/pkg/logger"
)

// Subscriber manages per-campaign subscriptions. Each subscription runs a
// reader goroutine; Unsubscribe stops it and is safe to call when not
// subscribed. Events are filtered on campaign id before delivery because
// the broker does not guarantee a pre-filtered channel.
type Subscriber struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriber creates a subscriber over the given Redis client.
func NewSubscriber(rdb *redis.Client) *Subscriber {
	return &Subscriber{rdb: rdb, subs: make(map[string]*subscription)}
}

// Subscribe starts delivering a campaign's events to fn. Subscribing a
// campaign that is already subscribed is a no-op.
func (s *Subscriber) Subscribe(ctx context.Context, campaignID string, fn func(Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[campaignID]; ok {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := s.rdb.Subscribe(subCtx, topic(campaignID))
	// Force the SUBSCRIBE round-trip so a broken broker fails here, not
	// silently in the reader goroutine.
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return err
	}

	sub := &subscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	s.subs[campaignID] = sub

	go s.read(subCtx, campaignID, sub, fn)
	return nil
}

func (s *Subscriber) read(ctx context.Context, campaignID string, sub *subscription, fn func(Event)) {
	defer close(sub.done)
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logger.Warn("stream: dropping undecodable event", "topic", msg.Channel, "error", err.Error())
				continue
			}
			if evt.CampaignID != campaignID {
				continue
			}
			fn(evt)
		}
	}
}

// Unsubscribe stops delivery for a campaign and waits for the reader to
// drain, so no callback runs after it returns. Idempotent.
func (s *Subscriber) Unsubscribe(campaignID string) {
	s.mu.Lock()
	sub, ok := s.subs[campaignID]
	if ok {
		delete(s.subs, campaignID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	sub.pubsub.Close()
	<-sub.done
}

// Close tears down every subscription.
func (s *Subscriber) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.cancel()
		sub.pubsub.Close()
		<-sub.done
	}
}
