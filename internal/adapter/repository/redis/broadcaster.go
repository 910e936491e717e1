package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iho/splitledger/internal/domain"
)

// Broadcaster publishes change notifications on one Redis pub/sub channel per
// area. Listeners subscribe to the areas they display.
type Broadcaster struct {
	client *redis.Client
	prefix string
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{
		client: client,
		prefix: "movements:area:",
	}
}

// Channel returns the channel name carrying notifications for areaID.
func (b *Broadcaster) Channel(areaID string) string {
	return b.prefix + areaID
}

// Publish sends n to the channel of every area it names in a single round
// trip.
func (b *Broadcaster) Publish(ctx context.Context, n domain.ChangeNotification) error {
	if len(n.AreaIDs) == 0 {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, areaID := range n.AreaIDs {
			pipe.Publish(ctx, b.Channel(areaID), payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", n.Type, n.MovementID, err)
	}
	return nil
}
