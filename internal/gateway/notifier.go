package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentPublish = 100

// Redis is the slice of the client the notifier needs.
type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Notifier mirrors outbound notifications onto Redis pubsub channels so
// consumers outside this process (other gateway instances, audit tools)
// see the same stream the room's sockets do.
type Notifier struct {
	redis  Redis
	prefix string
}

func NewNotifier(r Redis, prefix string) *Notifier {
	return &Notifier{redis: r, prefix: prefix}
}

// PublishRoom publishes one frame to the room's channel.
func (n *Notifier) PublishRoom(ctx context.Context, roomID string, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("notifier: marshal %s: %w", f.Event, err)
	}

	return n.redis.Publish(ctx, n.roomChannel(roomID), b).Err()
}

// PublishPlayers publishes one frame to each named player's channel.
func (n *Notifier) PublishPlayers(ctx context.Context, roomID string, players []string, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("notifier: marshal %s: %w", f.Event, err)
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentPublish)

	for _, player := range players {
		player := player
		eg.Go(func() error {
			return n.redis.Publish(ctx, n.playerChannel(roomID, player), b).Err()
		})
	}

	return eg.Wait()
}

func (n *Notifier) roomChannel(roomID string) string {
	return fmt.Sprintf("%s:room:%s", n.prefix, roomID)
}

func (n *Notifier) playerChannel(roomID, player string) string {
	return fmt.Sprintf("%s:room:%s:player:%s", n.prefix, roomID, player)
}
