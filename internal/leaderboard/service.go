package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/errors"
	"github.com/victornm/liveq/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service mirrors every room's standings into a Redis sorted set and
// publishes throttled standings-updated events for the outbound layer.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNamePointsUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateStandings(ctx, e.(domain.EventPointsUpdated))
	})

	s.eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return s.Clear(ctx, e.(domain.EventGameEnded).Results.RoomID)
	})

	return s
}

type GetRequest struct {
	RoomID string
}

// Get returns a room's standings, every player with their points, sorted
// descending.
func (s *Service) Get(ctx context.Context, req GetRequest) (*domain.Standings, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.standingsKey(req.RoomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get standings: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("standings not found: room=%s", req.RoomID))
	}

	entries := make([]domain.StandingsEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.StandingsEntry{
			Name:   z.Member.(string),
			Points: z.Score,
		})
	}

	return &domain.Standings{
		RoomID:  req.RoomID,
		Entries: entries,
	}, nil
}

// UpdateStandings overwrites one player's points in the room's sorted set.
func (s *Service) UpdateStandings(ctx context.Context, e domain.EventPointsUpdated) error {
	if err := s.redis.ZAdd(ctx, s.standingsKey(e.RoomID), redis.Z{
		Score:  e.Points.InexactFloat64(),
		Member: e.Player,
	}).Err(); err != nil {
		return fmt.Errorf("update standings: %w", err)
	}

	return s.schedulePublish(ctx, e.RoomID)
}

// schedulePublish publishes the standings at most once per interval.
// Round completion fires one points update per player in quick
// succession; collapsing them keeps the fan-out proportional to rounds,
// not players.
func (s *Service) schedulePublish(ctx context.Context, roomID string) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(roomID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	standings, err := s.Get(ctx, GetRequest{RoomID: roomID})
	if err != nil {
		return fmt.Errorf("get standings failed: room=%s: %w", roomID, err)
	}

	s.eb.Publish(ctx, domain.EventStandingsUpdated{
		Standings: *standings,
	})

	return nil
}

// Clear drops a room's standings on teardown.
func (s *Service) Clear(ctx context.Context, roomID string) error {
	return s.redis.Del(ctx, s.standingsKey(roomID), s.throttleKey(roomID)).Err()
}

func (s *Service) standingsKey(room string) string {
	return fmt.Sprintf("%s:%s:standings", s.prefix, room)
}

func (s *Service) throttleKey(room string) string {
	return fmt.Sprintf("%s:%s:throttle", s.prefix, room)
}
