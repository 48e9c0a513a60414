package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/event"
	"github.com/victornm/liveq/internal/leaderboard"
)

func TestService_UpdateStandings(t *testing.T) {
	s := makeService(t)

	for _, e := range []domain.EventPointsUpdated{
		{RoomID: "1234", Player: "alice", Points: decimal.NewFromInt(12)},
		{RoomID: "1234", Player: "bob", Points: decimal.NewFromInt(10)},
	} {
		require.NoError(t, s.UpdateStandings(context.Background(), e))
	}

	got, err := s.Get(context.Background(), leaderboard.GetRequest{RoomID: "1234"})
	require.NoError(t, err)

	want := &domain.Standings{
		RoomID: "1234",
		Entries: []domain.StandingsEntry{
			{Name: "alice", Points: 12},
			{Name: "bob", Points: 10},
		},
	}
	require.Equal(t, want, got)
}

func TestService_GetUnknownRoom(t *testing.T) {
	s := makeService(t)

	_, err := s.Get(context.Background(), leaderboard.GetRequest{RoomID: "0000"})
	require.Error(t, err)
}

func TestService_PublishThrottled(t *testing.T) {
	type (
		inputs struct {
			received []domain.EventPointsUpdated
		}

		outputs struct {
			published []domain.EventStandingsUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"one points update publishes one standings update": {
			arrange: func() inputs {
				return inputs{
					received: []domain.EventPointsUpdated{
						{RoomID: "1234", Player: "alice", Points: decimal.NewFromInt(10)},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.published, 1)
				require.Equal(t, domain.Standings{
					RoomID: "1234",
					Entries: []domain.StandingsEntry{
						{Name: "alice", Points: 10},
					},
				}, out.published[0].Standings)
			},
		},

		"updates for two rooms publish independently": {
			arrange: func() inputs {
				return inputs{
					received: []domain.EventPointsUpdated{
						{RoomID: "1234", Player: "alice", Points: decimal.NewFromInt(10)},
						{RoomID: "5678", Player: "bob", Points: decimal.NewFromInt(20)},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.published, 2)
			},
		},

		"a burst for one room collapses into one publish": {
			arrange: func() inputs {
				return inputs{
					received: []domain.EventPointsUpdated{
						{RoomID: "1234", Player: "alice", Points: decimal.NewFromInt(10)},
						{RoomID: "1234", Player: "bob", Points: decimal.NewFromInt(12)},
						{RoomID: "1234", Player: "carol", Points: decimal.NewFromInt(8)},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.published, 1)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameStandingsUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.published = append(out.published, e.(domain.EventStandingsUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))

			for _, e := range in.received {
				require.NoError(t, s.UpdateStandings(context.Background(), e))
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_Clear(t *testing.T) {
	s := makeService(t)

	require.NoError(t, s.UpdateStandings(context.Background(), domain.EventPointsUpdated{
		RoomID: "1234", Player: "alice", Points: decimal.NewFromInt(10),
	}))

	require.NoError(t, s.Clear(context.Background(), "1234"))

	_, err := s.Get(context.Background(), leaderboard.GetRequest{RoomID: "1234"})
	require.Error(t, err)
}

func makeService(t *testing.T, opts ...option) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "liveq",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type option func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) option {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
