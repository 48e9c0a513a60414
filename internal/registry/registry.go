// Package registry maps connection handles to rooms and hands back the
// matching session. Room-code allocation and eviction live here, not in
// the session engine.
package registry

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/errors"
	"github.com/victornm/liveq/internal/event"
	"github.com/victornm/liveq/internal/game"
)

const maxCodeAttempts = 50

type Config struct {
	EventBus *event.Bus
	Clock    clockwork.Clock
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

type Registry struct {
	eb    *event.Bus
	clock clockwork.Clock
	gauge prometheus.Gauge

	mu    sync.RWMutex
	rooms map[string]*game.Game
	conns map[string]string // connection id -> room id
}

func New(c Config) *Registry {
	r := &Registry{
		eb:    c.EventBus,
		clock: c.Clock,
		rooms: make(map[string]*game.Game),
		conns: make(map[string]string),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveq_active_rooms",
			Help: "Number of rooms currently hosting a session.",
		}),
	}

	reg := c.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(r.gauge)

	return r
}

// CreateRoom allocates a room code and a new session for the quiz.
func (r *Registry) CreateRoom(quiz domain.Quiz, mode domain.GameMode, organizerConnID string) (*game.Game, error) {
	if len(quiz.Questions) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("quiz has no questions"))
	}
	if quiz.Duration <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("quiz duration must be positive, got %d", quiz.Duration))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.newRoomCodeLocked()
	if err != nil {
		return nil, err
	}

	g := game.New(game.Config{
		RoomID:          code,
		Quiz:            quiz,
		Mode:            mode,
		OrganizerConnID: organizerConnID,
		Clock:           r.clock,
		EventBus:        r.eb,
	})

	r.rooms[code] = g
	r.conns[organizerConnID] = code
	r.gauge.Inc()

	return g, nil
}

func (r *Registry) newRoomCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(9000))
		if err != nil {
			return "", errors.Internal(err)
		}
		code := strconv.FormatInt(n.Int64()+1000, 10)
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}

	return "", errors.New(errors.CodeInternal, errors.WithMessagef("room codes exhausted"))
}

// Lookup returns the session for a room code.
func (r *Registry) Lookup(roomID string) (*game.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.rooms[roomID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("room %s not found", roomID))
	}
	return g, nil
}

// Attach binds a connection to a room.
func (r *Registry) Attach(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = roomID
}

// Detach unbinds a connection.
func (r *Registry) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// ByConn resolves a connection handle to its session.
func (r *Registry) ByConn(connID string) (*game.Game, error) {
	r.mu.RLock()
	roomID, ok := r.conns[connID]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("connection %s not in a room", connID))
	}
	return r.Lookup(roomID)
}

// CloseRoom tears a session down, releasing its timer and detaching every
// connection bound to it. Idempotent.
func (r *Registry) CloseRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.rooms[roomID]
	if !ok {
		return
	}

	g.Close()
	delete(r.rooms, roomID)
	for conn, room := range r.conns {
		if room == roomID {
			delete(r.conns, conn)
		}
	}
	r.gauge.Dec()
}

// Rooms returns the number of active rooms.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
