// Package gateway is the connection-handling layer: it upgrades
// WebSocket connections, routes inbound frames to the session owning the
// sender's room, and fans outbound notifications back to room members.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/errors"
	"github.com/victornm/liveq/internal/event"
	"github.com/victornm/liveq/internal/game"
	"github.com/victornm/liveq/internal/registry"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Frame is the JSON envelope for both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newFrame(event string, data any) (Frame, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("gateway: marshal %s: %w", event, err)
	}
	return Frame{Event: event, Data: b}, nil
}

type Config struct {
	Registry *registry.Registry
	EventBus *event.Bus
	Notifier *Notifier
	// CheckOrigin defaults to allowing all origins.
	CheckOrigin func(r *http.Request) bool
}

// Hub owns the per-room connection pools.
type Hub struct {
	reg      *registry.Registry
	notifier *Notifier
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*Conn]bool
}

// Conn is one WebSocket participant.
type Conn struct {
	ID        string
	Name      string
	RoomID    string
	Organizer bool

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

func New(c Config) *Hub {
	checkOrigin := c.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	h := &Hub{
		reg:      c.Registry,
		notifier: c.Notifier,
		rooms:    make(map[string]map[*Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}

	h.subscribe(c.EventBus)
	return h
}

func (h *Hub) subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameTimerTick, func(ctx context.Context, e event.Event) error {
		t := e.(domain.EventTimerTick)
		return h.fanout(ctx, t.RoomID, e.Name(), map[string]any{
			"remaining": t.Remaining,
			"alert":     t.Alert,
		})
	})

	eb.Subscribe(domain.EventNameQuestionChanged, func(ctx context.Context, e event.Event) error {
		q := e.(domain.EventQuestionChanged)
		return h.fanout(ctx, q.RoomID, e.Name(), map[string]any{
			"index":    q.Index,
			"question": questionView(q.Question),
		})
	})

	eb.Subscribe(domain.EventNamePointsUpdated, func(ctx context.Context, e event.Event) error {
		p := e.(domain.EventPointsUpdated)
		data := map[string]any{
			"player":  p.Player,
			"points":  p.Points.String(),
			"bonuses": p.Bonuses,
		}

		if err := h.fanout(ctx, p.RoomID, e.Name(), data); err != nil {
			return err
		}

		// Mirror to the player's own channel so a client can follow its
		// score without filtering the room stream.
		if h.notifier != nil {
			f, err := newFrame(e.Name(), data)
			if err != nil {
				return err
			}
			return h.notifier.PublishPlayers(ctx, p.RoomID, []string{p.Player}, f)
		}
		return nil
	})

	eb.Subscribe(domain.EventNameGradingPending, func(ctx context.Context, e event.Event) error {
		g := e.(domain.EventGradingPending)
		return h.fanout(ctx, g.RoomID, e.Name(), map[string]any{
			"index": g.Index,
		})
	})

	eb.Subscribe(domain.EventNamePlayerRemoved, func(ctx context.Context, e event.Event) error {
		r := e.(domain.EventPlayerRemoved)
		h.closePlayer(r.RoomID, r.Player)
		return h.fanout(ctx, r.RoomID, e.Name(), map[string]any{
			"player": r.Player,
			"banned": r.Banned,
		})
	})

	eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		res := e.(domain.EventGameEnded).Results
		return h.fanout(ctx, res.RoomID, e.Name(), resultsView(res))
	})

	eb.Subscribe(domain.EventNameStandingsUpdated, func(ctx context.Context, e event.Event) error {
		s := e.(domain.EventStandingsUpdated).Standings
		return h.fanout(ctx, s.RoomID, e.Name(), s)
	})
}

// questionView strips the correct-answer flags before a question leaves
// the engine.
func questionView(q domain.Question) map[string]any {
	choices := make([]map[string]any, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, map[string]any{"text": c.Text})
	}

	v := map[string]any{
		"id":     q.QuestionID,
		"text":   q.Text,
		"type":   q.Type,
		"points": q.Points.String(),
	}
	if q.Type == domain.MultipleChoice {
		v["choices"] = choices
	}
	return v
}

func resultsView(res domain.GameResults) map[string]any {
	players := make([]map[string]any, 0, len(res.Players))
	for _, p := range res.Players {
		players = append(players, map[string]any{
			"name":    p.Name,
			"points":  p.Points.String(),
			"bonuses": p.Bonuses,
			"inGame":  p.InGame,
		})
	}

	return map[string]any{
		"roomId":     res.RoomID,
		"quizTitle":  res.QuizTitle,
		"players":    players,
		"histograms": res.Histograms,
	}
}

// fanout broadcasts a notification to the room's sockets and mirrors it
// to the pubsub channel for off-process consumers.
func (h *Hub) fanout(ctx context.Context, roomID, eventName string, data any) error {
	f, err := newFrame(eventName, data)
	if err != nil {
		return err
	}

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}

	h.mu.RLock()
	for conn := range h.rooms[roomID] {
		select {
		case conn.send <- b:
		default:
			// A stalled client loses notifications rather than stalling
			// the room.
			slog.Warn("gateway: send buffer full, dropping frame",
				"room", roomID, "player", conn.Name, "event", eventName)
		}
	}
	h.mu.RUnlock()

	if h.notifier != nil {
		return h.notifier.PublishRoom(ctx, roomID, f)
	}
	return nil
}

// Serve upgrades an HTTP request into a room participant. Query params:
// room (required), then either name (a joining player) or token (the
// organizer credential handed out at room creation).
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	name := r.URL.Query().Get("name")
	token := r.URL.Query().Get("token")

	g, err := h.reg.Lookup(roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn := &Conn{
		ID:     uuid.NewString(),
		RoomID: roomID,
		send:   make(chan []byte, sendBuffer),
	}

	if name == "" {
		p, ok := g.FindPlayerByConn(token)
		if !ok || p.Name != game.OrganizerName {
			writeError(w, errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("invalid organizer token for room %s", roomID)))
			return
		}
		conn.ID = token
		conn.Organizer = true
		conn.Name = game.OrganizerName
	} else {
		p, err := g.AddPlayer(name, conn.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		conn.Name = p.Name
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: upgrade failed", "error", err)
		if !conn.Organizer {
			g.RemovePlayer(r.Context(), conn.Name)
		}
		return
	}
	conn.ws = ws

	h.reg.Attach(conn.ID, roomID)
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Conn]bool)
	}
	h.rooms[roomID][conn] = true
	h.mu.Unlock()

	slog.Info("gateway: connected", "room", roomID, "player", conn.Name)

	go h.writePump(conn)
	go h.readPump(conn, g)
}

func writeError(w http.ResponseWriter, err error) {
	e := errors.Convert(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatusCode())
	_ = json.NewEncoder(w).Encode(e)
}

func (h *Hub) readPump(conn *Conn, g *game.Game) {
	defer h.disconnect(conn, g)

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, msg, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			slog.Warn("gateway: bad frame", "room", conn.RoomID, "error", err)
			continue
		}

		cmd, err := DecodeCommand(conn, f)
		if err != nil {
			slog.Warn("gateway: reject command", "room", conn.RoomID, "player", conn.Name, "error", err)
			continue
		}

		if err := g.Dispatch(context.Background(), cmd); err != nil {
			slog.Warn("gateway: command failed",
				"room", conn.RoomID, "player", conn.Name, "event", f.Event, "error", err)
		}
	}
}

func (h *Hub) writePump(conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect tears one connection down. An organizer disconnect evicts
// the whole room; a player disconnect shrinks the roster (and the round's
// wait set) immediately.
func (h *Hub) disconnect(conn *Conn, g *game.Game) {
	h.remove(conn)
	h.reg.Detach(conn.ID)

	if conn.Organizer && g.Mode() != domain.ModeRandom {
		h.CloseRoom(conn.RoomID)
		return
	}

	g.RemovePlayer(context.Background(), conn.Name)
	slog.Info("gateway: disconnected", "room", conn.RoomID, "player", conn.Name)
}

// CloseRoom closes every socket in a room and evicts the session.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	conns := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for conn := range conns {
		conn.close()
	}

	h.reg.CloseRoom(roomID)
	slog.Info("gateway: room closed", "room", roomID)
}

func (h *Hub) closePlayer(roomID, name string) {
	h.mu.Lock()
	var target *Conn
	for conn := range h.rooms[roomID] {
		if conn.Name == name {
			target = conn
			delete(h.rooms[roomID], conn)
			break
		}
	}
	h.mu.Unlock()

	if target != nil {
		target.close()
	}
}

func (h *Hub) remove(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pool, ok := h.rooms[conn.RoomID]; ok {
		delete(pool, conn)
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.send) })
}
