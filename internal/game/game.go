// Package game implements the session state machine: one room's
// lifecycle, its countdown timer, its roster, the first-correct-answer
// tie-break protocol and result aggregation.
package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/errors"
	"github.com/victornm/liveq/internal/event"
	"github.com/victornm/liveq/internal/timer"
)

const (
	// TieBreakInterval is the window within which a second correct answer
	// cancels the first answer's speed bonus. Network jitter below this
	// window is an accepted tolerance, not something to out-timestamp.
	TieBreakInterval = 1500 * time.Millisecond

	// OrganizerName is reserved; no roster player may claim it.
	OrganizerName = "organizer"

	openAnswerDuration    = 60 // seconds, regardless of quiz duration
	questionCountdown     = 3  // seconds between rounds
	alertThresholdChoice  = 10 // seconds
	alertThresholdOpen    = 20 // seconds
)

// State is a session's position in the round lifecycle.
type State string

const (
	StateLobby      State = "lobby"
	StateAnswering  State = "answering"
	StateCorrecting State = "correcting"
	StateAdvancing  State = "advancing"
	StateResults    State = "results"
)

type Config struct {
	RoomID          string
	Quiz            domain.Quiz
	Mode            domain.GameMode
	OrganizerConnID string
	Clock           clockwork.Clock
	EventBus        *event.Bus
}

// Game owns one room. Every state transition is serialized behind mu;
// timer callbacks re-enter through methods that take it, never mutating
// state from the timer goroutine directly.
type Game struct {
	roomID string
	quiz   domain.Quiz
	mode   domain.GameMode
	clock  clockwork.Clock
	eb     *event.Bus
	round  *timer.Countdown

	mu           sync.Mutex
	state        State
	cursor       int
	locked       bool
	banned       map[string]struct{}
	players      []*Player
	removed      []*Player
	organizer    *Player
	readyForNext bool
	histograms   [][]int

	// Tie-break bookkeeping, reset every round.
	firstAnswerAt time.Time
	firstAnswerBy *Player
}

func New(c Config) *Game {
	g := &Game{
		roomID:    c.RoomID,
		quiz:      c.Quiz,
		mode:      c.Mode,
		clock:     c.Clock,
		eb:        c.EventBus,
		round:     timer.New(c.Clock),
		state:     StateLobby,
		banned:    make(map[string]struct{}),
		organizer: newPlayer(OrganizerName, c.OrganizerConnID),
	}

	if g.mode == domain.ModeRandom {
		// No organizer gate: the creator answers and scores like every
		// other participant.
		g.players = append(g.players, g.organizer)
	}

	return g
}

func (g *Game) RoomID() string        { return g.roomID }
func (g *Game) Mode() domain.GameMode { return g.mode }
func (g *Game) Quiz() domain.Quiz     { return g.quiz }

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CurrentQuestionIndex returns the monotonically increasing cursor.
func (g *Game) CurrentQuestionIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

// Close releases the timer. Called by the registry on teardown.
func (g *Game) Close() {
	g.round.Stop()
}

// ---- Roster & lock management ----

// ValidateName rejects empty or whitespace-only names, banned names, the
// reserved organizer name, and names already present in the roster.
func (g *Game) ValidateName(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validateNameLocked(name)
}

func (g *Game) validateNameLocked(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("empty player name"))
	}

	lower := strings.ToLower(trimmed)
	if lower == OrganizerName {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name %q is reserved", trimmed))
	}
	if _, ok := g.banned[lower]; ok {
		return errors.New(errors.CodePermissionDenied, errors.WithMessagef("name %q is banned from this room", trimmed))
	}
	for _, p := range g.players {
		if strings.EqualFold(p.Name, trimmed) {
			return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("name %q is already taken", trimmed))
		}
	}

	return nil
}

// AddPlayer validates the name and appends a player to the roster.
func (g *Game) AddPlayer(name, connID string) (*Player, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locked {
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s is locked", g.roomID))
	}
	if g.state != StateLobby {
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s already started", g.roomID))
	}
	if err := g.validateNameLocked(name); err != nil {
		return nil, err
	}

	p := newPlayer(strings.TrimSpace(name), connID)
	g.players = append(g.players, p)
	return p, nil
}

// RemovePlayer detaches a player from the roster, case-insensitively.
// The player is retained for final results. A removal mid-round shrinks
// the readiness wait set immediately, so a round can never starve on a
// departed player.
func (g *Game) RemovePlayer(ctx context.Context, name string) (*Player, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removePlayerLocked(ctx, name, false)
}

// BanPlayer removes a player and bars the name from rejoining.
func (g *Game) BanPlayer(ctx context.Context, name string) (*Player, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.removePlayerLocked(ctx, name, true)
	if ok {
		g.banned[strings.ToLower(p.Name)] = struct{}{}
	}
	return p, ok
}

func (g *Game) removePlayerLocked(ctx context.Context, name string, banned bool) (*Player, bool) {
	for i, p := range g.players {
		if !strings.EqualFold(p.Name, name) {
			continue
		}

		g.players = append(g.players[:i], g.players[i+1:]...)
		p.InGame = false
		g.removed = append(g.removed, p)

		g.eb.Publish(ctx, domain.EventPlayerRemoved{
			RoomID: g.roomID,
			Player: p.Name,
			Banned: banned,
		})

		// The departed player no longer holds up the round.
		g.checkAllSubmittedLocked(ctx)
		return p, true
	}

	return nil, false
}

// ToggleLock flips and returns the room lock. Joins are rejected while
// locked.
func (g *Game) ToggleLock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.locked = !g.locked
	return g.locked
}

// ReadyToStart reports whether the roster is non-empty and every
// roster player is still connected.
func (g *Game) ReadyToStart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) == 0 {
		return false
	}
	for _, p := range g.players {
		if !p.InGame {
			return false
		}
	}
	return true
}

// FindPlayerByConn resolves a connection handle to its player, including
// the organizer.
func (g *Game) FindPlayerByConn(connID string) (*Player, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.organizer.ConnID == connID {
		return g.organizer, true
	}
	for _, p := range g.players {
		if p.ConnID == connID {
			return p, true
		}
	}
	return nil, false
}

// ---- Round state machine ----

// Start begins the first round. Valid only from the lobby.
func (g *Game) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateLobby {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s already started", g.roomID))
	}

	g.beginRoundLocked(ctx)
	return nil
}

// StartGameCountdown runs an organizer-chosen countdown from the lobby;
// its expiry starts the first round.
func (g *Game) StartGameCountdown(ctx context.Context, seconds int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if seconds <= 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("countdown must be positive, got %d", seconds))
	}
	if g.state != StateLobby {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("room %s already started", g.roomID))
	}

	g.round.Start(seconds, timer.Callbacks{
		OnTick: g.publishTick,
		OnEnd: func() {
			// Re-enter the serialized context; the lobby guard makes a
			// duplicated end signal harmless.
			_ = g.Start(context.WithoutCancel(ctx))
		},
	})
	return nil
}

// NextQuestion advances the cursor and starts the next round. Guarded by
// readyForNext: a duplicated timer-end signal racing an organizer advance
// is a silent no-op. The guard flag and the tie-break bookkeeping are
// unconditionally reset on a successful advance.
func (g *Game) NextQuestion(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextQuestionLocked(ctx)
}

func (g *Game) nextQuestionLocked(ctx context.Context) {
	if g.state != StateAdvancing || !g.readyForNext {
		return
	}

	g.readyForNext = false
	g.cursor++
	g.beginRoundLocked(ctx)
}

func (g *Game) beginRoundLocked(ctx context.Context) {
	g.firstAnswerAt = time.Time{}
	g.firstAnswerBy = nil

	q := g.quiz.Questions[g.cursor]
	for _, p := range g.players {
		p.ResetForNextRound(q)
	}

	duration := g.quiz.Duration
	if q.Type == domain.OpenAnswer {
		duration = openAnswerDuration
	}

	g.state = StateAnswering

	g.eb.Publish(ctx, domain.EventQuestionChanged{
		RoomID:   g.roomID,
		Index:    g.cursor,
		Question: q,
	})

	g.round.Start(duration, timer.Callbacks{
		OnTick: g.publishTick,
		OnEnd:  func() { g.handleRoundExpiry(context.WithoutCancel(ctx)) },
	})
}

func (g *Game) publishTick(remaining int, alert bool) {
	g.eb.Publish(context.Background(), domain.EventTimerTick{
		RoomID:    g.roomID,
		Remaining: remaining,
		Alert:     alert,
	})
}

// handleRoundExpiry finalizes every pending player with whatever answer
// they hold and completes the round. Delivered from the timer goroutine,
// serialized here.
func (g *Game) handleRoundExpiry(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateAnswering {
		return
	}

	for _, p := range g.players {
		p.Submitted = true
	}
	g.completeRoundLocked(ctx)
}

// FinalizeAnswer records a player's submission and runs the tie-break
// protocol. Submissions outside an answering round, duplicates, and
// submissions from unknown players are silent no-ops per the state-guard
// policy; only the caller-facing join path surfaces named rejections.
func (g *Game) FinalizeAnswer(ctx context.Context, name string, a Answer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateAnswering {
		return
	}

	p, ok := g.findByNameLocked(name)
	if !ok || p.Submitted {
		return
	}

	p.setAnswer(a)
	p.Submitted = true

	q := g.quiz.Questions[g.cursor]
	if q.Type != domain.OpenAnswer {
		g.runBonusRaceLocked(p, q)
	}

	g.checkAllSubmittedLocked(ctx)
}

// runBonusRaceLocked applies the first-correct-answer protocol: only the
// very first correct submission of a round can hold the bonus, and only
// until a competitor lands within the tie-break interval. The revocation
// is floored: a three-way tie cannot drive the counter negative.
func (g *Game) runBonusRaceLocked(p *Player, q domain.Question) {
	if !p.VerifyAnswer(q) {
		p.IsFirst = false
		return
	}

	now := g.clock.Now()

	if g.firstAnswerBy == nil {
		g.firstAnswerBy = p
		g.firstAnswerAt = now
		p.IsFirst = true
		p.Bonuses++
		return
	}

	if now.Sub(g.firstAnswerAt) < TieBreakInterval && g.firstAnswerBy.IsFirst {
		g.firstAnswerBy.IsFirst = false
		if g.firstAnswerBy.Bonuses > 0 {
			g.firstAnswerBy.Bonuses--
		}
	}
}

// CheckAllSubmitted re-evaluates round readiness. Exposed for the
// connection layer; a no-op unless every active player has submitted.
func (g *Game) CheckAllSubmitted(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkAllSubmittedLocked(ctx)
}

func (g *Game) checkAllSubmittedLocked(ctx context.Context) {
	if g.state != StateAnswering || len(g.players) == 0 {
		return
	}
	for _, p := range g.players {
		if !p.Submitted {
			return
		}
	}
	g.completeRoundLocked(ctx)
}

// completeRoundLocked runs the round's terminal side effects exactly
// once: histogram, scoring, notifications, player resets. Open-answer
// rounds park in Correcting and wait for GradeOpenAnswers instead.
func (g *Game) completeRoundLocked(ctx context.Context) {
	g.round.Stop()

	q := g.quiz.Questions[g.cursor]
	if q.Type == domain.OpenAnswer {
		g.state = StateCorrecting
		g.eb.Publish(ctx, domain.EventGradingPending{
			RoomID: g.roomID,
			Index:  g.cursor,
		})
		return
	}

	if q.Type == domain.MultipleChoice {
		g.histograms = append(g.histograms, g.tallyLocked(q))
	}

	for _, p := range g.players {
		if p.VerifyAnswer(q) {
			p.ApplyScore(q)
		}
		g.publishPointsLocked(ctx, p)
	}

	g.advanceOrFinishLocked(ctx)
}

func (g *Game) tallyLocked(q domain.Question) []int {
	counts := make([]int, len(q.Choices))
	for _, p := range g.players {
		for i, sel := range p.Selections {
			if sel && i < len(counts) {
				counts[i]++
			}
		}
	}
	return counts
}

func (g *Game) publishPointsLocked(ctx context.Context, p *Player) {
	g.eb.Publish(ctx, domain.EventPointsUpdated{
		RoomID:  g.roomID,
		Player:  p.Name,
		Points:  p.Points,
		Bonuses: p.Bonuses,
	})
}

func (g *Game) advanceOrFinishLocked(ctx context.Context) {
	if g.cursor+1 == len(g.quiz.Questions) {
		g.finishLocked(ctx)
		return
	}

	g.state = StateAdvancing
	g.readyForNext = true

	if g.mode == domain.ModeRandom {
		g.startQuestionCountdownLocked(ctx)
	}
}

func (g *Game) finishLocked(ctx context.Context) {
	g.state = StateResults
	g.readyForNext = false

	g.eb.Publish(ctx, domain.EventGameEnded{Results: g.resultsLocked()})
}

// StartQuestionCountdown runs the short between-question countdown whose
// expiry advances the round. Present so clients get a visible transition
// beat before the next question lands.
func (g *Game) StartQuestionCountdown(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startQuestionCountdownLocked(ctx)
}

func (g *Game) startQuestionCountdownLocked(ctx context.Context) {
	if g.state != StateAdvancing || !g.readyForNext {
		return
	}

	g.round.Start(questionCountdown, timer.Callbacks{
		OnTick: g.publishTick,
		OnEnd:  func() { g.NextQuestion(context.WithoutCancel(ctx)) },
	})
}

// ---- Open-answer correction ----

// PlayerPoints is one line of an organizer's grading result.
type PlayerPoints struct {
	Name   string
	Points decimal.Decimal
}

// GradeOpenAnswers applies externally graded points verbatim and records
// the supplied answer distribution. Names no longer in the roster are
// silently ignored. Valid only while the round is parked in Correcting.
func (g *Game) GradeOpenAnswers(ctx context.Context, grades []PlayerPoints, distribution []int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateCorrecting {
		return
	}

	for _, grade := range grades {
		p, ok := g.findByNameLocked(grade.Name)
		if !ok {
			continue
		}
		p.Points = p.Points.Add(grade.Points)
		g.publishPointsLocked(ctx, p)
	}

	g.histograms = append(g.histograms, append([]int(nil), distribution...))
	g.advanceOrFinishLocked(ctx)
}

// ---- Timer control ----

// Pause freezes the active per-question timer only; session progress is
// untouched.
func (g *Game) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateAnswering {
		g.round.Pause()
	}
}

// Resume restarts the per-question timer from the frozen remaining value.
func (g *Game) Resume(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateAnswering || g.round.Running() {
		return
	}

	remaining := g.round.Remaining()
	if remaining <= 0 {
		return
	}

	g.round.Start(remaining, timer.Callbacks{
		OnTick: g.publishTick,
		OnEnd:  func() { g.handleRoundExpiry(context.WithoutCancel(ctx)) },
	})
}

// StartAlertMode switches the timer to the alert cadence for the final
// stretch. Only entered while the remaining time still exceeds the
// type-specific threshold; below it, a no-op.
func (g *Game) StartAlertMode() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateAnswering {
		return
	}

	threshold := alertThresholdChoice
	if g.quiz.Questions[g.cursor].Type == domain.OpenAnswer {
		threshold = alertThresholdOpen
	}

	if g.round.Remaining() > threshold {
		g.round.StartAlert()
	}
}

// ---- Results ----

// Results aggregates active and removed players with the question list
// and the accumulated histograms. Valid only once the final round has
// completed.
func (g *Game) Results() (domain.GameResults, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateResults {
		return domain.GameResults{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("room %s has not finished", g.roomID))
	}

	return g.resultsLocked(), nil
}

func (g *Game) resultsLocked() domain.GameResults {
	results := domain.GameResults{
		RoomID:     g.roomID,
		QuizTitle:  g.quiz.Title,
		Questions:  g.quiz.Questions,
		Histograms: g.histograms,
		EndedAt:    g.clock.Now(),
	}

	for _, p := range g.players {
		results.Players = append(results.Players, domain.PlayerResult{
			Name:    p.Name,
			Points:  p.Points,
			Bonuses: p.Bonuses,
			InGame:  p.InGame,
		})
	}
	for _, p := range g.removed {
		results.Players = append(results.Players, domain.PlayerResult{
			Name:    p.Name,
			Points:  p.Points,
			Bonuses: p.Bonuses,
			InGame:  false,
		})
	}

	return results
}

func (g *Game) findByNameLocked(name string) (*Player, bool) {
	for _, p := range g.players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}
