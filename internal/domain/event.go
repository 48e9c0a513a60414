package domain

import "github.com/shopspring/decimal"

const (
	EventNameTimerTick        = "timer.tick"
	EventNameQuestionChanged  = "question.changed"
	EventNamePointsUpdated    = "points.updated"
	EventNameGradingPending   = "grading.pending"
	EventNamePlayerRemoved    = "player.removed"
	EventNameGameEnded        = "game.ended"
	EventNameStandingsUpdated = "standings.updated"
)

type EventTimerTick struct {
	RoomID    string
	Remaining int
	Alert     bool
}

func (EventTimerTick) Name() string { return EventNameTimerTick }

type EventQuestionChanged struct {
	RoomID   string
	Index    int
	Question Question
}

func (EventQuestionChanged) Name() string { return EventNameQuestionChanged }

type EventPointsUpdated struct {
	RoomID  string
	Player  string
	Points  decimal.Decimal
	Bonuses int
}

func (EventPointsUpdated) Name() string { return EventNamePointsUpdated }

type EventGradingPending struct {
	RoomID string
	Index  int
}

func (EventGradingPending) Name() string { return EventNameGradingPending }

type EventPlayerRemoved struct {
	RoomID string
	Player string
	Banned bool
}

func (EventPlayerRemoved) Name() string { return EventNamePlayerRemoved }

type EventGameEnded struct {
	Results GameResults
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

type EventStandingsUpdated struct {
	Standings Standings
}

func (EventStandingsUpdated) Name() string { return EventNameStandingsUpdated }
