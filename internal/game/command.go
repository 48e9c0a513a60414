package game

import (
	"context"

	"github.com/victornm/liveq/internal/errors"
)

// Command is the tagged-variant input consumed by Dispatch. The legal
// transition set is enforced by the type system instead of bare event
// names routed by convention.
type Command interface {
	isCommand()
}

type (
	// Submit finalizes a player's answer for the current round.
	Submit struct {
		Player string
		Answer Answer
	}

	// StartGame starts the first round, after an optional lobby
	// countdown when Countdown > 0.
	StartGame struct {
		Countdown int
	}

	// Advance requests the between-question countdown leading into the
	// next round (Standard mode organizer gate).
	Advance struct{}

	// ToggleLock flips the room's join lock.
	ToggleLock struct{}

	// PauseTimer freezes the active per-question timer.
	PauseTimer struct{}

	// ResumeTimer restarts a frozen per-question timer.
	ResumeTimer struct{}

	// AlertMode switches the timer to the alert cadence.
	AlertMode struct{}

	// Kick removes a player; Ban additionally bars the name.
	Kick struct {
		Player string
		Ban    bool
	}

	// Grade supplies the organizer's open-answer grading result.
	Grade struct {
		Points       []PlayerPoints
		Distribution []int
	}
)

func (Submit) isCommand()      {}
func (StartGame) isCommand()   {}
func (Advance) isCommand()     {}
func (ToggleLock) isCommand()  {}
func (PauseTimer) isCommand()  {}
func (ResumeTimer) isCommand() {}
func (AlertMode) isCommand()   {}
func (Kick) isCommand()        {}
func (Grade) isCommand()       {}

// Dispatch is the session's single command entry point.
func (g *Game) Dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Submit:
		g.FinalizeAnswer(ctx, c.Player, c.Answer)
		return nil

	case StartGame:
		if c.Countdown > 0 {
			return g.StartGameCountdown(ctx, c.Countdown)
		}
		return g.Start(ctx)

	case Advance:
		g.StartQuestionCountdown(ctx)
		return nil

	case ToggleLock:
		g.ToggleLock()
		return nil

	case PauseTimer:
		g.Pause()
		return nil

	case ResumeTimer:
		g.Resume(ctx)
		return nil

	case AlertMode:
		g.StartAlertMode()
		return nil

	case Kick:
		if c.Ban {
			g.BanPlayer(ctx, c.Player)
		} else {
			g.RemovePlayer(ctx, c.Player)
		}
		return nil

	case Grade:
		g.GradeOpenAnswers(ctx, c.Points, c.Distribution)
		return nil

	default:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown command %T", cmd))
	}
}
