package gateway

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/victornm/liveq/internal/errors"
	"github.com/victornm/liveq/internal/game"
)

// Inbound frame events.
const (
	ActionSubmitAnswer = "submitAnswer"
	ActionStartGame    = "startGame"
	ActionNextQuestion = "nextQuestion"
	ActionToggleLock   = "toggleLock"
	ActionPauseTimer   = "pauseTimer"
	ActionResumeTimer  = "resumeTimer"
	ActionAlertMode    = "alertMode"
	ActionKickPlayer   = "kickPlayer"
	ActionGradeAnswers = "gradeAnswers"
)

type submitPayload struct {
	Selections []bool   `json:"selections"`
	Value      *float64 `json:"value"`
	Text       string   `json:"text"`
}

type startPayload struct {
	Countdown int `json:"countdown"`
}

type kickPayload struct {
	Player string `json:"player"`
	Ban    bool   `json:"ban"`
}

type gradePayload struct {
	Points []struct {
		Player string  `json:"player"`
		Points float64 `json:"points"`
	} `json:"points"`
	Distribution []int `json:"distribution"`
}

// DecodeCommand turns an inbound frame into a typed game command,
// enforcing that control actions come from the organizer's connection.
func DecodeCommand(conn *Conn, f Frame) (game.Command, error) {
	switch f.Event {
	case ActionSubmitAnswer:
		var p submitPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		return game.Submit{
			Player: conn.Name,
			Answer: game.Answer{
				Selections: p.Selections,
				Value:      p.Value,
				Text:       p.Text,
			},
		}, nil

	case ActionStartGame:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		var p startPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		return game.StartGame{Countdown: p.Countdown}, nil

	case ActionNextQuestion:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		return game.Advance{}, nil

	case ActionToggleLock:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		return game.ToggleLock{}, nil

	case ActionPauseTimer:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		return game.PauseTimer{}, nil

	case ActionResumeTimer:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		return game.ResumeTimer{}, nil

	case ActionAlertMode:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		return game.AlertMode{}, nil

	case ActionKickPlayer:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		var p kickPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		return game.Kick{Player: p.Player, Ban: p.Ban}, nil

	case ActionGradeAnswers:
		if err := requireOrganizer(conn, f); err != nil {
			return nil, err
		}
		var p gradePayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		cmd := game.Grade{Distribution: p.Distribution}
		for _, pt := range p.Points {
			cmd.Points = append(cmd.Points, game.PlayerPoints{
				Name:   pt.Player,
				Points: decimal.NewFromFloat(pt.Points),
			})
		}
		return cmd, nil

	default:
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown event %q", f.Event))
	}
}

func unmarshal(f Frame, v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed %s payload", f.Event),
			errors.WithCause(err))
	}
	return nil
}

func requireOrganizer(conn *Conn, f Frame) error {
	if !conn.Organizer {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("%s requires the organizer connection", f.Event))
	}
	return nil
}
