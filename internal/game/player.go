package game

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/liveq/internal/domain"
)

// firstAnswerMultiplier scales a question's points for the player holding
// the speed bonus when the round is scored.
var firstAnswerMultiplier = decimal.NewFromFloat(1.2)

// Answer is one submission: a selection mask for choice questions, a
// value for numeric questions, free text for open questions.
type Answer struct {
	Selections []bool
	Value      *float64
	Text       string
}

// Player holds one participant's scoring and interaction state. It is
// owned by a Game and mutated only under the Game's lock.
type Player struct {
	Name   string
	ConnID string

	Points    decimal.Decimal
	Bonuses   int
	IsFirst   bool
	Submitted bool
	InGame    bool

	Selections []bool
	Value      *float64
	Text       string
}

func newPlayer(name, connID string) *Player {
	return &Player{
		Name:   name,
		ConnID: connID,
		Points: decimal.Zero,
		InGame: true,
	}
}

// VerifyAnswer reports whether the player's stored answer is correct for
// the given question. Open-answer correctness is not locally computable
// and always reports false; the organizer grades those rounds.
func (p *Player) VerifyAnswer(q domain.Question) bool {
	switch q.Type {
	case domain.MultipleChoice:
		if len(p.Selections) != len(q.Choices) {
			return false
		}
		for i, c := range q.Choices {
			if p.Selections[i] != c.IsCorrect {
				return false
			}
		}
		return true

	case domain.NumericRange:
		// Tolerance is display metadata only; correctness is the bounds.
		return p.Value != nil && *p.Value >= q.LowerBound && *p.Value <= q.UpperBound

	default:
		return false
	}
}

// ApplyScore adds the question's point value to the player's total,
// scaled by the speed bonus when the player holds it. Correctness is the
// caller's decision.
func (p *Player) ApplyScore(q domain.Question) {
	pts := q.Points
	if p.IsFirst {
		pts = pts.Mul(firstAnswerMultiplier)
	}
	p.Points = p.Points.Add(pts)
}

// ResetForNextRound clears the per-round state, sizing the selection mask
// for the upcoming question.
func (p *Player) ResetForNextRound(q domain.Question) {
	p.Selections = make([]bool, len(q.Choices))
	p.Value = nil
	p.Text = ""
	p.Submitted = false
	p.IsFirst = false
}

func (p *Player) setAnswer(a Answer) {
	p.Selections = append([]bool(nil), a.Selections...)
	p.Value = a.Value
	p.Text = a.Text
}
