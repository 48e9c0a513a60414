package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType tags a question with how its answers are verified.
type QuestionType string

const (
	// MultipleChoice questions are correct iff the selected options
	// exactly match the correct options.
	MultipleChoice QuestionType = "choice"
	// NumericRange questions are correct iff the submitted value falls
	// within the question's bounds.
	NumericRange QuestionType = "numeric"
	// OpenAnswer questions are graded externally by the organizer.
	OpenAnswer QuestionType = "open"
)

// GameMode selects how a session advances between rounds.
type GameMode string

const (
	// ModeStandard waits for the organizer to confirm each advance.
	ModeStandard GameMode = "standard"
	// ModeRandom auto-advances on timer expiry; the creator plays and
	// scores like every other participant.
	ModeRandom GameMode = "random"
)

// Quiz is the immutable question catalog a session is created from.
// It is shared read-only across every session derived from it.
type Quiz struct {
	QuizID    string
	Title     string
	Duration  int // default seconds per question
	Questions []Question
}

type Question struct {
	QuestionID string
	Text       string
	Type       QuestionType
	Points     decimal.Decimal

	// MultipleChoice only.
	Choices []Choice

	// NumericRange only. Tolerance is carried for display; it does not
	// participate in correctness.
	LowerBound float64
	UpperBound float64
	Tolerance  float64
}

type Choice struct {
	Text      string
	IsCorrect bool
}

// CorrectSelections returns the correct-answer mask for a choice question.
func (q Question) CorrectSelections() []bool {
	sel := make([]bool, len(q.Choices))
	for i, c := range q.Choices {
		sel[i] = c.IsCorrect
	}
	return sel
}

// PlayerResult is one participant's final line on the results screen.
type PlayerResult struct {
	Name    string
	Points  decimal.Decimal
	Bonuses int
	InGame  bool
}

// GameResults pairs the final standings with the question list and the
// accumulated per-question choice histograms, for persistence/display.
type GameResults struct {
	RoomID     string
	QuizTitle  string
	Players    []PlayerResult
	Questions  []Question
	Histograms [][]int
	EndedAt    time.Time
}

// Standings is a room's live point ranking, sorted descending by points.
type Standings struct {
	RoomID  string
	Entries []StandingsEntry
}

type StandingsEntry struct {
	Name   string
	Points float64
}
