package game_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/game"
)

func TestPlayer_VerifyAnswer(t *testing.T) {
	t.Parallel()

	val := func(v float64) *float64 { return &v }

	tests := map[string]struct {
		question domain.Question
		answer   game.Answer
		want     bool
	}{
		"choice: exact match": {
			question: choiceQuestion(10, 1, 3),
			answer:   pick(1, 3),
			want:     true,
		},
		"choice: wrong option": {
			question: choiceQuestion(10, 1, 3),
			answer:   pick(0, 3),
			want:     false,
		},
		"choice: superset of correct set": {
			question: choiceQuestion(10, 1, 3),
			answer:   game.Answer{Selections: []bool{true, true, false}},
			want:     false,
		},
		"choice: nothing selected": {
			question: choiceQuestion(10, 1, 3),
			answer:   game.Answer{Selections: []bool{false, false, false}},
			want:     false,
		},
		"numeric: inside bounds": {
			question: numericQuestion(10, 5, 15),
			answer:   game.Answer{Value: val(15)},
			want:     true,
		},
		"numeric: outside bounds even within tolerance": {
			question: numericQuestion(10, 5, 15),
			answer:   game.Answer{Value: val(15.3)},
			want:     false,
		},
		"numeric: no value": {
			question: numericQuestion(10, 5, 15),
			answer:   game.Answer{},
			want:     false,
		},
		"open: never locally correct": {
			question: openQuestion(10),
			answer:   game.Answer{Text: "anything"},
			want:     false,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := makeGame(t, makeQuiz(tt.question), domain.ModeStandard)
			p, err := f.game.AddPlayer("alice", "conn-alice")
			require.NoError(t, err)

			p.ResetForNextRound(tt.question)
			p.Selections = tt.answer.Selections
			p.Value = tt.answer.Value
			p.Text = tt.answer.Text

			assert.Equal(t, tt.want, p.VerifyAnswer(tt.question))
		})
	}
}

func TestPlayer_ApplyScoreScalesWithBonus(t *testing.T) {
	t.Parallel()

	f := makeGame(t, makeQuiz(choiceQuestion(10, 0, 2)), domain.ModeStandard)
	p, err := f.game.AddPlayer("alice", "conn-alice")
	require.NoError(t, err)

	q := choiceQuestion(10, 0, 2)

	p.ApplyScore(q)
	require.True(t, p.Points.Equal(decimal.NewFromInt(10)))

	p.IsFirst = true
	p.ApplyScore(q)
	require.True(t, p.Points.Equal(decimal.NewFromInt(22)), "second round scaled by 1.2, got %s", p.Points)
}

func TestPlayer_ResetForNextRound(t *testing.T) {
	t.Parallel()

	f := makeGame(t, makeQuiz(choiceQuestion(10, 0, 2)), domain.ModeStandard)
	p, err := f.game.AddPlayer("alice", "conn-alice")
	require.NoError(t, err)

	v := 3.14
	p.Selections = []bool{true, true}
	p.Value = &v
	p.Text = "draft"
	p.Submitted = true
	p.IsFirst = true
	p.Points = decimal.NewFromInt(42)

	next := choiceQuestion(10, 0, 4)
	p.ResetForNextRound(next)

	assert.Equal(t, []bool{false, false, false, false}, p.Selections)
	assert.Nil(t, p.Value)
	assert.Empty(t, p.Text)
	assert.False(t, p.Submitted)
	assert.False(t, p.IsFirst)
	assert.True(t, p.Points.Equal(decimal.NewFromInt(42)), "points survive the round reset")
}
