package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/liveq/internal/domain"
	"github.com/victornm/liveq/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

// Service is the result sink: it persists completed games for the
// post-game history screen.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB}

	c.EventBus.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return s.SaveResults(ctx, e.(domain.EventGameEnded).Results)
	})

	return s
}

// SaveResults inserts a finished game and its per-player standings in one
// transaction.
func (s *Service) SaveResults(ctx context.Context, res domain.GameResults) (err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate game ID: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insGameStmt = `
INSERT INTO games (game_id, room_id, quiz_title, player_count, best_score, ended_at)
VALUES ($1, $2, $3, $4, $5, $6);`
		insPlayerStmt = `
INSERT INTO game_players (game_id, name, points, bonuses, in_game)
VALUES ($1, $2, $3, $4, $5);`
	)

	best := decimal.Zero
	for _, p := range res.Players {
		if p.Points.GreaterThan(best) {
			best = p.Points
		}
	}

	_, err = tx.Exec(ctx, insGameStmt, id, res.RoomID, res.QuizTitle, len(res.Players), best, res.EndedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	for _, p := range res.Players {
		_, err = tx.Exec(ctx, insPlayerStmt, id, p.Name, p.Points, p.Bonuses, p.InGame)
		if err != nil {
			return fmt.Errorf("insert player %s: %w", p.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// GameRecord is one line of the history screen.
type GameRecord struct {
	GameID      string
	RoomID      string
	QuizTitle   string
	PlayerCount int
	BestScore   decimal.Decimal
	EndedAt     time.Time
}

// ListGames returns past games, most recent first.
func (s *Service) ListGames(ctx context.Context) ([]GameRecord, error) {
	const stmt = `
SELECT game_id, room_id, quiz_title, player_count, best_score, ended_at
FROM games
ORDER BY ended_at DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (GameRecord, error) {
		var rec GameRecord
		if err := r.Scan(&rec.GameID, &rec.RoomID, &rec.QuizTitle, &rec.PlayerCount, &rec.BestScore, &rec.EndedAt); err != nil {
			return GameRecord{}, err
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
