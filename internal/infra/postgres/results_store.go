package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// ResultsStore persists the final leaderboard of completed battles.
type ResultsStore struct {
	pool *pgxpool.Pool
}

func NewResultsStore(pool *pgxpool.Pool) *ResultsStore {
	return &ResultsStore{pool: pool}
}

// SaveResults writes one row per participant. Re-saving the same battle
// overwrites earlier rows, so a retried completion broadcast is harmless.
func (s *ResultsStore) SaveResults(ctx context.Context, session domain.BattleSession) error {
	finishedAt := time.Now()
	for rank, p := range session.Participants {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO battle_results (battle_id, user_id, display_name, score, rank, tab_switch_count, is_suspicious, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (battle_id, user_id) DO UPDATE
			SET score=EXCLUDED.score, rank=EXCLUDED.rank,
			    tab_switch_count=EXCLUDED.tab_switch_count,
			    is_suspicious=EXCLUDED.is_suspicious, finished_at=EXCLUDED.finished_at`,
			session.ID, p.UserID, p.DisplayName, p.Score, rank+1, p.TabSwitchCount, p.IsSuspicious, finishedAt)
		if err != nil {
			return fmt.Errorf("save battle result: %w", err)
		}
	}
	return nil
}

// Results reads back the stored leaderboard for a battle, best rank first.
func (s *ResultsStore) Results(ctx context.Context, battleID int64) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, score, tab_switch_count, is_suspicious
		FROM battle_results WHERE battle_id=$1 ORDER BY rank`, battleID)
	if err != nil {
		return nil, fmt.Errorf("load battle results: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Score, &p.TabSwitchCount, &p.IsSuspicious); err != nil {
			return nil, fmt.Errorf("scan battle result: %w", err)
		}
		p.IsCompleted = true
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
