package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// QuizLoader loads quiz preview JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.QuizPreview, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizPreview{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizPreview{}, fmt.Errorf("load quiz: %w", err)
	}
	var preview domain.QuizPreview
	if err := json.Unmarshal(raw, &preview); err != nil {
		return domain.QuizPreview{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	preview.QuizID = quizID
	return preview, nil
}
