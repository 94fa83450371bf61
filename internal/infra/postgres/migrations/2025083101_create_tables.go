package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

const createQuizzesSQL = `
CREATE TABLE IF NOT EXISTS quizzes (
    id   BIGINT PRIMARY KEY,
    data JSONB NOT NULL
)`

const createBattleResultsSQL = `
CREATE TABLE IF NOT EXISTS battle_results (
    battle_id        BIGINT NOT NULL,
    user_id          BIGINT NOT NULL,
    display_name     TEXT NOT NULL DEFAULT '',
    score            INTEGER NOT NULL DEFAULT 0,
    rank             INTEGER NOT NULL DEFAULT 0,
    tab_switch_count INTEGER NOT NULL DEFAULT 0,
    is_suspicious    BOOLEAN NOT NULL DEFAULT FALSE,
    finished_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (battle_id, user_id)
)`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.ExecContext(ctx, createQuizzesSQL); err != nil {
				return err
			}
			_, err := db.ExecContext(ctx, createBattleResultsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS battle_results`); err != nil {
				return err
			}
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS quizzes`)
			return err
		},
	)
}
