package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/discord-bracket-bot/internal/store"
)

// ResultRepo implements store.ResultRepository with sqlx.
type ResultRepo struct {
	db *sqlx.DB
}

// NewResultRepo returns a new ResultRepo.
func NewResultRepo(db *sqlx.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

func (r *ResultRepo) Record(ctx context.Context, rec *store.TournamentRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	query := `INSERT INTO tournaments (id, name, url, winner, entrants, guild_id, channel_id, finished_at)
	           VALUES (:id, :name, :url, :winner, :entrants, :guild_id, :channel_id, :finished_at)
	           ON CONFLICT (id) DO UPDATE
	           SET winner = EXCLUDED.winner, finished_at = EXCLUDED.finished_at`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("recording tournament %s: %w", rec.ID, err)
	}
	return nil
}

func (r *ResultRepo) GetByID(ctx context.Context, id string) (*store.TournamentRecord, error) {
	var rec store.TournamentRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting tournament by id: %w", err)
	}
	return &rec, nil
}

func (r *ResultRepo) List(ctx context.Context) ([]store.TournamentRecord, error) {
	var records []store.TournamentRecord
	err := r.db.SelectContext(ctx, &records, `SELECT * FROM tournaments ORDER BY finished_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing tournaments: %w", err)
	}
	return records, nil
}
