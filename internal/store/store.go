package store

import (
	"context"
	"time"
)

// TournamentRecord is one finished tournament in the results archive.
type TournamentRecord struct {
	ID         string    `db:"id"` // challonge tournament id
	Name       string    `db:"name"`
	URL        string    `db:"url"`
	Winner     string    `db:"winner"`
	Entrants   int       `db:"entrants"`
	GuildID    string    `db:"guild_id"`
	ChannelID  string    `db:"channel_id"`
	FinishedAt time.Time `db:"finished_at"`
}

// ResultRepository defines results-archive persistence operations.
type ResultRepository interface {
	Record(ctx context.Context, r *TournamentRecord) error
	GetByID(ctx context.Context, id string) (*TournamentRecord, error)
	List(ctx context.Context) ([]TournamentRecord, error)
}
