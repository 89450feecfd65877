package bracket

import (
	"fmt"

	"github.com/jensholdgaard/discord-bracket-bot/internal/challonge"
)

// Match is the application-level view of one bracket pairing.
type Match struct {
	ID        int64
	Player1   string
	Player2   string
	Player1ID int64
	Player2ID int64
	Round     string
	State     string
	Underway  bool
	Winner    string
	Loser     string
}

// NewMatch derives a Match from raw bracket data. The boolean is false
// when either player slot is still undetermined (bye or pending feed-in),
// in which case the match carries no useful information yet.
//
// playerCount must be the participant count cached at session start so
// round labels stay stable even if the directory is refreshed.
func NewMatch(raw challonge.Match, dir *Directory, playerCount int) (Match, bool, error) {
	if raw.Player1ID == nil || raw.Player2ID == nil {
		return Match{}, false, nil
	}

	round, err := RoundName(raw.Round, playerCount)
	if err != nil {
		return Match{}, false, fmt.Errorf("naming round %d: %w", raw.Round, err)
	}

	m := Match{
		ID:        raw.ID,
		Player1:   resolveOrPlaceholder(dir, *raw.Player1ID),
		Player2:   resolveOrPlaceholder(dir, *raw.Player2ID),
		Player1ID: *raw.Player1ID,
		Player2ID: *raw.Player2ID,
		Round:     round,
		State:     raw.State,
		Underway:  raw.UnderwayAt != nil,
	}

	if raw.WinnerID != nil && raw.LoserID != nil {
		m.Winner = resolveOrPlaceholder(dir, *raw.WinnerID)
		m.Loser = resolveOrPlaceholder(dir, *raw.LoserID)
	}
	return m, true, nil
}

func resolveOrPlaceholder(dir *Directory, id int64) string {
	if name, ok := dir.Resolve(id); ok {
		return name
	}
	return placeholderName
}
