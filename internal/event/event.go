package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	TournamentStarted   Type = "tournament.started"
	TournamentStopped   Type = "tournament.stopped"
	TournamentFinalized Type = "tournament.finalized"

	MatchReported Type = "match.reported"
	MatchUnderway Type = "match.underway"
)

// Event is one entry in the audit archive. AggregateID is the Challonge
// tournament identifier.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// TournamentStartedData is the payload for TournamentStarted events.
type TournamentStartedData struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	StartedBy string `json:"started_by"`
	Entrants  int    `json:"entrants"`
}

// MatchReportedData is the payload for MatchReported events.
type MatchReportedData struct {
	MatchID    int64  `json:"match_id"`
	Round      string `json:"round"`
	WinnerID   int64  `json:"winner_id"`
	ScoresCSV  string `json:"scores_csv"`
	ReportedBy string `json:"reported_by"`
}

// MatchUnderwayData is the payload for MatchUnderway events.
type MatchUnderwayData struct {
	MatchID int64 `json:"match_id"`
}

// TournamentFinalizedData is the payload for TournamentFinalized events.
type TournamentFinalizedData struct {
	Winner   string `json:"winner"`
	Entrants int    `json:"entrants"`
}

// TournamentStoppedData is the payload for TournamentStopped events.
type TournamentStoppedData struct {
	StoppedBy string `json:"stopped_by"`
}
