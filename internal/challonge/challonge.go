// Package challonge is a client for the Challonge v1 tournament API.
// It covers the handful of endpoints the bot needs: tournament metadata,
// participants, matches, and the report/underway/finalize mutations.
package challonge

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DefaultBaseURL is the production Challonge API endpoint.
const DefaultBaseURL = "https://api.challonge.com/v1"

// Errors returned by client operations.
var (
	ErrInvalidURL       = errors.New("invalid challonge tournament url")
	ErrUnauthorized     = errors.New("invalid challonge api key")
	ErrAlreadyFinalized = errors.New("tournament already finalized")
)

// Match lifecycle states as reported by the API.
const (
	MatchStateOpen     = "open"
	MatchStateComplete = "complete"
)

// Tournament lifecycle states as reported by the API.
const (
	TournamentStatePending  = "pending"
	TournamentStateUnderway = "underway"
	TournamentStateEnded    = "ended"
)

var urlPattern = regexp.MustCompile(`(\w+)?\.?challonge\.com/([^/]+)`)

// ExtractID extracts the tournament identifier from a Challonge URL.
// Subdomain tournaments are addressed as "subdomain-name".
func ExtractID(url string) (string, error) {
	m := urlPattern.FindStringSubmatch(url)
	if m == nil || m[2] == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	if m[1] != "" {
		return m[1] + "-" + m[2], nil
	}
	return m[2], nil
}

// Tournament is the metadata record for one bracket.
type Tournament struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	State             string    `json:"state"`
	FullURL           string    `json:"full_challonge_url"`
	CreatedAt         time.Time `json:"created_at"`
	ParticipantsCount int       `json:"participants_count"`
	ProgressMeter     int       `json:"progress_meter"`
}

// Participant is one entrant. GroupPlayerIDs carries the alias ids
// Challonge assigns when accounts are linked through a group stage;
// the matches endpoint sometimes references those instead of ID.
type Participant struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Username       string  `json:"username"`
	GroupPlayerIDs []int64 `json:"group_player_ids"`
	FinalRank      *int    `json:"final_rank"`
}

// Match is the raw bracket pairing as returned by the API. Pointer
// fields are null until the bracket determines them.
type Match struct {
	ID         int64      `json:"id"`
	Player1ID  *int64     `json:"player1_id"`
	Player2ID  *int64     `json:"player2_id"`
	Round      int        `json:"round"`
	State      string     `json:"state"`
	UnderwayAt *time.Time `json:"underway_at"`
	WinnerID   *int64     `json:"winner_id"`
	LoserID    *int64     `json:"loser_id"`
	ScoresCSV  string     `json:"scores_csv"`
}
