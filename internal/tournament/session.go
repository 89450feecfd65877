// Package tournament contains the match orchestration engine: the
// per-channel Session that tracks open matches, announcements, and
// report throttling, and the Manager that maps chat channels to
// sessions.
package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/discord-bracket-bot/internal/bracket"
	"github.com/jensholdgaard/discord-bracket-bot/internal/challonge"
	"github.com/jensholdgaard/discord-bracket-bot/internal/event"
	"github.com/jensholdgaard/discord-bracket-bot/internal/store"
)

// Errors returned by session operations.
var (
	ErrNotStarted     = errors.New("tournament has not been started yet")
	ErrEnded          = errors.New("tournament has already finished")
	ErrMalformedScore = errors.New("score must look like 0-2")
	ErrTiedScore      = errors.New("tied scores cannot be reported")
	ErrThrottled      = errors.New("a report for this match was just submitted")
	ErrNoActiveMatch  = errors.New("reporter has no open match")
)

// BracketService is the slice of the bracket host the session needs.
// *challonge.Client satisfies it.
type BracketService interface {
	Tournament(ctx context.Context) (*challonge.Tournament, error)
	Participants(ctx context.Context) ([]challonge.Participant, error)
	Matches(ctx context.Context) ([]challonge.Match, error)
	ReportMatch(ctx context.Context, matchID, winnerID int64, scoresCSV string) error
	MarkUnderway(ctx context.Context, matchID int64) error
	Finalize(ctx context.Context) error
}

// Roster resolves tournament display names against the chat platform.
type Roster interface {
	// Mention returns the mention string for a display name, or the
	// name unchanged when no matching member exists.
	Mention(displayName string) string
	// HasUser reports whether a member with this display name exists.
	HasUser(displayName string) bool
}

// State is the session lifecycle state.
type State string

const (
	StateActive     State = "active"
	StateFinalizing State = "finalizing"
	StateClosed     State = "closed"
)

// DefaultExclusionWindow is how long a player stays report-excluded
// after their opponent reports their match.
const DefaultExclusionWindow = 5 * time.Second

var scorePattern = regexp.MustCompile(`^(\d+)-(\d+)$`)

// Config identifies a session and tunes its behavior.
type Config struct {
	TournamentID string
	GuildID      string
	ChannelID    string
	OwnerID      string
	// ExclusionWindow overrides DefaultExclusionWindow when positive.
	ExclusionWindow time.Duration
}

// Placement is one row of the final standings.
type Placement struct {
	Rank    int
	Players []string
}

// Session runs one tournament for one chat channel. All state mutation
// happens under the session mutex; in particular the throttle check and
// the exclusion-set insert in Report are atomic with respect to each
// other, so two racing reports for the same match cannot both pass.
type Session struct {
	mu sync.Mutex

	cfg    Config
	svc    BracketService
	roster Roster

	info        *challonge.Tournament
	dir         *bracket.Directory
	playerCount int

	state    State
	open     []bracket.Match
	called   map[int64]struct{}
	excluded map[string]struct{}
	version  int

	events  event.Store
	results store.ResultRepository
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewSession creates a session for one bracket. Call Open before use.
func NewSession(cfg Config, svc BracketService, roster Roster, events event.Store, results store.ResultRepository, logger *slog.Logger, tp trace.TracerProvider) *Session {
	if cfg.ExclusionWindow <= 0 {
		cfg.ExclusionWindow = DefaultExclusionWindow
	}
	return &Session{
		cfg:      cfg,
		svc:      svc,
		roster:   roster,
		called:   make(map[int64]struct{}),
		excluded: make(map[string]struct{}),
		events:   events,
		results:  results,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/discord-bracket-bot/internal/tournament"),
	}
}

// Open validates the remote bracket and builds the participant
// directory. The participant count is cached here so round labels never
// shift underneath a running bracket.
func (s *Session) Open(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Session.Open",
		trace.WithAttributes(attribute.String("tournament.id", s.cfg.TournamentID)),
	)
	defer span.End()

	info, err := s.svc.Tournament(ctx)
	if err != nil {
		return fmt.Errorf("validating tournament: %w", err)
	}
	switch info.State {
	case challonge.TournamentStatePending:
		return ErrNotStarted
	case challonge.TournamentStateEnded:
		return ErrEnded
	}

	participants, err := s.svc.Participants(ctx)
	if err != nil {
		return fmt.Errorf("fetching participants: %w", err)
	}
	dir := bracket.NewDirectory(participants)

	s.mu.Lock()
	s.info = info
	s.dir = dir
	s.playerCount = dir.Len()
	s.state = StateActive
	s.mu.Unlock()

	data, _ := json.Marshal(event.TournamentStartedData{
		Name:      info.Name,
		URL:       info.FullURL,
		GuildID:   s.cfg.GuildID,
		ChannelID: s.cfg.ChannelID,
		StartedBy: s.cfg.OwnerID,
		Entrants:  dir.Len(),
	})
	s.recordEvent(ctx, event.TournamentStarted, data)

	s.logger.InfoContext(ctx, "tournament session opened",
		slog.String("tournament", info.Name),
		slog.String("channel_id", s.cfg.ChannelID),
		slog.Int("entrants", dir.Len()),
	)
	return nil
}

// Name returns the tournament's display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return s.cfg.TournamentID
	}
	return strings.TrimSpace(s.info.Name)
}

// URL returns the tournament's public bracket URL.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return ""
	}
	return s.info.FullURL
}

// OwnerID returns the chat identity that started the session.
func (s *Session) OwnerID() string { return s.cfg.OwnerID }

// State returns the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PlayerCount returns the participant count cached at Open.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerCount
}

// Refresh fetches the current match list and replaces the open set
// wholesale. The called and exclusion sets are untouched.
func (s *Session) Refresh(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Session.Refresh")
	defer span.End()

	raw, err := s.svc.Matches(ctx)
	if err != nil {
		return fmt.Errorf("fetching matches: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	open := make([]bracket.Match, 0, len(raw))
	for _, rm := range raw {
		if rm.State != challonge.MatchStateOpen {
			continue
		}
		m, ok, err := bracket.NewMatch(rm, s.dir, s.playerCount)
		if err != nil {
			return fmt.Errorf("deriving match %d: %w", rm.ID, err)
		}
		if ok {
			open = append(open, m)
		}
	}
	s.open = open
	return nil
}

// OpenMatches returns a copy of the current open match set.
func (s *Session) OpenMatches() []bracket.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]bracket.Match, len(s.open))
	copy(matches, s.open)
	return matches
}

// Announce formats the open matches for the channel. Players are
// mentioned only the first time their match is called; later
// announcements reuse the plain names. done is true when there are no
// open matches left, which signals tournament completion to the caller.
func (s *Session) Announce() (lines []string, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.open) == 0 {
		return nil, true
	}

	lines = make([]string, 0, len(s.open))
	for _, m := range s.open {
		player1, player2 := m.Player1, m.Player2
		if _, seen := s.called[m.ID]; !seen {
			player1 = s.roster.Mention(player1)
			player2 = s.roster.Mention(player2)
			s.called[m.ID] = struct{}{}
		}
		line := fmt.Sprintf("**%s**: %s vs %s", m.Round, player1, player2)
		if m.Underway {
			line += " (Playing)"
		}
		lines = append(lines, line)
	}
	return lines, false
}

// FindMatch returns the open match that has the given display name in
// either player slot, compared case-insensitively. A participant is in
// at most one open match at a time, so the first hit is the match.
func (s *Session) FindMatch(displayName string) (bracket.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findMatchLocked(displayName)
}

func (s *Session) findMatchLocked(displayName string) (bracket.Match, bool) {
	for _, m := range s.open {
		if strings.EqualFold(m.Player1, displayName) || strings.EqualFold(m.Player2, displayName) {
			return m, true
		}
	}
	return bracket.Match{}, false
}

// MarkUnderway flags a match as being played when both names resolve to
// the same open match. Anything else is a silent no-op: this is a
// courtesy triggered by incidental chat content, not a command.
func (s *Session) MarkUnderway(ctx context.Context, nameA, nameB string) error {
	ctx, span := s.tracer.Start(ctx, "Session.MarkUnderway")
	defer span.End()

	s.mu.Lock()
	matchA, okA := s.findMatchLocked(nameA)
	matchB, okB := s.findMatchLocked(nameB)
	s.mu.Unlock()

	if !okA || !okB || matchA.ID != matchB.ID {
		return nil
	}

	if err := s.svc.MarkUnderway(ctx, matchA.ID); err != nil {
		return fmt.Errorf("marking underway: %w", err)
	}

	data, _ := json.Marshal(event.MatchUnderwayData{MatchID: matchA.ID})
	s.recordEvent(ctx, event.MatchUnderway, data)

	s.logger.InfoContext(ctx, "match marked underway",
		slog.Int64("match_id", matchA.ID),
		slog.String("round", matchA.Round),
	)
	return nil
}

// Report submits a score on behalf of reporter. Scores arrive as the
// reporter sees them ("their score first"); the bracket service always
// receives player1's score first, so reports from player2 are reversed
// by reconstructing the string from the parsed integers.
//
// The reporter's opponent enters the exclusion set before the service
// call goes out, so the losing side of a simultaneous double report
// observes ErrThrottled instead of double-reporting.
func (s *Session) Report(ctx context.Context, reporter, scores string) error {
	ctx, span := s.tracer.Start(ctx, "Session.Report",
		trace.WithAttributes(
			attribute.String("reporter", reporter),
			attribute.String("scores", scores),
		),
	)
	defer span.End()

	parts := scorePattern.FindStringSubmatch(strings.TrimSpace(scores))
	if parts == nil {
		return ErrMalformedScore
	}
	own, _ := strconv.Atoi(parts[1])
	opp, _ := strconv.Atoi(parts[2])
	if own == opp {
		return ErrTiedScore
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrEnded
	}
	if _, throttled := s.excluded[strings.ToLower(reporter)]; throttled {
		s.mu.Unlock()
		return ErrThrottled
	}
	match, ok := s.findMatchLocked(reporter)
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveMatch
	}

	player1Win := own > opp
	scoresCSV := fmt.Sprintf("%d-%d", own, opp)
	other := match.Player2
	if strings.EqualFold(reporter, match.Player2) {
		scoresCSV = fmt.Sprintf("%d-%d", opp, own)
		player1Win = !player1Win
		other = match.Player1
	}
	winnerID := match.Player2ID
	if player1Win {
		winnerID = match.Player1ID
	}

	excludedName := strings.ToLower(other)
	s.excluded[excludedName] = struct{}{}
	s.mu.Unlock()

	time.AfterFunc(s.cfg.ExclusionWindow, func() {
		s.mu.Lock()
		delete(s.excluded, excludedName)
		s.mu.Unlock()
	})

	if err := s.svc.ReportMatch(ctx, match.ID, winnerID, scoresCSV); err != nil {
		return fmt.Errorf("reporting match: %w", err)
	}

	s.mu.Lock()
	delete(s.called, match.ID)
	s.mu.Unlock()

	data, _ := json.Marshal(event.MatchReportedData{
		MatchID:    match.ID,
		Round:      match.Round,
		WinnerID:   winnerID,
		ScoresCSV:  scoresCSV,
		ReportedBy: reporter,
	})
	s.recordEvent(ctx, event.MatchReported, data)

	s.logger.InfoContext(ctx, "match reported",
		slog.Int64("match_id", match.ID),
		slog.String("round", match.Round),
		slog.String("scores", scoresCSV),
		slog.String("reporter", reporter),
	)
	return nil
}

// Finalize closes out the tournament on the bracket service. A bracket
// that is already finalized counts as success.
func (s *Session) Finalize(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Session.Finalize")
	defer span.End()

	s.mu.Lock()
	s.state = StateFinalizing
	s.mu.Unlock()

	err := s.svc.Finalize(ctx)
	if err != nil && !errors.Is(err, challonge.ErrAlreadyFinalized) {
		s.mu.Lock()
		s.state = StateActive
		s.mu.Unlock()
		return fmt.Errorf("finalizing: %w", err)
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "tournament finalized", slog.String("tournament", s.Name()))
	return nil
}

// Standings fetches the final placements, best rank first, covering at
// least the top eight players (ties share a rank).
func (s *Session) Standings(ctx context.Context) ([]Placement, error) {
	ctx, span := s.tracer.Start(ctx, "Session.Standings")
	defer span.End()

	participants, err := s.svc.Participants(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching standings: %w", err)
	}

	s.mu.Lock()
	dir := s.dir
	s.mu.Unlock()

	byRank := make(map[int][]string)
	for _, p := range participants {
		if p.FinalRank == nil {
			continue
		}
		name, ok := dir.Resolve(p.ID)
		if !ok {
			continue
		}
		byRank[*p.FinalRank] = append(byRank[*p.FinalRank], name)
	}

	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	var placements []Placement
	covered := 0
	for _, r := range ranks {
		if covered >= 8 {
			break
		}
		placements = append(placements, Placement{Rank: r, Players: byRank[r]})
		covered += len(byRank[r])
	}
	return placements, nil
}

// ResultLines formats the closing announcement, mentioning placed
// players that are present on the chat platform.
func (s *Session) ResultLines(standings []Placement) []string {
	if len(standings) == 0 || len(standings[0].Players) == 0 {
		return nil
	}

	winner := s.roster.Mention(standings[0].Players[0])
	lines := []string{
		fmt.Sprintf("Congrats to the winner of %s: **%s**!!", s.Name(), winner),
		fmt.Sprintf("We had %d entrants!", s.PlayerCount()),
	}
	for _, p := range standings {
		mentions := make([]string, len(p.Players))
		for i, name := range p.Players {
			mentions[i] = s.roster.Mention(name)
		}
		lines = append(lines, fmt.Sprintf("%d. %s", p.Rank, strings.Join(mentions, " / ")))
	}
	return lines
}

// ArchiveResult records the finished tournament in the results archive
// and emits the finalized event. Failures are logged, never surfaced.
func (s *Session) ArchiveResult(ctx context.Context, standings []Placement) {
	winner := ""
	if len(standings) > 0 && len(standings[0].Players) > 0 {
		winner = standings[0].Players[0]
	}

	data, _ := json.Marshal(event.TournamentFinalizedData{
		Winner:   winner,
		Entrants: s.PlayerCount(),
	})
	s.recordEvent(ctx, event.TournamentFinalized, data)

	if s.results == nil {
		return
	}
	rec := &store.TournamentRecord{
		ID:        s.cfg.TournamentID,
		Name:      s.Name(),
		URL:       s.URL(),
		Winner:    winner,
		Entrants:  s.PlayerCount(),
		GuildID:   s.cfg.GuildID,
		ChannelID: s.cfg.ChannelID,
	}
	if err := s.results.Record(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to archive tournament result", slog.Any("error", err))
	}
}

// Progress returns how far along the tournament is, in percent.
func (s *Session) Progress(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Session.Progress")
	defer span.End()

	info, err := s.svc.Tournament(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching progress: %w", err)
	}
	return info.ProgressMeter, nil
}

// MissingTags returns the participants without a matching member on the
// chat platform.
func (s *Session) MissingTags() []string {
	s.mu.Lock()
	names := s.dir.Names()
	s.mu.Unlock()

	var missing []string
	for _, name := range names {
		if !s.roster.HasUser(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// RefreshDirectory re-fetches the participant list and rebuilds the
// name mappings. The cached player count is deliberately left alone so
// round labels stay stable.
func (s *Session) RefreshDirectory(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Session.RefreshDirectory")
	defer span.End()

	participants, err := s.svc.Participants(ctx)
	if err != nil {
		return fmt.Errorf("refreshing participants: %w", err)
	}

	s.mu.Lock()
	s.dir = bracket.NewDirectory(participants)
	s.mu.Unlock()
	return nil
}

// Close marks the session closed and records the stop event. Called
// when the organizer stops the tournament without finalizing.
func (s *Session) Close(ctx context.Context, stoppedBy string) {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	data, _ := json.Marshal(event.TournamentStoppedData{StoppedBy: stoppedBy})
	s.recordEvent(ctx, event.TournamentStopped, data)
}

func (s *Session) recordEvent(ctx context.Context, t event.Type, data json.RawMessage) {
	if s.events == nil {
		return
	}
	s.mu.Lock()
	s.version++
	v := s.version
	s.mu.Unlock()

	e := event.Event{
		AggregateID: s.cfg.TournamentID,
		Type:        t,
		Data:        data,
		Version:     v,
	}
	if err := s.events.Append(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
