package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/discord-bracket-bot/internal/challonge"
	"github.com/jensholdgaard/discord-bracket-bot/internal/config"
	"github.com/jensholdgaard/discord-bracket-bot/internal/store"
	"github.com/jensholdgaard/discord-bracket-bot/internal/tournament"
)

// organizerRole is the guild role that grants tournament admin rights.
const organizerRole = "TO"

// netplayCodePattern matches lobby codes players paste into chat when
// they start playing, e.g. "1a2b3c4d".
var netplayCodePattern = regexp.MustCompile(`\b[a-f0-9]{8}\b`)

// Handlers process Discord interactions and messages.
type Handlers struct {
	registry  *tournament.Manager
	repos     store.Repositories
	challonge config.ChallongeConfig
	prompter  *Prompter
	logger    *slog.Logger
	tracer    trace.Tracer
	tp        trace.TracerProvider
}

// NewHandlers creates new command handlers.
func NewHandlers(registry *tournament.Manager, repos store.Repositories, challongeCfg config.ChallongeConfig, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		registry:  registry,
		repos:     repos,
		challonge: challongeCfg,
		prompter:  NewPrompter(),
		logger:    logger,
		tracer:    tp.Tracer("github.com/jensholdgaard/discord-bracket-bot/internal/bot/commands"),
		tp:        tp,
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "to",
			Description: "Run a Challonge bracket from Discord",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Start running a tournament in this channel",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "url",
							Description: "Challonge bracket URL",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stop",
					Description: "Stop the tournament in this channel",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "matches",
					Description: "Show the matches that can be played right now",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "report",
					Description: "Report your match, your score first",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "score",
							Description: "Score with your games first, e.g. 0-2",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show how far along the tournament is",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "results",
					Description: "Show the top placements",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "update-tags",
					Description: "Re-fetch participant tags from the bracket",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "help",
					Description: "Show what the bot can do",
				},
			},
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.ApplicationCommandData().Name != "to" {
		return
	}
	sub := i.ApplicationCommandData().Options[0]

	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("subcommand", sub.Name)),
	)
	defer span.End()

	if i.Member == nil {
		respond(s, i, "Run this in a server channel.")
		return
	}

	switch sub.Name {
	case "start":
		h.handleStart(ctx, s, i, sub.Options[0].StringValue())
	case "stop":
		h.handleStop(ctx, s, i)
	case "matches":
		h.handleMatches(ctx, s, i)
	case "report":
		h.handleReport(ctx, s, i, sub.Options[0].StringValue())
	case "status":
		h.handleStatus(ctx, s, i)
	case "results":
		h.handleResults(ctx, s, i)
	case "update-tags":
		h.handleUpdateTags(ctx, s, i)
	case "help":
		h.handleHelp(s, i)
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) key(i *discordgo.InteractionCreate) tournament.Key {
	return tournament.Key{GuildID: i.GuildID, ChannelID: i.ChannelID}
}

func (h *Handlers) session(i *discordgo.InteractionCreate) (*tournament.Session, bool) {
	return h.registry.Get(h.key(i))
}

func (h *Handlers) handleStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, url string) {
	if !isOrganizer(s, i) {
		respond(s, i, "Only a TO can start a tournament.")
		return
	}
	if _, running := h.session(i); running {
		respond(s, i, "A tournament is already in progress in this channel.")
		return
	}

	tournamentID, err := challonge.ExtractID(url)
	if err != nil {
		respond(s, i, "That doesn't look like a Challonge URL.")
		return
	}

	// Starting can involve a DM round trip for the API key, so the
	// interaction is acknowledged up front.
	deferRespond(s, i)
	ownerID := i.Member.User.ID

	apiKey := h.challonge.APIKey
	if apiKey == "" {
		followUp(s, i, "Check your DMs, I need your Challonge API key.")
		apiKey, err = h.prompter.AskAPIKey(ctx, s, ownerID)
		if err != nil || apiKey == "" {
			followUp(s, i, "Can't run the bracket without an API key.")
			return
		}
	}

	client := challonge.NewClient(h.challonge.BaseURL, apiKey, tournamentID, h.tp)
	roster := NewGuildRoster(s, i.GuildID)
	session := tournament.NewSession(tournament.Config{
		TournamentID: tournamentID,
		GuildID:      i.GuildID,
		ChannelID:    i.ChannelID,
		OwnerID:      ownerID,
	}, client, roster, h.repos.Events, h.repos.Results, h.logger, h.tp)

	if err := session.Open(ctx); err != nil {
		followUp(s, i, startErrorMessage(err))
		return
	}

	if missing := session.MissingTags(); len(missing) > 0 {
		dm, dmErr := s.UserChannelCreate(ownerID)
		if dmErr == nil {
			msg := "These entrants don't match anyone in the server:\n" + strings.Join(missing, "\n")
			_, _ = s.ChannelMessageSend(dm.ID, msg)
			if !h.prompter.Confirm(ctx, s, ownerID, dm.ID, "Start anyway?") {
				followUp(s, i, "Start cancelled.")
				return
			}
		}
	}

	if err := h.registry.Add(ctx, h.key(i), session); err != nil {
		followUp(s, i, "A tournament is already in progress in this channel.")
		return
	}
	h.updatePresence(s)

	msg, err := s.ChannelMessageSend(i.ChannelID, fmt.Sprintf(
		"Starting **%s**! Bracket: %s\nReport your matches with `/to report`, your score first.",
		session.Name(), session.URL(),
	))
	if err == nil {
		if pinErr := s.ChannelMessagePin(i.ChannelID, msg.ID); pinErr != nil {
			h.logger.WarnContext(ctx, "could not pin start message", slog.Any("error", pinErr))
		}
	}

	followUp(s, i, fmt.Sprintf("**%s** is live with %d entrants.", session.Name(), session.PlayerCount()))
	h.announceMatches(ctx, s, i.ChannelID, h.key(i), session)
}

func startErrorMessage(err error) string {
	switch {
	case errors.Is(err, tournament.ErrNotStarted):
		return "The tournament hasn't been started on Challonge yet. Start it there first."
	case errors.Is(err, tournament.ErrEnded):
		return "That tournament has already finished."
	case errors.Is(err, challonge.ErrUnauthorized):
		return "Challonge rejected that API key."
	default:
		return fmt.Sprintf("Couldn't open the tournament: %s", err)
	}
}

func (h *Handlers) handleStop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i)
	if !ok {
		respond(s, i, "No tournament is running in this channel.")
		return
	}
	if !isOrganizer(s, i) && i.Member.User.ID != session.OwnerID() {
		respond(s, i, "Only a TO can stop the tournament.")
		return
	}

	session.Close(ctx, i.Member.User.ID)
	h.registry.Remove(h.key(i))
	h.updatePresence(s)
	respond(s, i, "Goodbye 😞")
}

func (h *Handlers) handleMatches(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i)
	if !ok {
		respond(s, i, "No tournament is running in this channel.")
		return
	}
	deferRespond(s, i)

	if err := session.Refresh(ctx); err != nil {
		followUp(s, i, fmt.Sprintf("Couldn't fetch matches: %s", err))
		return
	}
	lines, done := session.Announce()
	if done {
		followUp(s, i, "No open matches.")
		h.concludeTournament(ctx, s, i.ChannelID, h.key(i), session)
		return
	}
	followUp(s, i, strings.Join(lines, "\n"))
}

func (h *Handlers) handleReport(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, score string) {
	session, ok := h.session(i)
	if !ok {
		respond(s, i, "No tournament is running in this channel.")
		return
	}
	deferRespond(s, i)

	reporter := displayName(i.Member)
	if err := session.Refresh(ctx); err != nil {
		followUp(s, i, fmt.Sprintf("Couldn't fetch matches: %s", err))
		return
	}

	if err := session.Report(ctx, reporter, score); err != nil {
		switch {
		case errors.Is(err, tournament.ErrMalformedScore):
			followUp(s, i, "Invalid report. Should be `/to report 0-2`")
		case errors.Is(err, tournament.ErrTiedScore):
			followUp(s, i, "No ties allowed.")
		case errors.Is(err, tournament.ErrThrottled):
			followUp(s, i, "Ignoring potentially duplicate report. Try again in a couple seconds if this is incorrect.")
		case errors.Is(err, tournament.ErrNoActiveMatch):
			followUp(s, i, fmt.Sprintf("%s not found in current matches", reporter))
		default:
			followUp(s, i, fmt.Sprintf("Couldn't report the match: %s", err))
		}
		return
	}
	followUp(s, i, "Got it. 👍")

	h.announceMatches(ctx, s, i.ChannelID, h.key(i), session)
}

func (h *Handlers) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i)
	if !ok {
		respond(s, i, "No tournament is running in this channel.")
		return
	}
	deferRespond(s, i)

	pct, err := session.Progress(ctx)
	if err != nil {
		followUp(s, i, fmt.Sprintf("Couldn't fetch the tournament: %s", err))
		return
	}
	followUp(s, i, fmt.Sprintf("**%s** is %d%% complete.", session.Name(), pct))
}

func (h *Handlers) handleResults(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i)
	if !ok {
		respond(s, i, "No tournament is running in this channel.")
		return
	}
	deferRespond(s, i)

	standings, err := session.Standings(ctx)
	if err != nil {
		followUp(s, i, fmt.Sprintf("Couldn't fetch standings: %s", err))
		return
	}
	lines := session.ResultLines(standings)
	if len(lines) == 0 {
		followUp(s, i, "No placements yet.")
		return
	}
	followUp(s, i, strings.Join(lines, "\n"))
}

func (h *Handlers) handleUpdateTags(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i)
	if !ok {
		respond(s, i, "No tournament is running in this channel.")
		return
	}
	deferRespond(s, i)

	if err := session.RefreshDirectory(ctx); err != nil {
		followUp(s, i, fmt.Sprintf("Couldn't refresh tags: %s", err))
		return
	}
	followUp(s, i, "Tags updated.")
}

func (h *Handlers) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respond(s, i, strings.Join([]string{
		"**/to start <url>** — run a Challonge bracket in this channel (TO only)",
		"**/to report <score>** — report your match, your score first (e.g. `0-2`)",
		"**/to matches** — show the matches that can be played right now",
		"**/to status** — show bracket progress",
		"**/to results** — show the top placements",
		"**/to update-tags** — re-fetch participant tags",
		"**/to stop** — stop the tournament (TO only)",
		"Say `!bracket` for the bracket link.",
	}, "\n"))
}

// announceMatches posts the current open matches and drives the
// end-of-tournament flow when the bracket is out of matches.
func (h *Handlers) announceMatches(ctx context.Context, s *discordgo.Session, channelID string, key tournament.Key, session *tournament.Session) {
	if err := session.Refresh(ctx); err != nil {
		h.logger.ErrorContext(ctx, "failed to refresh matches", slog.Any("error", err))
		return
	}
	lines, done := session.Announce()
	if done {
		h.concludeTournament(ctx, s, channelID, key, session)
		return
	}
	if _, err := s.ChannelMessageSend(channelID, strings.Join(lines, "\n")); err != nil {
		h.logger.ErrorContext(ctx, "failed to announce matches", slog.Any("error", err))
	}
}

// concludeTournament asks the owner to finalize and, on yes, closes the
// bracket, posts the results, and archives them.
func (h *Handlers) concludeTournament(ctx context.Context, s *discordgo.Session, channelID string, key tournament.Key, session *tournament.Session) {
	question := fmt.Sprintf("%s is completed. Finalize?", session.Name())
	if !h.prompter.Confirm(ctx, s, session.OwnerID(), channelID, question) {
		return
	}

	if err := session.Finalize(ctx); err != nil {
		_, _ = s.ChannelMessageSend(channelID, fmt.Sprintf("Couldn't finalize: %s", err))
		return
	}

	standings, err := session.Standings(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to fetch final standings", slog.Any("error", err))
	} else if lines := session.ResultLines(standings); len(lines) > 0 {
		_, _ = s.ChannelMessageSend(channelID, strings.Join(lines, "\n"))
	}
	session.ArchiveResult(ctx, standings)

	h.registry.Remove(key)
	h.updatePresence(s)
}

// MessageCreate watches channel chatter for the bracket shortcut,
// prompt replies, and netplay codes.
func (h *Handlers) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if h.prompter.HandleMessage(m) {
		return
	}

	session, ok := h.registry.Get(tournament.Key{GuildID: m.GuildID, ChannelID: m.ChannelID})
	if !ok {
		return
	}

	if strings.EqualFold(strings.TrimSpace(m.Content), "!bracket") {
		_, _ = s.ChannelMessageSend(m.ChannelID, session.URL())
		return
	}

	// A lobby code next to a single mention means two players just
	// started playing. Mark their match underway, quietly.
	if len(m.Mentions) == 1 && netplayCodePattern.MatchString(m.Content) {
		ctx, span := h.tracer.Start(context.Background(), "MessageCreate.netplay")
		defer span.End()

		author := memberName(s, m.GuildID, m.Author)
		opponent := memberName(s, m.GuildID, m.Mentions[0])
		if err := session.MarkUnderway(ctx, author, opponent); err != nil {
			h.logger.WarnContext(ctx, "failed to mark match underway", slog.Any("error", err))
		}
	}
}

func (h *Handlers) updatePresence(s *discordgo.Session) {
	if h.registry.Len() == 0 {
		_ = s.UpdateGameStatus(0, "")
		return
	}
	_ = s.UpdateGameStatus(0, "/to help")
}

// isOrganizer reports whether the member may run admin commands: the
// guild owner, an administrator, or anyone with the TO role.
func isOrganizer(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		return false
	}
	if guild.OwnerID == i.Member.User.ID {
		return true
	}
	for _, roleID := range i.Member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID && role.Name == organizerRole {
				return true
			}
		}
	}
	return false
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.User.Username
}

func memberName(s *discordgo.Session, guildID string, u *discordgo.User) string {
	if m, err := s.State.Member(guildID, u.ID); err == nil && m.Nick != "" {
		return m.Nick
	}
	return u.Username
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}

func deferRespond(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_, _ = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: msg,
	})
}
