package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// GuildRoster resolves bracket display names against the cached member
// list of one guild. It satisfies tournament.Roster.
type GuildRoster struct {
	session *discordgo.Session
	guildID string
}

// NewGuildRoster creates a roster backed by the session state cache.
// The GuildMembers intent must be enabled for the cache to fill.
func NewGuildRoster(session *discordgo.Session, guildID string) *GuildRoster {
	return &GuildRoster{session: session, guildID: guildID}
}

func (r *GuildRoster) member(displayName string) *discordgo.Member {
	guild, err := r.session.State.Guild(r.guildID)
	if err != nil {
		return nil
	}
	for _, m := range guild.Members {
		name := m.Nick
		if name == "" {
			name = m.User.Username
		}
		if strings.EqualFold(name, displayName) {
			return m
		}
	}
	return nil
}

// Mention returns the Discord mention for a display name, or the name
// unchanged when no member matches.
func (r *GuildRoster) Mention(displayName string) string {
	if m := r.member(displayName); m != nil {
		return m.User.Mention()
	}
	return displayName
}

// HasUser reports whether a guild member goes by this display name.
func (r *GuildRoster) HasUser(displayName string) bool {
	return r.member(displayName) != nil
}
