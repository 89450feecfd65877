package commands

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrPromptTimeout is returned when a prompted user never answers.
var ErrPromptTimeout = errors.New("no reply before the prompt timed out")

// promptTimeout is how long Ask waits for a reply.
const promptTimeout = 60 * time.Second

var apiKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Sender is the slice of the Discord session the prompter needs to ask
// questions in a channel.
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DMSender additionally opens DM channels.
type DMSender interface {
	Sender
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Prompter collects free-form replies to questions the bot asks in DMs
// or channels. At most one question per user per channel is pending at
// a time; a newer question displaces the older one.
type Prompter struct {
	mu      sync.Mutex
	pending map[string]chan string
}

// NewPrompter creates an empty prompter.
func NewPrompter() *Prompter {
	return &Prompter{pending: make(map[string]chan string)}
}

func promptKey(userID, channelID string) string {
	return userID + "|" + channelID
}

// Ask sends question to the channel and waits for the user's next
// message there.
func (p *Prompter) Ask(ctx context.Context, s Sender, userID, channelID, question string) (string, error) {
	ch := make(chan string, 1)
	key := promptKey(userID, channelID)

	p.mu.Lock()
	if old, ok := p.pending[key]; ok {
		close(old)
	}
	p.pending[key] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.pending[key] == ch {
			delete(p.pending, key)
		}
		p.mu.Unlock()
	}()

	if _, err := s.ChannelMessageSend(channelID, question); err != nil {
		return "", err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return "", ErrPromptTimeout
		}
		return reply, nil
	case <-time.After(promptTimeout):
		return "", ErrPromptTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Confirm asks a yes/no question. Only "y" and "yes" count as yes; any
// other reply, a timeout included, is a no.
func (p *Prompter) Confirm(ctx context.Context, s Sender, userID, channelID, question string) bool {
	reply, err := p.Ask(ctx, s, userID, channelID, question+" [Y/n]")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "y", "yes":
		return true
	}
	return false
}

// AskAPIKey asks the user for their Challonge API key over DM. The
// user can decline by answering "no". Replies that do not look like an
// API key are rejected with a retry message, up to three attempts.
func (p *Prompter) AskAPIKey(ctx context.Context, s DMSender, userID string) (string, error) {
	dm, err := s.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}

	question := "Paste your Challonge API key here (https://challonge.com/settings/developer), or reply `no` to skip."
	for attempt := 0; attempt < 3; attempt++ {
		reply, err := p.Ask(ctx, s, userID, dm.ID, question)
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(reply)
		if strings.EqualFold(reply, "no") {
			_, _ = s.ChannelMessageSend(dm.ID, "👍")
			return "", nil
		}
		if apiKeyPattern.MatchString(reply) {
			return reply, nil
		}
		question = "That doesn't look like an API key. Try again, or reply `no` to skip."
	}
	return "", nil
}

// HandleMessage feeds an incoming message to a waiting prompt. It
// reports whether the message was consumed by a prompt.
func (p *Prompter) HandleMessage(m *discordgo.MessageCreate) bool {
	key := promptKey(m.Author.ID, m.ChannelID)

	p.mu.Lock()
	ch, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- m.Content
	return true
}
