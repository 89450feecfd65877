package tournament

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrAlreadyRunning is returned when a channel already hosts a session.
var ErrAlreadyRunning = errors.New("a tournament is already running in this channel")

// Key identifies the channel a session is bound to.
type Key struct {
	GuildID   string
	ChannelID string
}

// Manager holds the live sessions, one per channel.
type Manager struct {
	mu       sync.RWMutex
	sessions map[Key]*Session

	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager creates an empty session registry.
func NewManager(logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		sessions: make(map[Key]*Session),
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/discord-bracket-bot/internal/tournament"),
	}
}

// Get returns the session for a channel, if one is running.
func (m *Manager) Get(key Key) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Add registers a session for a channel. The existing session stays in
// place when the channel is already occupied.
func (m *Manager) Add(ctx context.Context, key Key, s *Session) error {
	_, span := m.tracer.Start(ctx, "Manager.Add",
		trace.WithAttributes(
			attribute.String("guild_id", key.GuildID),
			attribute.String("channel_id", key.ChannelID),
		),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[key]; exists {
		return ErrAlreadyRunning
	}
	m.sessions[key] = s

	m.logger.InfoContext(ctx, "session registered",
		slog.String("channel_id", key.ChannelID),
		slog.String("tournament", s.Name()),
	)
	return nil
}

// Remove drops the session for a channel. Removing an empty slot is a
// no-op.
func (m *Manager) Remove(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
