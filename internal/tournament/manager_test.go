package tournament_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/discord-bracket-bot/internal/tournament"
)

func newRegistrySession() *tournament.Session {
	return tournament.NewSession(tournament.Config{TournamentID: "t1"}, &fakeBracket{}, &fakeRoster{}, nil, nil, testLogger(), noop.NewTracerProvider())
}

func TestManager_AddAndGet(t *testing.T) {
	m := tournament.NewManager(testLogger(), noop.NewTracerProvider())
	key := tournament.Key{GuildID: "g1", ChannelID: "c1"}

	if _, ok := m.Get(key); ok {
		t.Fatal("Get on empty manager returned a session")
	}

	s := newRegistrySession()
	if err := m.Add(context.Background(), key, s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok := m.Get(key)
	if !ok || got != s {
		t.Fatal("Get did not return the added session")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestManager_AddRejectsSecondSession(t *testing.T) {
	m := tournament.NewManager(testLogger(), noop.NewTracerProvider())
	key := tournament.Key{GuildID: "g1", ChannelID: "c1"}

	first := newRegistrySession()
	if err := m.Add(context.Background(), key, first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := m.Add(context.Background(), key, newRegistrySession())
	if !errors.Is(err, tournament.ErrAlreadyRunning) {
		t.Fatalf("second Add error = %v, want ErrAlreadyRunning", err)
	}

	// The original session must stay in place.
	got, _ := m.Get(key)
	if got != first {
		t.Error("failed Add replaced the existing session")
	}
}

func TestManager_ChannelsAreIndependent(t *testing.T) {
	m := tournament.NewManager(testLogger(), noop.NewTracerProvider())

	a := tournament.Key{GuildID: "g1", ChannelID: "c1"}
	b := tournament.Key{GuildID: "g1", ChannelID: "c2"}

	if err := m.Add(context.Background(), a, newRegistrySession()); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(context.Background(), b, newRegistrySession()); err != nil {
		t.Fatalf("Add to a second channel: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestManager_Remove(t *testing.T) {
	m := tournament.NewManager(testLogger(), noop.NewTracerProvider())
	key := tournament.Key{GuildID: "g1", ChannelID: "c1"}

	if err := m.Add(context.Background(), key, newRegistrySession()); err != nil {
		t.Fatal(err)
	}
	m.Remove(key)
	if _, ok := m.Get(key); ok {
		t.Error("session still present after Remove")
	}

	// Removing again is a no-op.
	m.Remove(key)
}
