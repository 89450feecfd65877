package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jensholdgaard/discord-bracket-bot/internal/event"
	"github.com/jensholdgaard/discord-bracket-bot/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	s := postgres.NewEventStore(db)
	ctx := context.Background()

	events := []event.Event{
		{AggregateID: "weekly42", Type: event.TournamentStarted, Data: json.RawMessage(`{"name":"Weekly 42"}`), Version: 1},
		{AggregateID: "weekly42", Type: event.MatchReported, Data: json.RawMessage(`{"match_id":100}`), Version: 2},
		{AggregateID: "other", Type: event.TournamentStarted, Data: json.RawMessage(`{}`), Version: 1},
	}
	if err := s.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Load(ctx, "weekly42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Errorf("events out of version order: %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Error("database should assign id and created_at")
	}

	var payload struct {
		MatchID int64 `json:"match_id"`
	}
	if err := json.Unmarshal(got[1].Data, &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.MatchID != 100 {
		t.Errorf("match_id = %d, want 100", payload.MatchID)
	}
}

func TestEventStore_AppendIsAtomic(t *testing.T) {
	db := newTestDB(t)
	s := postgres.NewEventStore(db)
	ctx := context.Background()

	if err := s.Append(ctx, event.Event{
		AggregateID: "weekly42", Type: event.TournamentStarted, Data: json.RawMessage(`{}`), Version: 1,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Batch with a duplicate version must fail and leave nothing behind.
	err := s.Append(ctx,
		event.Event{AggregateID: "weekly42", Type: event.MatchReported, Data: json.RawMessage(`{}`), Version: 2},
		event.Event{AggregateID: "weekly42", Type: event.MatchReported, Data: json.RawMessage(`{}`), Version: 1},
	)
	if err == nil {
		t.Fatal("expected unique violation on duplicate version")
	}

	got, err := s.Load(ctx, "weekly42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d events after failed batch, want 1 (rollback)", len(got))
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	s := postgres.NewEventStore(db)
	ctx := context.Background()

	if err := s.Append(ctx,
		event.Event{AggregateID: "t1", Type: event.TournamentStarted, Data: json.RawMessage(`{}`), Version: 1},
		event.Event{AggregateID: "t1", Type: event.MatchReported, Data: json.RawMessage(`{}`), Version: 2},
		event.Event{AggregateID: "t2", Type: event.MatchReported, Data: json.RawMessage(`{}`), Version: 1},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.LoadByType(ctx, event.MatchReported)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("LoadByType returned %d events, want 2", len(got))
	}
}
