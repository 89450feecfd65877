package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jensholdgaard/discord-bracket-bot/internal/store"
	"github.com/jensholdgaard/discord-bracket-bot/internal/store/postgres"
)

func TestResultRepo_RecordAndGetByID(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewResultRepo(db)
	ctx := context.Background()

	rec := &store.TournamentRecord{
		ID:        "weekly42",
		Name:      "Weekly 42",
		URL:       "https://challonge.com/weekly42",
		Winner:    "Alice",
		Entrants:  16,
		GuildID:   "g1",
		ChannelID: "c1",
	}
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set by Record")
	}

	got, err := repo.GetByID(ctx, "weekly42")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Winner != "Alice" || got.Entrants != 16 {
		t.Errorf("got %+v", got)
	}
}

func TestResultRepo_RecordIsUpsert(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewResultRepo(db)
	ctx := context.Background()

	first := &store.TournamentRecord{
		ID: "weekly42", Name: "Weekly 42", URL: "u", GuildID: "g", ChannelID: "c",
		Winner: "", FinishedAt: time.Now().UTC(),
	}
	if err := repo.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Re-recording after finalization fills in the winner.
	first.Winner = "Bob"
	if err := repo.Record(ctx, first); err != nil {
		t.Fatalf("Record (update): %v", err)
	}

	got, err := repo.GetByID(ctx, "weekly42")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Winner != "Bob" {
		t.Errorf("Winner = %q, want %q", got.Winner, "Bob")
	}
}

func TestResultRepo_ListOrdered(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewResultRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		rec := &store.TournamentRecord{
			ID: id, Name: id, URL: "u", GuildID: "g", ChannelID: "c",
			FinishedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%s): %v", id, err)
		}
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List returned %d records, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].ID != want {
			t.Errorf("record %d = %q, want %q", i, got[i].ID, want)
		}
	}
}
