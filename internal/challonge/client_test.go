package challonge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/discord-bracket-bot/internal/challonge"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"plain url", "https://challonge.com/mtvmelee1", "mtvmelee1", false},
		{"no scheme", "challonge.com/mtvmelee1", "mtvmelee1", false},
		{"subdomain", "https://events.challonge.com/weekly42", "events-weekly42", false},
		{"trailing path", "https://challonge.com/weekly42/standings", "weekly42", false},
		{"not challonge", "https://example.com/bracket", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := challonge.ExtractID(tt.url)
			if tt.wantErr {
				if !errors.Is(err, challonge.ErrInvalidURL) {
					t.Fatalf("ExtractID(%q) error = %v, want ErrInvalidURL", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractID(%q) error = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ExtractID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *challonge.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return challonge.NewClient(srv.URL, "test-key", "weekly42", noop.NewTracerProvider())
}

func TestClient_Tournament(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tournaments/weekly42.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("api_key = %q, want %q", got, "test-key")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tournament": map[string]any{
				"id":                 42,
				"name":               "Weekly 42",
				"state":              "underway",
				"full_challonge_url": "https://challonge.com/weekly42",
				"progress_meter":     50,
			},
		})
	})

	got, err := client.Tournament(context.Background())
	if err != nil {
		t.Fatalf("Tournament: %v", err)
	}
	if got.Name != "Weekly 42" {
		t.Errorf("Name = %q, want %q", got.Name, "Weekly 42")
	}
	if got.State != challonge.TournamentStateUnderway {
		t.Errorf("State = %q, want %q", got.State, challonge.TournamentStateUnderway)
	}
	if got.ProgressMeter != 50 {
		t.Errorf("ProgressMeter = %d, want 50", got.ProgressMeter)
	}
}

func TestClient_Participants(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"participant": map[string]any{"id": 1, "name": "Alice"}},
			{"participant": map[string]any{"id": 2, "name": "", "username": "bob", "group_player_ids": []int64{7, 8}}},
		})
	})

	got, err := client.Participants(context.Background())
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d participants, want 2", len(got))
	}
	if got[0].Name != "Alice" {
		t.Errorf("participant 0 name = %q, want Alice", got[0].Name)
	}
	if got[1].Username != "bob" || len(got[1].GroupPlayerIDs) != 2 {
		t.Errorf("participant 1 not decoded from wrapper: %+v", got[1])
	}
}

func TestClient_Matches(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"match": map[string]any{"id": 100, "player1_id": 1, "player2_id": 2, "round": 1, "state": "open"}},
			{"match": map[string]any{"id": 101, "player1_id": nil, "player2_id": 2, "round": 2, "state": "pending"}},
		})
	})

	got, err := client.Matches(context.Background())
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].State != challonge.MatchStateOpen {
		t.Errorf("match 0 state = %q, want open", got[0].State)
	}
	if got[1].Player1ID != nil {
		t.Error("match 1 player1_id should stay nil")
	}
}

func TestClient_ReportMatch(t *testing.T) {
	var reported struct {
		Match struct {
			WinnerID  int64  `json:"winner_id"`
			ScoresCSV string `json:"scores_csv"`
		} `json:"match"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q, want PUT", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&reported); err != nil {
			t.Errorf("decoding report body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.ReportMatch(context.Background(), 100, 1, "3-1"); err != nil {
		t.Fatalf("ReportMatch: %v", err)
	}
	if reported.Match.WinnerID != 1 {
		t.Errorf("winner_id = %d, want 1", reported.Match.WinnerID)
	}
	if reported.Match.ScoresCSV != "3-1" {
		t.Errorf("scores_csv = %q, want %q", reported.Match.ScoresCSV, "3-1")
	}
}

func TestClient_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Tournament(context.Background())
	if !errors.Is(err, challonge.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
}

func TestClient_Finalize_AlreadyFinal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	err := client.Finalize(context.Background())
	if !errors.Is(err, challonge.ErrAlreadyFinalized) {
		t.Fatalf("error = %v, want ErrAlreadyFinalized", err)
	}
}

func TestClient_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	err := client.MarkUnderway(context.Background(), 100)
	var se *challonge.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", se.StatusCode)
	}
	if se.Body != "boom" {
		t.Errorf("Body = %q, want %q", se.Body, "boom")
	}
}
