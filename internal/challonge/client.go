package challonge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// StatusError is returned for API responses outside the handled taxonomy.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("challonge api returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Challonge API for a single tournament.
type Client struct {
	baseURL      string
	apiKey       string
	tournamentID string
	httpClient   *http.Client
}

// NewClient creates a client scoped to one tournament. The transport is
// instrumented with otelhttp so every API call produces a span.
func NewClient(baseURL, apiKey, tournamentID string, tp trace.TracerProvider) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		tournamentID: tournamentID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
			),
		},
	}
}

// TournamentID returns the identifier this client is scoped to.
func (c *Client) TournamentID() string { return c.tournamentID }

// Tournament fetches tournament metadata and state.
func (c *Client) Tournament(ctx context.Context) (*Tournament, error) {
	var wrapper struct {
		Tournament Tournament `json:"tournament"`
	}
	path := fmt.Sprintf("/tournaments/%s.json", c.tournamentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &wrapper); err != nil {
		return nil, fmt.Errorf("fetching tournament: %w", err)
	}
	return &wrapper.Tournament, nil
}

// Participants fetches the entrant list.
func (c *Client) Participants(ctx context.Context) ([]Participant, error) {
	var wrappers []struct {
		Participant Participant `json:"participant"`
	}
	path := fmt.Sprintf("/tournaments/%s/participants.json", c.tournamentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &wrappers); err != nil {
		return nil, fmt.Errorf("fetching participants: %w", err)
	}
	participants := make([]Participant, len(wrappers))
	for i, w := range wrappers {
		participants[i] = w.Participant
	}
	return participants, nil
}

// Matches fetches the full match list.
func (c *Client) Matches(ctx context.Context) ([]Match, error) {
	var wrappers []struct {
		Match Match `json:"match"`
	}
	path := fmt.Sprintf("/tournaments/%s/matches.json", c.tournamentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &wrappers); err != nil {
		return nil, fmt.Errorf("fetching matches: %w", err)
	}
	matches := make([]Match, len(wrappers))
	for i, w := range wrappers {
		matches[i] = w.Match
	}
	return matches, nil
}

// ReportMatch submits a winner and score line for a match. The score is
// always ordered player1-player2.
func (c *Client) ReportMatch(ctx context.Context, matchID, winnerID int64, scoresCSV string) error {
	body := map[string]any{
		"match": map[string]any{
			"winner_id":  winnerID,
			"scores_csv": scoresCSV,
		},
	}
	path := fmt.Sprintf("/tournaments/%s/matches/%d.json", c.tournamentID, matchID)
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("reporting match %d: %w", matchID, err)
	}
	return nil
}

// MarkUnderway flags a match as currently being played.
func (c *Client) MarkUnderway(ctx context.Context, matchID int64) error {
	path := fmt.Sprintf("/tournaments/%s/matches/%d/mark_as_underway.json", c.tournamentID, matchID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("marking match %d underway: %w", matchID, err)
	}
	return nil
}

// Finalize closes out the tournament. Finalizing a tournament that is
// already final returns ErrAlreadyFinalized; callers treat that as success.
func (c *Client) Finalize(ctx context.Context) error {
	path := fmt.Sprintf("/tournaments/%s/finalize.json", c.tournamentID)
	err := c.do(ctx, http.MethodPut, path, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity {
		return ErrAlreadyFinalized
	}
	if err != nil {
		return fmt.Errorf("finalizing tournament: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("building url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling challonge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
