// Package memory provides an in-process store.Driver. It is the default
// backend: the bot holds all tournament state in memory anyway, so the
// audit archive only needs to outlive individual commands, not restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jensholdgaard/discord-bracket-bot/internal/clock"
	"github.com/jensholdgaard/discord-bracket-bot/internal/config"
	"github.com/jensholdgaard/discord-bracket-bot/internal/event"
	"github.com/jensholdgaard/discord-bracket-bot/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("memory", open)
}

func open(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{
		Results: NewResultRepo(clk),
		Events:  NewEventStore(clk),
		Closer:  closerFunc(func() error { return nil }),
		Ping:    func(context.Context) error { return nil },
	}, nil
}

// ResultRepo implements store.ResultRepository in memory.
type ResultRepo struct {
	mu      sync.RWMutex
	records map[string]store.TournamentRecord
	clk     clock.Clock
}

// NewResultRepo returns an empty in-memory results archive.
func NewResultRepo(clk clock.Clock) *ResultRepo {
	return &ResultRepo{records: make(map[string]store.TournamentRecord), clk: clk}
}

func (r *ResultRepo) Record(_ context.Context, rec *store.TournamentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = r.clk.Now().UTC()
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *ResultRepo) GetByID(_ context.Context, id string) (*store.TournamentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("tournament %s not found", id)
	}
	return &rec, nil
}

func (r *ResultRepo) List(_ context.Context) ([]store.TournamentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]store.TournamentRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FinishedAt.Before(records[j].FinishedAt)
	})
	return records, nil
}

// EventStore implements event.Store in memory.
type EventStore struct {
	mu     sync.RWMutex
	events []event.Event
	nextID int
	clk    clock.Clock
}

// NewEventStore returns an empty in-memory event store.
func NewEventStore(clk clock.Clock) *EventStore {
	return &EventStore{clk: clk}
}

func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		for _, existing := range s.events {
			if existing.AggregateID == e.AggregateID && existing.Version == e.Version {
				return fmt.Errorf("duplicate event version %d for %s", e.Version, e.AggregateID)
			}
		}
		s.nextID++
		e.ID = fmt.Sprintf("%d", s.nextID)
		e.CreatedAt = s.clk.Now().UTC()
		s.events = append(s.events, e)
	}
	return nil
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []event.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []event.Event
	for _, e := range s.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result, nil
}
