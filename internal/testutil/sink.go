package testutil

import (
	"context"
	"sync"

	"github.com/dwsmith1983/narrator/internal/notify"
)

var _ notify.Sink = (*RecordingSink)(nil)

// Delivery is one message captured by a RecordingSink.
type Delivery struct {
	Audience string
	WorldID  string
	Message  notify.Message
}

// RecordingSink captures every message and answers session queries from
// in-memory state.
type RecordingSink struct {
	mu         sync.Mutex
	deliveries []Delivery
	directors  map[string]bool
	worlds     []string
	err        error
}

// NewRecordingSink creates a sink with the given worlds active and a
// director connected to each.
func NewRecordingSink(worldIDs ...string) *RecordingSink {
	s := &RecordingSink{directors: make(map[string]bool)}
	for _, id := range worldIDs {
		s.worlds = append(s.worlds, id)
		s.directors[id] = true
	}
	return s
}

// SetDirector marks the world's director as connected or not.
func (s *RecordingSink) SetDirector(worldID string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directors[worldID] = connected
}

// FailWith makes every delivery return err. Pass nil to clear.
func (s *RecordingSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *RecordingSink) Name() string { return "recording" }

func (s *RecordingSink) SendToDirector(_ context.Context, worldID string, msg notify.Message) error {
	return s.record(notify.AudienceDirector, worldID, msg)
}

func (s *RecordingSink) BroadcastToPlayers(_ context.Context, worldID string, msg notify.Message) error {
	return s.record(notify.AudiencePlayers, worldID, msg)
}

func (s *RecordingSink) ListActiveWorldIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.worlds...), nil
}

func (s *RecordingSink) HasDirectorConnected(_ context.Context, worldID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directors[worldID], nil
}

func (s *RecordingSink) record(audience, worldID string, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deliveries = append(s.deliveries, Delivery{Audience: audience, WorldID: worldID, Message: msg})
	return nil
}

// Deliveries returns every captured message in order.
func (s *RecordingSink) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// OfKind returns captured messages of one kind.
func (s *RecordingSink) OfKind(kind notify.MessageKind) []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Delivery
	for _, d := range s.deliveries {
		if d.Message.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
