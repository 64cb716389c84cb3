package store

import (
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"

	"voiceask/internal/orchestrator"
	"voiceask/internal/types"
)

const (
	// maxEvents caps the journal per user, truncation marker included.
	maxEvents = 200

	EventAttempt   = "attempt"
	EventTruncated = "events_truncated"
)

// Store is an in-memory journal of generation attempts keyed by user id.
type Store struct {
	mu     sync.RWMutex
	events map[string][]types.Event
	now    func() time.Time
}

var _ orchestrator.Recorder = (*Store)(nil)

func New() *Store {
	return &Store{
		events: make(map[string][]types.Event),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record implements orchestrator.Recorder.
func (s *Store) Record(userID string, a orchestrator.Attempt) {
	payload := map[string]any{
		"kind":        string(a.Kind),
		"run_id":      a.RunID,
		"status":      string(a.Status),
		"reply_len":   a.ReplyLen,
		"duration_ms": a.Duration.Milliseconds(),
	}
	if a.Err != "" {
		payload["error"] = a.Err
	}
	s.AppendEvent(userID, EventAttempt, payload)
}

func (s *Store) AppendEvent(userID, typ string, payload map[string]any) types.Event {
	evt := types.Event{ID: uuid.NewString(), Type: typ, Ts: s.now(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[userID] = append(s.events[userID], evt)
	if l := len(s.events[userID]); l > maxEvents {
		// One slot goes to the truncation marker so the total stays at maxEvents.
		keep := maxEvents - 1
		dropped := l - keep
		s.events[userID] = append([]types.Event(nil), s.events[userID][l-keep:]...)
		warn := types.Event{
			ID:      uuid.NewString(),
			Type:    EventTruncated,
			Ts:      s.now(),
			Payload: map[string]any{"user_id": userID, "dropped": dropped, "kept": keep},
		}
		s.events[userID] = append(s.events[userID], warn)
	}
	return evt
}

func (s *Store) ListEvents(userID string) []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[userID]
	out := make([]types.Event, len(src))
	copy(out, src)
	return out
}

// ListUserIDs returns every user with journal entries, sorted.
func (s *Store) ListUserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pie.Sort(pie.Keys(s.events))
}
