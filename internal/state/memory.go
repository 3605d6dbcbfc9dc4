// internal/state/memory.go
package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/user/wxbridge/internal/types"
)

// MemoryStore is an in-memory message store and event log with the same
// semantics as the SQLite backend. It exists so the core logic can be
// tested without a database file; Now is injectable so tests control the
// timestamps the store assigns.
type MemoryStore struct {
	mu       sync.Mutex
	messages []*types.Message
	events   map[string]*types.Event
	nextID   int64

	Now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*types.Event),
		nextID: 1,
		Now:    time.Now,
	}
}

// Insert appends a new message, assigning ID and CreatedAt.
func (s *MemoryStore) Insert(_ context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.nextID
	s.nextID++
	msg.CreatedAt = s.Now()

	stored := *msg
	s.messages = append(s.messages, &stored)
	return nil
}

// Find returns the messages matching the query.
func (s *MemoryStore) Find(_ context.Context, q types.MessageQuery) ([]*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.Message
	for _, m := range s.messages {
		if !matches(m, q) {
			continue
		}
		copied := *m
		matched = append(matched, &copied)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if q.Sort == types.NewestFirst {
			if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].ID > matched[j].ID
			}
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Count returns the number of messages matching the query.
func (s *MemoryStore) Count(_ context.Context, q types.MessageQuery) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, m := range s.messages {
		if matches(m, q) {
			count++
		}
	}
	return count, nil
}

// MarkDeleted soft-deletes every non-deleted message of the session.
func (s *MemoryStore) MarkDeleted(_ context.Context, sessionID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, m := range s.messages {
		if m.SessionID == sessionID && m.DeletedAt == nil {
			deletedAt := at
			m.DeletedAt = &deletedAt
			affected++
		}
	}
	return affected, nil
}

// Record inserts the event if its EventID has never been seen.
func (s *MemoryStore) Record(_ context.Context, ev *types.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[ev.EventID]; seen {
		return false, nil
	}
	ev.SeenAt = s.Now()
	stored := *ev
	s.events[ev.EventID] = &stored
	return true, nil
}

func matches(m *types.Message, q types.MessageQuery) bool {
	if q.SessionID != "" && m.SessionID != q.SessionID {
		return false
	}
	if q.MsgID != "" && m.MsgID != q.MsgID {
		return false
	}
	if q.Undeleted && m.DeletedAt != nil {
		return false
	}
	if !q.CreatedAfter.IsZero() && !m.CreatedAt.After(q.CreatedAfter) {
		return false
	}
	return true
}

// Interface checks.
var (
	_ types.MessageStore = (*MemoryStore)(nil)
	_ types.EventLog     = (*MemoryStore)(nil)
)
