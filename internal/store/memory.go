package store

import (
	"context"
	"sync"

	"github.com/chattitude/chattitude/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. A consumer that falls
// further behind than this misses intermediate snapshots; the newest snapshot
// is always enqueued, evicting the oldest buffered one when the buffer is
// full (full snapshots make skipped deliveries safe).
const subscriberBuffer = 16

// MemoryStore is a thread-safe in-process SessionStore for development,
// tests, and the single-server deployment. Data is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	subs     map[string]map[int]chan *models.Session
	nextSub  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		subs:     make(map[string]map[int]chan *models.Session),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	m.sessions[s.ID] = s.Clone()
	m.notifyLocked(s.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	m.sessions[id] = next
	m.notifyLocked(id)
	return next.Clone(), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan *models.Session, error) {
	m.mu.Lock()
	cur, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	ch := make(chan *models.Session, subscriberBuffer)
	ch <- cur.Clone()
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]chan *models.Session)
	}
	key := m.nextSub
	m.nextSub++
	m.subs[id][key] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if set, ok := m.subs[id]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.subs, id)
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (m *MemoryStore) Close() error { return nil }

// notifyLocked fans the current snapshot out to every subscriber. Every
// change reaches every subscriber: a full channel drops its oldest buffered
// snapshot to make room, so a slow consumer loses intermediate states but
// never the latest one.
func (m *MemoryStore) notifyLocked(id string) {
	cur, ok := m.sessions[id]
	if !ok {
		return
	}
	for _, ch := range m.subs[id] {
		snap := cur.Clone()
		select {
		case ch <- snap:
		default:
			// Evict the oldest snapshot. Only notifyLocked sends and it
			// holds the store lock, so the retry cannot block.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
