package trajectory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the durable side of the recorder. Implementations must return
// points ordered by timestamp ascending, insertion order breaking ties, and
// ErrSessionNotFound for unknown session ids.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// CloseSession sets the end timestamp unless it is already set.
	CloseSession(ctx context.Context, id string, endedAt time.Time) error
	AppendPoint(ctx context.Context, p Point) error
	// ListSessions returns sessions most recent start first.
	ListSessions(ctx context.Context) ([]Session, error)
	ListPoints(ctx context.Context, sessionID string) ([]Point, error)
	Close() error
}

// MemoryStore keeps everything in process memory. Used for development and
// when no database is reachable.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

type memSession struct {
	session Session
	points  []Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*memSession{}}
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memSession{session: s}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return ms.session, nil
}

func (m *MemoryStore) CloseSession(_ context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if ms.session.EndedAt == nil {
		ms.session.EndedAt = &endedAt
	}
	return nil
}

func (m *MemoryStore) AppendPoint(_ context.Context, p Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[p.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	ms.points = append(ms.points, p)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		sessions = append(sessions, ms.session)
	}
	m.mu.RUnlock()

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) ListPoints(_ context.Context, sessionID string) ([]Point, error) {
	m.mu.RLock()
	ms, ok := m.sessions[sessionID]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrSessionNotFound
	}
	points := make([]Point, len(ms.points))
	copy(points, ms.points)
	m.mu.RUnlock()

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

// Delete removes a session and its points. Only administrative tooling calls it.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) Close() error { return nil }
