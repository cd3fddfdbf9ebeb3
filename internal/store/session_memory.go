package store

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often Touch scans for expired sessions.
const sweepEvery = time.Minute

// MemorySessions keeps sessions in process when Redis is not configured.
// Expired sessions are pruned on write, at most once per sweepEvery.
type MemorySessions struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	sessions  map[string]Session
	lastSweep time.Time
}

func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{ttl: ttl, now: time.Now, sessions: map[string]Session{}}
}

func (m *MemorySessions) Touch(ctx context.Context, id, assistantCtx, address string) error {
	if id == "" {
		return nil
	}
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(now)
	sess, ok := m.sessions[id]
	if !ok || m.expired(sess, now) {
		sess = Session{ID: id, CreatedAt: now}
	}
	sess.Context = assistantCtx
	if address != "" {
		sess.Address = address
	}
	sess.LastSeen = now
	sess.Turns++
	m.sessions[id] = sess
	return nil
}

func (m *MemorySessions) Get(ctx context.Context, id string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, false, nil
	}
	if m.expired(sess, m.now().UTC()) {
		delete(m.sessions, id)
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (m *MemorySessions) expired(s Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.LastSeen) > m.ttl
}

func (m *MemorySessions) sweep(now time.Time) {
	if m.ttl <= 0 || now.Sub(m.lastSweep) < sweepEvery {
		return
	}
	m.lastSweep = now
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
		}
	}
}

// Len is the number of sessions held, expired ones included until the next sweep.
func (m *MemorySessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
