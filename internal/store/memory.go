package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/session"
)

// Memory is the in-process Store used in tests and when no database is
// configured. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	messages map[string][]*session.Message
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*session.Session),
		messages: make(map[string][]*session.Message),
	}
}

func (m *Memory) UpsertSession(_ context.Context, sess *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneSession(sess)
	if prev, ok := m.sessions[sess.ID]; ok {
		// Callback columns are owned by MarkNotification.
		cp.CallbackSent = prev.CallbackSent
		cp.CallbackStatus = prev.CallbackStatus
	}
	m.sessions[sess.ID] = cp
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *session.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	return nil
}

func (m *Memory) MarkNotification(_ context.Context, sessionID string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.CallbackSent = true
	sess.CallbackStatus = status
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (m *Memory) ListSessions(_ context.Context, limit int) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*session.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetMessages(_ context.Context, sessionID string) ([]*session.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	out := make([]*session.Message, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (*session.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &session.Stats{}
	var confidenceSum float64
	for _, sess := range m.sessions {
		stats.TotalSessions++
		stats.TotalMessages += sess.Turns
		if sess.ScamDetected {
			stats.ScamsDetected++
			confidenceSum += sess.Confidence
		}
		if sess.Intel.ItemCount() > 0 {
			stats.WithIntelligence++
		}
	}
	if stats.ScamsDetected > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.ScamsDetected)
	}
	if stats.TotalSessions > 0 {
		stats.DetectionRate = float64(stats.ScamsDetected) / float64(stats.TotalSessions) * 100
	}
	return stats, nil
}

func (m *Memory) CleanupOlderThan(_ context.Context, age time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var deleted int64
	for id, sess := range m.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Close() {}

func cloneSession(sess *session.Session) *session.Session {
	cp := *sess
	cp.Intel = sess.Intel.Clone()
	if sess.CompletedAt != nil {
		t := *sess.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
