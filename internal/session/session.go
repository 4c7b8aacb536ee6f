package session

import (
	"time"

	"github.com/MikeSquared-Agency/lure/internal/intel"
)

// State is the engagement lifecycle of a session. Transitions only move
// forward: new → engaging → (scam_confirmed →) complete.
type State string

const (
	StateNew       State = "new"
	StateEngaging  State = "engaging"
	StateConfirmed State = "scam_confirmed"
	StateComplete  State = "complete"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderSuspect Sender = "suspect"
	SenderAgent   Sender = "agent"
)

// ParseSender normalizes wire sender values. "scammer" is the historical
// wire spelling for the suspect role and is still accepted.
func ParseSender(s string) (Sender, bool) {
	switch s {
	case "suspect", "scammer":
		return SenderSuspect, true
	case "agent":
		return SenderAgent, true
	default:
		return "", false
	}
}

// Session is one continuous engagement with a single suspect.
type Session struct {
	ID           string
	State        State
	ScamDetected bool
	Confidence   float64
	ScamType     string
	Turns        int
	Intel        intel.Record
	Notes        string
	CreatedAt    time.Time
	CompletedAt  *time.Time

	// Delivery audit for the final-result callback, written only by the
	// persistence port's notification-marking operation.
	CallbackSent   bool
	CallbackStatus int
}

// New creates a session in the engaging state; sessions come into existence
// on the first processed turn, so there is no persisted "new" session.
func New(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateEngaging,
		CreatedAt: now,
	}
}

// Active reports whether the session still generates engaged replies.
func (s *Session) Active() bool {
	return s.State == StateEngaging || s.State == StateConfirmed
}

// IsComplete reports whether the session reached its terminal state.
func (s *Session) IsComplete() bool {
	return s.State == StateComplete
}

// Message is a single utterance in a session, ordered by arrival.
type Message struct {
	ID        string
	SessionID string
	Sender    Sender
	Text      string
	Timestamp time.Time
}

// Stats are store-wide aggregates for the read APIs.
type Stats struct {
	TotalSessions     int     `json:"totalSessions"`
	ScamsDetected     int     `json:"scamsDetected"`
	TotalMessages     int     `json:"totalMessages"`
	WithIntelligence  int     `json:"sessionsWithIntelligence"`
	AverageConfidence float64 `json:"averageConfidence"`
	DetectionRate     float64 `json:"detectionRate"`
}
