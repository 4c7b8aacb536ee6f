// Package engine owns per-conversation state: it applies extraction and
// classification results, decides when engagement ends, and hands the final
// result to the external notifier. It is the only component that transitions
// session state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/lure/internal/classifier"
	"github.com/MikeSquared-Agency/lure/internal/events"
	"github.com/MikeSquared-Agency/lure/internal/persona"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/store"
)

// ErrInvalidTurn marks malformed input; it is the only engine error that
// maps to a client fault at the transport layer.
var ErrInvalidTurn = errors.New("invalid turn: session id and text are required")

const (
	// neutralReply closes out conversations classified as benign.
	neutralReply = "Thank you for the information. I'll look into this myself."
	// disengageReply is the fixed line substituted when engagement ends.
	disengageReply = "I need to check with my family first. Thank you for your patience."

	confirmThreshold = 0.6
	benignThreshold  = 0.4

	maxTurns           = 15
	earlyIntelItems    = 4
	earlyIntelTurns    = 6
	lateIntelItems     = 3
	lateIntelTurns     = 10
)

// ResultNotifier delivers a finished session's intelligence externally.
type ResultNotifier interface {
	Send(ctx context.Context, sess *session.Session) (int, error)
}

// EventPublisher emits lifecycle events; nil disables publication.
type EventPublisher interface {
	Publish(subject string, data any) error
}

type Engine struct {
	store      store.Store
	classifier *classifier.Classifier
	responder  *persona.Responder
	notifier   ResultNotifier
	events     EventPublisher
	logger     *slog.Logger
	now        func() time.Time

	// Turns for the same session key are serialized; different keys
	// proceed independently. Entries are dropped once no turn holds or
	// waits on the key.
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func New(st store.Store, cls *classifier.Classifier, resp *persona.Responder, ntf ResultNotifier, ev EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		store:      st,
		classifier: cls,
		responder:  resp,
		notifier:   ntf,
		events:     ev,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[string]*sessionLock),
	}
}

// Turn is one inbound message plus the caller-supplied history window.
type Turn struct {
	SessionID string
	Sender    session.Sender
	Text      string
	Timestamp time.Time
	History   []session.Message
}

// ProcessTurn runs one full turn: extraction, classification, state update,
// reply generation, optional notification, persistence. Generative-service
// faults never surface; only malformed input returns an error.
func (e *Engine) ProcessTurn(ctx context.Context, turn Turn) (string, error) {
	if turn.SessionID == "" || turn.Text == "" {
		return "", ErrInvalidTurn
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = e.now()
	}

	unlock := e.lockSession(turn.SessionID)
	defer unlock()

	sess := e.loadOrCreate(ctx, turn.SessionID)
	log := e.logger.With("session_id", sess.ID, "state", string(sess.State))

	inbound := &session.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Sender:    turn.Sender,
		Text:      turn.Text,
		Timestamp: turn.Timestamp,
	}

	// Terminal sessions accept and store further turns but never resume
	// active engagement.
	if sess.IsComplete() {
		log.Info("turn on completed session, replying with closing line")
		e.persistTurn(ctx, sess, inbound, e.agentMessage(sess.ID, disengageReply))
		return disengageReply, nil
	}

	sess.Turns++

	if turn.Sender == session.SenderSuspect {
		if added := sess.Intel.Scan(turn.Text); added > 0 {
			log.Info("intelligence extracted", "new_values", added, "items", sess.Intel.ItemCount())
		}
	}

	if !sess.ScamDetected {
		verdict := e.classifier.Classify(ctx, turn.Text, turn.History)
		if verdict.Source == classifier.SourceFallback {
			log.Info("classifier fallback used", "confidence", verdict.Confidence)
		}

		switch {
		case verdict.IsScam && verdict.Confidence > confirmThreshold:
			sess.ScamDetected = true
			sess.State = session.StateConfirmed
			sess.Confidence = verdict.Confidence
			sess.ScamType = verdict.ScamType
			sess.Notes = fmt.Sprintf("%s detected (%.0f%%). %s", verdict.ScamType, verdict.Confidence*100, verdict.Reasoning)
			log.Info("scam confirmed", "scam_type", verdict.ScamType, "confidence", verdict.Confidence)
			e.publish(events.SubjectScamConfirmed, map[string]any{
				"session_id": sess.ID,
				"scam_type":  sess.ScamType,
				"confidence": sess.Confidence,
			})

		case verdict.Confidence < benignThreshold:
			// Confirmed benign: end politely without engaging further.
			e.finish(sess)
			log.Info("classified benign, ending engagement", "confidence", verdict.Confidence)
			e.persistTurn(ctx, sess, inbound, e.agentMessage(sess.ID, neutralReply))
			return neutralReply, nil

		default:
			// Undecided band: keep engaging without confirming either way.
		}
	}

	reply, usedFallback := e.responder.Reply(ctx, sess.Turns, turn.Text, turn.History)
	if usedFallback {
		log.Info("responder fallback used", "turns", sess.Turns)
	}

	if shouldTerminate(sess) {
		e.complete(ctx, sess, log)
		reply = disengageReply
	}

	e.persistTurn(ctx, sess, inbound, e.agentMessage(sess.ID, reply))
	return reply, nil
}

// shouldTerminate applies the termination policy, first match wins. Keyword
// hits do not count toward the intelligence threshold.
func shouldTerminate(sess *session.Session) bool {
	if sess.Turns >= maxTurns {
		return true
	}
	items := sess.Intel.ItemCount()
	if items >= earlyIntelItems && sess.Turns >= earlyIntelTurns {
		return true
	}
	if items >= lateIntelItems && sess.Turns >= lateIntelTurns {
		return true
	}
	return false
}

// complete transitions the session to its terminal state, appends the
// extraction summary, and invokes the notifier exactly once. Notification
// failure is recorded but never resurrects the session.
func (e *Engine) complete(ctx context.Context, sess *session.Session, log *slog.Logger) {
	e.finish(sess)

	summary := fmt.Sprintf("Conversation complete. Extracted: %d bank accounts, %d payment handles, %d links, %d phone numbers. Type: %s",
		len(sess.Intel.BankAccounts), len(sess.Intel.PaymentHandles),
		len(sess.Intel.Links), len(sess.Intel.PhoneNumbers), sess.ScamType)
	if sess.Notes != "" {
		sess.Notes += ". " + summary
	} else {
		sess.Notes = summary
	}
	log.Info("engagement complete", "turns", sess.Turns, "items", sess.Intel.ItemCount())

	if e.notifier != nil {
		// The row must exist before the delivery outcome can be recorded
		// against it.
		if err := e.store.UpsertSession(ctx, sess); err != nil {
			log.Error("session persist failed", "error", err)
		}
		status, err := e.notifier.Send(ctx, sess)
		if err != nil {
			log.Error("final result delivery failed", "error", err)
		}
		sess.CallbackSent = true
		sess.CallbackStatus = status
		if err := e.store.MarkNotification(ctx, sess.ID, status); err != nil {
			log.Error("failed to record notification outcome", "error", err)
		}
	}

	e.publish(events.SubjectSessionCompleted, map[string]any{
		"session_id":    sess.ID,
		"scam_detected": sess.ScamDetected,
		"scam_type":     sess.ScamType,
		"turns":         sess.Turns,
		"items":         sess.Intel.ItemCount(),
	})
}

func (e *Engine) finish(sess *session.Session) {
	sess.State = session.StateComplete
	now := e.now()
	sess.CompletedAt = &now
}

// loadOrCreate fetches the session or starts a fresh one. A store read fault
// is logged and the turn proceeds on a fresh session: availability of the
// conversational loop outranks durability.
func (e *Engine) loadOrCreate(ctx context.Context, id string) *session.Session {
	sess, err := e.store.GetSession(ctx, id)
	if err == nil {
		return sess
	}
	if !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("session load failed, starting fresh", "session_id", id, "error", err)
	}
	return session.New(id, e.now())
}

// persistTurn writes session state and both messages. Persistence faults are
// logged; the computed reply is still returned to the caller.
func (e *Engine) persistTurn(ctx context.Context, sess *session.Session, inbound, outbound *session.Message) {
	if err := e.store.UpsertSession(ctx, sess); err != nil {
		e.logger.Error("session persist failed", "session_id", sess.ID, "error", err)
	}
	if err := e.store.AppendMessage(ctx, inbound); err != nil {
		e.logger.Error("message persist failed", "session_id", sess.ID, "error", err)
	}
	if outbound != nil {
		if err := e.store.AppendMessage(ctx, outbound); err != nil {
			e.logger.Error("reply persist failed", "session_id", sess.ID, "error", err)
		}
	}
}

func (e *Engine) agentMessage(sessionID, text string) *session.Message {
	return &session.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    session.SenderAgent,
		Text:      text,
		Timestamp: e.now(),
	}
}

func (e *Engine) publish(subject string, data any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(subject, data); err != nil {
		e.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

func (e *Engine) lockSession(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sessionLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}
