package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/session"
)

// ErrNotFound is returned when a session key has no persisted state.
var ErrNotFound = errors.New("session not found")

// Store is the persistence port the engine and the read APIs consume.
// Session writes are upsert-by-key, message writes are append-only, and no
// operation requires cross-session locking.
type Store interface {
	UpsertSession(ctx context.Context, sess *session.Session) error
	AppendMessage(ctx context.Context, msg *session.Message) error
	// MarkNotification records the final-result delivery outcome (HTTP
	// status, or the failure sentinel) against a session for audit.
	MarkNotification(ctx context.Context, sessionID string, status int) error

	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*session.Session, error)
	GetMessages(ctx context.Context, sessionID string) ([]*session.Message, error)
	Stats(ctx context.Context) (*session.Stats, error)

	// CleanupOlderThan deletes sessions (and their messages) created more
	// than age ago. Retention is an external sweep, never the hot path.
	CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error)

	Close()
}

// Open picks a backend from the database URL: postgres:// URLs use pgx,
// an empty URL keeps everything in memory, anything else is treated as a
// SQLite file path.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (Store, error) {
	switch {
	case databaseURL == "":
		logger.Warn("no DATABASE_URL configured, sessions are not durable")
		return NewMemory(), nil
	case strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgres(ctx, databaseURL)
	default:
		return NewSQLite(databaseURL)
	}
}
