package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/lure/internal/intel"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

// SQLite is the file-backed Store. Intelligence collections are stored as
// JSON-encoded text columns, mirroring how they travel on the wire.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	scam_detected   INTEGER NOT NULL DEFAULT 0,
	scam_confidence REAL NOT NULL DEFAULT 0,
	scam_type       TEXT NOT NULL DEFAULT '',
	turns           INTEGER NOT NULL DEFAULT 0,
	bank_accounts   TEXT NOT NULL DEFAULT '[]',
	upi_ids         TEXT NOT NULL DEFAULT '[]',
	phishing_links  TEXT NOT NULL DEFAULT '[]',
	phone_numbers   TEXT NOT NULL DEFAULT '[]',
	keywords        TEXT NOT NULL DEFAULT '[]',
	notes           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	completed_at    TIMESTAMP,
	callback_sent   INTEGER NOT NULL DEFAULT 0,
	callback_status INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sender     TEXT NOT NULL,
	text       TEXT NOT NULL,
	timestamp  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
`

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) UpsertSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(session_id, state, scam_detected, scam_confidence, scam_type, turns,
			 bank_accounts, upi_ids, phishing_links, phone_numbers, keywords,
			 notes, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state=excluded.state,
			scam_detected=excluded.scam_detected,
			scam_confidence=excluded.scam_confidence,
			scam_type=excluded.scam_type,
			turns=excluded.turns,
			bank_accounts=excluded.bank_accounts,
			upi_ids=excluded.upi_ids,
			phishing_links=excluded.phishing_links,
			phone_numbers=excluded.phone_numbers,
			keywords=excluded.keywords,
			notes=excluded.notes,
			completed_at=excluded.completed_at`,
		sess.ID, string(sess.State), sess.ScamDetected, sess.Confidence, sess.ScamType, sess.Turns,
		marshalList(sess.Intel.BankAccounts), marshalList(sess.Intel.PaymentHandles),
		marshalList(sess.Intel.Links), marshalList(sess.Intel.PhoneNumbers),
		marshalList(sess.Intel.Keywords),
		sess.Notes, sess.CreatedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLite) AppendMessage(ctx context.Context, msg *session.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender, text, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Sender), msg.Text, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *SQLite) MarkNotification(ctx context.Context, sessionID string, status int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET callback_sent = 1, callback_status = ? WHERE session_id = ?`,
		status, sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const sessionColumns = `session_id, state, scam_detected, scam_confidence, scam_type, turns,
	bank_accounts, upi_ids, phishing_links, phone_numbers, keywords,
	notes, created_at, completed_at, callback_sent, callback_status`

func (s *SQLite) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *SQLite) ListSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLite) GetMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, text, timestamp
		FROM messages WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []*session.Message
	for rows.Next() {
		var msg session.Message
		var sender string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &sender, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender = session.Sender(sender)
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *SQLite) Stats(ctx context.Context) (*session.Stats, error) {
	stats := &session.Stats{}
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(scam_detected), 0),
			COALESCE(SUM(turns), 0),
			COALESCE(SUM(CASE WHEN bank_accounts != '[]' OR upi_ids != '[]'
				OR phishing_links != '[]' OR phone_numbers != '[]' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN scam_detected = 1 THEN scam_confidence END), 0)
		FROM sessions`)
	if err := row.Scan(&stats.TotalSessions, &stats.ScamsDetected, &stats.TotalMessages,
		&stats.WithIntelligence, &stats.AverageConfidence); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if stats.TotalSessions > 0 {
		stats.DetectionRate = float64(stats.ScamsDetected) / float64(stats.TotalSessions) * 100
	}
	return stats, nil
}

func (s *SQLite) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id IN
			(SELECT session_id FROM sessions WHERE created_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("cleanup messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() {
	s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*session.Session, error) {
	var sess session.Session
	var state, accounts, handles, links, phones, keywords string
	var completedAt sql.NullTime

	err := row.Scan(&sess.ID, &state, &sess.ScamDetected, &sess.Confidence, &sess.ScamType,
		&sess.Turns, &accounts, &handles, &links, &phones, &keywords,
		&sess.Notes, &sess.CreatedAt, &completedAt, &sess.CallbackSent, &sess.CallbackStatus)
	if err != nil {
		return nil, err
	}

	sess.State = session.State(state)
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	sess.Intel = intel.Record{
		BankAccounts:   unmarshalList(accounts),
		PaymentHandles: unmarshalList(handles),
		Links:          unmarshalList(links),
		PhoneNumbers:   unmarshalList(phones),
		Keywords:       unmarshalList(keywords),
	}
	return &sess, nil
}

func marshalList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func unmarshalList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}
