package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/lure/internal/intel"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

// Postgres is the pgx-backed Store for shared deployments.
type Postgres struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	scam_detected   BOOLEAN NOT NULL DEFAULT FALSE,
	scam_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	scam_type       TEXT NOT NULL DEFAULT '',
	turns           INTEGER NOT NULL DEFAULT 0,
	bank_accounts   TEXT NOT NULL DEFAULT '[]',
	upi_ids         TEXT NOT NULL DEFAULT '[]',
	phishing_links  TEXT NOT NULL DEFAULT '[]',
	phone_numbers   TEXT NOT NULL DEFAULT '[]',
	keywords        TEXT NOT NULL DEFAULT '[]',
	notes           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ,
	callback_sent   BOOLEAN NOT NULL DEFAULT FALSE,
	callback_status INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sender     TEXT NOT NULL,
	text       TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
`

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) UpsertSession(ctx context.Context, sess *session.Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions
			(session_id, state, scam_detected, scam_confidence, scam_type, turns,
			 bank_accounts, upi_ids, phishing_links, phone_numbers, keywords,
			 notes, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			scam_detected = EXCLUDED.scam_detected,
			scam_confidence = EXCLUDED.scam_confidence,
			scam_type = EXCLUDED.scam_type,
			turns = EXCLUDED.turns,
			bank_accounts = EXCLUDED.bank_accounts,
			upi_ids = EXCLUDED.upi_ids,
			phishing_links = EXCLUDED.phishing_links,
			phone_numbers = EXCLUDED.phone_numbers,
			keywords = EXCLUDED.keywords,
			notes = EXCLUDED.notes,
			completed_at = EXCLUDED.completed_at`,
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

func (p *Postgres) AppendMessage(ctx context.Context, msg *session.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, session_id, sender, text, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SessionID, string(msg.Sender), msg.Text, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (p *Postgres) MarkNotification(ctx context.Context, sessionID string, status int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE sessions SET callback_sent = TRUE, callback_status = $1 WHERE session_id = $2`,
		status, sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id)
	sess, err := scanPgSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func (p *Postgres) ListSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (p *Postgres) GetMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, sender, text, timestamp
		FROM messages WHERE session_id = $1 ORDER BY timestamp ASC`, sessionID)
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

func (p *Postgres) Stats(ctx context.Context) (*session.Stats, error) {
	stats := &session.Stats{}
	row := p.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN scam_detected THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(turns), 0),
			COALESCE(SUM(CASE WHEN bank_accounts != '[]' OR upi_ids != '[]'
				OR phishing_links != '[]' OR phone_numbers != '[]' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN scam_detected THEN scam_confidence END), 0)
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

func (p *Postgres) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	if _, err := p.pool.Exec(ctx, `
		DELETE FROM messages WHERE session_id IN
			(SELECT session_id FROM sessions WHERE created_at < $1)`, cutoff); err != nil {
		return 0, fmt.Errorf("cleanup messages: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func scanPgSession(row pgx.Row) (*session.Session, error) {
	var sess session.Session
	var state, accounts, handles, links, phones, keywords string
	var completedAt *time.Time

	err := row.Scan(&sess.ID, &state, &sess.ScamDetected, &sess.Confidence, &sess.ScamType,
		&sess.Turns, &accounts, &handles, &links, &phones, &keywords,
		&sess.Notes, &sess.CreatedAt, &completedAt, &sess.CallbackSent, &sess.CallbackStatus)
	if err != nil {
		return nil, err
	}

	sess.State = session.State(state)
	sess.CompletedAt = completedAt
	sess.Intel = intel.Record{
		BankAccounts:   unmarshalList(accounts),
		PaymentHandles: unmarshalList(handles),
		Links:          unmarshalList(links),
		PhoneNumbers:   unmarshalList(phones),
		Keywords:       unmarshalList(keywords),
	}
	return &sess, nil
}
