package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/intel"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

// backends returns every Store implementation that can run without external
// infrastructure. The Postgres adapter shares the column semantics and is
// covered by integration environments.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "lure.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(sq.Close)
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func testSession(id string, created time.Time) *session.Session {
	sess := session.New(id, created)
	sess.State = session.StateConfirmed
	sess.ScamDetected = true
	sess.Confidence = 0.85
	sess.ScamType = "bank_fraud"
	sess.Turns = 7
	sess.Notes = "bank_fraud detected (85%)"
	sess.Intel = intel.Record{
		BankAccounts:   []string{"123456789012"},
		PaymentHandles: []string{"a@paytm"},
		Links:          []string{"http://fake-bank.com"},
		Keywords:       []string{"urgent", "verify"},
	}
	return sess
}

func TestStore_GetMissingSession(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.GetSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_UpsertRoundTrip(t *testing.T) {
	created := time.Now().UTC().Truncate(time.Second)
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testSession("s1", created)
			completed := created.Add(5 * time.Minute)
			want.CompletedAt = &completed

			if err := st.UpsertSession(ctx, want); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			got, err := st.GetSession(ctx, "s1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.State != want.State || got.ScamDetected != want.ScamDetected ||
				got.Confidence != want.Confidence || got.ScamType != want.ScamType ||
				got.Turns != want.Turns || got.Notes != want.Notes {
				t.Errorf("session mismatch: got %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("created at = %v, want %v", got.CreatedAt, created)
			}
			if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
				t.Errorf("completed at = %v, want %v", got.CompletedAt, completed)
			}
			if got.Intel.ItemCount() != 3 || len(got.Intel.Keywords) != 2 {
				t.Errorf("intel mismatch: %+v", got.Intel)
			}
		})
	}
}

func TestStore_UpsertPreservesNotificationAudit(t *testing.T) {
	created := time.Now().UTC().Truncate(time.Second)
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := testSession("s1", created)

			if err := st.UpsertSession(ctx, sess); err != nil {
				t.Fatal(err)
			}
			if err := st.MarkNotification(ctx, "s1", 200); err != nil {
				t.Fatalf("mark notification: %v", err)
			}

			// A later state write must not clear the delivery audit.
			sess.Turns = 8
			if err := st.UpsertSession(ctx, sess); err != nil {
				t.Fatal(err)
			}

			got, err := st.GetSession(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Turns != 8 {
				t.Errorf("turns = %d, want 8", got.Turns)
			}
			if !got.CallbackSent || got.CallbackStatus != 200 {
				t.Errorf("audit lost on upsert: sent=%v status=%d", got.CallbackSent, got.CallbackStatus)
			}
		})
	}
}

func TestStore_MarkNotificationMissingSession(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.MarkNotification(context.Background(), "nope", 200); !errors.Is(err, ErrNotFound) {
				t.Errorf("got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_MessagesOrdered(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.UpsertSession(ctx, testSession("s1", base)); err != nil {
				t.Fatal(err)
			}

			texts := []string{"first", "second", "third"}
			for i, text := range texts {
				msg := &session.Message{
					ID:        text,
					SessionID: "s1",
					Sender:    session.SenderSuspect,
					Text:      text,
					Timestamp: base.Add(time.Duration(i) * time.Second),
				}
				if err := st.AppendMessage(ctx, msg); err != nil {
					t.Fatalf("append %q: %v", text, err)
				}
			}

			msgs, err := st.GetMessages(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != len(texts) {
				t.Fatalf("got %d messages, want %d", len(msgs), len(texts))
			}
			for i, want := range texts {
				if msgs[i].Text != want {
					t.Errorf("message %d = %q, want %q", i, msgs[i].Text, want)
				}
			}
		})
	}
}

func TestStore_ListSessionsNewestFirstWithLimit(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"old", "mid", "new"} {
				if err := st.UpsertSession(ctx, testSession(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
					t.Fatal(err)
				}
			}

			got, err := st.ListSessions(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
				ids := make([]string, len(got))
				for i, s := range got {
					ids[i] = s.ID
				}
				t.Errorf("got %v, want [new mid]", ids)
			}
		})
	}
}

func TestStore_Stats(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			scam := testSession("scam", base)
			if err := st.UpsertSession(ctx, scam); err != nil {
				t.Fatal(err)
			}

			benign := session.New("benign", base)
			benign.Turns = 2
			if err := st.UpsertSession(ctx, benign); err != nil {
				t.Fatal(err)
			}

			stats, err := st.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if stats.TotalSessions != 2 || stats.ScamsDetected != 1 {
				t.Errorf("counts: %+v", stats)
			}
			if stats.TotalMessages != scam.Turns+benign.Turns {
				t.Errorf("total messages = %d", stats.TotalMessages)
			}
			if stats.WithIntelligence != 1 {
				t.Errorf("sessions with intelligence = %d, want 1", stats.WithIntelligence)
			}
			if stats.AverageConfidence != 0.85 {
				t.Errorf("average confidence = %v, want 0.85", stats.AverageConfidence)
			}
			if stats.DetectionRate != 50 {
				t.Errorf("detection rate = %v, want 50", stats.DetectionRate)
			}
		})
	}
}

func TestStore_CleanupOlderThan(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := testSession("old", time.Now().Add(-48*time.Hour))
			fresh := testSession("fresh", time.Now())
			if err := st.UpsertSession(ctx, old); err != nil {
				t.Fatal(err)
			}
			if err := st.UpsertSession(ctx, fresh); err != nil {
				t.Fatal(err)
			}
			if err := st.AppendMessage(ctx, &session.Message{
				ID: "m1", SessionID: "old", Sender: session.SenderSuspect,
				Text: "hi", Timestamp: time.Now().Add(-48 * time.Hour),
			}); err != nil {
				t.Fatal(err)
			}

			deleted, err := st.CleanupOlderThan(ctx, 24*time.Hour)
			if err != nil {
				t.Fatal(err)
			}
			if deleted != 1 {
				t.Errorf("deleted = %d, want 1", deleted)
			}
			if _, err := st.GetSession(ctx, "old"); !errors.Is(err, ErrNotFound) {
				t.Errorf("old session survived cleanup: %v", err)
			}
			if _, err := st.GetSession(ctx, "fresh"); err != nil {
				t.Errorf("fresh session removed: %v", err)
			}
			if msgs, _ := st.GetMessages(ctx, "old"); len(msgs) != 0 {
				t.Errorf("orphaned messages remain: %d", len(msgs))
			}
		})
	}
}

func TestOpen_BackendSelection(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	mem, err := Open(ctx, "", logger)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := mem.(*Memory); !ok {
		t.Errorf("empty URL should select the in-memory store, got %T", mem)
	}

	sq, err := Open(ctx, filepath.Join(t.TempDir(), "sel.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sq.Close()
	if _, ok := sq.(*SQLite); !ok {
		t.Errorf("file path should select the sqlite store, got %T", sq)
	}
}
