package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/intel"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

// StatusFailed is the sentinel recorded when delivery never produced an
// HTTP status.
const StatusFailed = -1

const maxAttempts = 2

// Notifier delivers a completed session's extracted intelligence to the
// external result endpoint. Delivery is best-effort: the caller records the
// outcome but the session is complete regardless.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func New(url string, logger *slog.Logger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type payload struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Record `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

// Send posts the final result and returns the response status code, or
// StatusFailed with an error when no response was obtained.
func (n *Notifier) Send(ctx context.Context, sess *session.Session) (int, error) {
	body, err := json.Marshal(payload{
		SessionID:              sess.ID,
		ScamDetected:           sess.ScamDetected,
		TotalMessagesExchanged: sess.Turns,
		ExtractedIntelligence:  sess.Intel.Canonical(),
		AgentNotes:             sess.Notes,
	})
	if err != nil {
		return StatusFailed, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return StatusFailed, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return StatusFailed, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("post final result: %w", err)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.logger.Info("final result delivered",
				"session_id", sess.ID,
				"status", resp.StatusCode,
				"response_len", len(respBody),
			)
		} else {
			n.logger.Warn("final result rejected",
				"session_id", sess.ID,
				"status", resp.StatusCode,
				"response_len", len(respBody),
			)
		}
		return resp.StatusCode, nil
	}

	return StatusFailed, lastErr
}
