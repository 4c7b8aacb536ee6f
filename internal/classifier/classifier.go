package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/anthropic"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

// historyWindow bounds how much conversation context goes into the prompt.
const historyWindow = 5

const classifyTimeout = 20 * time.Second

// Completer is the generative-text call the classifier depends on.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int, temperature float64) (string, error)
}

// Source records which path produced a verdict, so fallback use can be
// logged without being conflated with a model answer.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Verdict is the classification outcome for one message.
type Verdict struct {
	IsScam     bool
	Confidence float64
	ScamType   string
	Reasoning  string
	Source     Source
}

type Classifier struct {
	llm    Completer
	logger *slog.Logger
}

// New builds a classifier. A nil llm means every call uses the keyword
// fallback, which keeps the engine functional without the model service.
func New(llm Completer, logger *slog.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

// Classify decides scam-likelihood for the latest message given recent
// history. Model faults never surface: any transport error or unparseable
// response resolves through the deterministic keyword scorer.
func (c *Classifier) Classify(ctx context.Context, message string, history []session.Message) Verdict {
	if c.llm == nil {
		return Fallback(message)
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	prompt := buildPrompt(message, history)
	raw, err := c.llm.Complete(ctx, classifySystemPrompt, []anthropic.Message{{Role: "user", Content: prompt}}, 500, 0)
	if err != nil {
		c.logger.Warn("classification model call failed, using keyword fallback", "error", err)
		return Fallback(message)
	}

	v, ok := parseVerdict(raw)
	if !ok {
		c.logger.Warn("unparseable classification response, using keyword fallback", "raw_len", len(raw))
		return Fallback(message)
	}
	return v
}

func buildPrompt(message string, history []session.Message) string {
	var b strings.Builder
	b.WriteString("Analyze this message for scam indicators.\n\nConversation:\n")
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
	}
	fmt.Fprintf(&b, "%s: %s\n", session.SenderSuspect, message)
	return b.String()
}

// parseVerdict extracts the first JSON object from the model output and maps
// missing fields to safe defaults.
func parseVerdict(raw string) (Verdict, bool) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return Verdict{}, false
	}

	var parsed struct {
		IsScam     *bool    `json:"is_scam"`
		Confidence *float64 `json:"confidence"`
		ScamType   string   `json:"scam_type"`
		Reasoning  string   `json:"reasoning"`
	}
	if err := json.Unmarshal(obj, &parsed); err != nil {
		return Verdict{}, false
	}

	v := Verdict{
		IsScam:     false,
		Confidence: 0.5,
		ScamType:   "unknown",
		Reasoning:  parsed.Reasoning,
		Source:     SourceModel,
	}
	if parsed.IsScam != nil {
		v.IsScam = *parsed.IsScam
	}
	if parsed.Confidence != nil {
		v.Confidence = *parsed.Confidence
	}
	if parsed.ScamType != "" {
		v.ScamType = parsed.ScamType
	}
	return v, true
}

func firstJSONObject(s string) ([]byte, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(s[start : end+1]), true
}
