package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/anthropic"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

// historyWindow bounds how much conversation goes into the reply prompt.
const historyWindow = 4

const replyTimeout = 20 * time.Second

// Completer is the generative-text call the responder depends on.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int, temperature float64) (string, error)
}

// Responder generates the next in-character reply. The persona hardens with
// turn count and never regresses, which keeps long engagements plausible.
type Responder struct {
	llm    Completer
	logger *slog.Logger
}

func New(llm Completer, logger *slog.Logger) *Responder {
	return &Responder{llm: llm, logger: logger}
}

// Stage maps turn count to the persona description used in the prompt.
func Stage(turns int) string {
	switch {
	case turns <= 2:
		return "confused and worried person who just received this message"
	case turns <= 5:
		return "concerned person asking clarifying questions"
	case turns <= 10:
		return "person who seems willing to help but needs guidance"
	default:
		return "person getting slightly impatient but still engaged"
	}
}

// Reply produces one short in-character message. It never fails: on any
// model fault it returns a canned stage-appropriate line, reporting fallback
// use in the second return value.
func (r *Responder) Reply(ctx context.Context, turns int, suspectMessage string, history []session.Message) (string, bool) {
	if r.llm == nil {
		return FallbackReply(turns), true
	}

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	prompt := buildPrompt(turns, suspectMessage, history)
	raw, err := r.llm.Complete(ctx, "", []anthropic.Message{{Role: "user", Content: prompt}}, 150, 0.8)
	if err != nil {
		r.logger.Warn("reply generation failed, using canned response", "error", err, "turns", turns)
		return FallbackReply(turns), true
	}

	reply := strings.Trim(strings.TrimSpace(raw), `"'`)
	if reply == "" {
		return FallbackReply(turns), true
	}
	return reply, false
}

func buildPrompt(turns int, suspectMessage string, history []session.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are roleplaying as a %s. ", Stage(turns))
	b.WriteString("Your goal is to keep the conversation going and extract information. ")
	b.WriteString("Be natural, brief (1-2 sentences), and slightly gullible.\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation:\n")
		window := history
		if len(window) > historyWindow {
			window = window[len(window)-historyWindow:]
		}
		for _, m := range window {
			who := "Them"
			if m.Sender == session.SenderAgent {
				who = "You"
			}
			fmt.Fprintf(&b, "%s: %s\n", who, m.Text)
		}
	}

	fmt.Fprintf(&b, "Them: %s\n\n", suspectMessage)
	b.WriteString("Respond naturally. Show concern but don't be suspicious. ")
	b.WriteString("Ask questions that might reveal phone numbers, links, account details, or instructions.")
	return b.String()
}

// cannedReplies is indexed by stage; the two variants alternate by turn
// parity so consecutive fallbacks don't repeat verbatim.
var cannedReplies = map[int][2]string{
	1: {"Oh no! What's wrong with my account?", "Really? What should I do?"},
	2: {"What information do you need?", "How can I fix this?"},
	3: {"Should I click something? Where?", "What's the next step?"},
	4: {"Do you need my details?", "What do I need to send?"},
	5: {"Okay, how do I proceed?", "What else do you need from me?"},
}

// FallbackReply picks the canned line for the given turn count.
func FallbackReply(turns int) string {
	stage := turns/2 + 1
	if stage > 5 {
		stage = 5
	}
	return cannedReplies[stage][turns%2]
}
