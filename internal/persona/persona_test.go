package persona

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/lure/internal/anthropic"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedCompleter struct {
	reply string
	err   error
}

func (f fixedCompleter) Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int, temperature float64) (string, error) {
	return f.reply, f.err
}

func TestStage_Progression(t *testing.T) {
	tests := []struct {
		turns int
		want  string
	}{
		{0, "confused and worried person who just received this message"},
		{2, "confused and worried person who just received this message"},
		{3, "concerned person asking clarifying questions"},
		{5, "concerned person asking clarifying questions"},
		{6, "person who seems willing to help but needs guidance"},
		{10, "person who seems willing to help but needs guidance"},
		{11, "person getting slightly impatient but still engaged"},
		{40, "person getting slightly impatient but still engaged"},
	}
	for _, tt := range tests {
		if got := Stage(tt.turns); got != tt.want {
			t.Errorf("Stage(%d) = %q, want %q", tt.turns, got, tt.want)
		}
	}
}

func TestReply_ModelAnswerTrimmed(t *testing.T) {
	r := New(fixedCompleter{reply: `  "Oh dear, which account is that?"  `}, discardLogger())

	reply, fallback := r.Reply(context.Background(), 1, "your account is blocked", nil)
	if fallback {
		t.Fatal("expected model reply, got fallback")
	}
	if reply != "Oh dear, which account is that?" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestReply_ErrorUsesCannedLine(t *testing.T) {
	r := New(fixedCompleter{err: errors.New("connection refused")}, discardLogger())

	reply, fallback := r.Reply(context.Background(), 1, "hello", nil)
	if !fallback {
		t.Fatal("expected fallback")
	}
	if reply != FallbackReply(1) {
		t.Errorf("unexpected canned reply: %q", reply)
	}
}

func TestReply_EmptyModelOutputUsesCannedLine(t *testing.T) {
	r := New(fixedCompleter{reply: `""`}, discardLogger())

	reply, fallback := r.Reply(context.Background(), 3, "hello", nil)
	if !fallback {
		t.Fatal("expected fallback on empty output")
	}
	if reply != FallbackReply(3) {
		t.Errorf("unexpected canned reply: %q", reply)
	}
}

func TestReply_NilCompleter(t *testing.T) {
	r := New(nil, discardLogger())
	reply, fallback := r.Reply(context.Background(), 4, "hello", nil)
	if !fallback || reply == "" {
		t.Errorf("expected canned reply, got %q fallback=%v", reply, fallback)
	}
}

func TestFallbackReply_StageAndParity(t *testing.T) {
	tests := []struct {
		turns int
		want  string
	}{
		{0, "Oh no! What's wrong with my account?"},
		{1, "Really? What should I do?"},
		{2, "What information do you need?"},
		{3, "How can I fix this?"},
		{4, "Should I click something? Where?"},
		{8, "Okay, how do I proceed?"},
		{9, "What else do you need from me?"},
		{20, "Okay, how do I proceed?"},
		{21, "What else do you need from me?"},
	}
	for _, tt := range tests {
		if got := FallbackReply(tt.turns); got != tt.want {
			t.Errorf("FallbackReply(%d) = %q, want %q", tt.turns, got, tt.want)
		}
	}
}

func TestBuildPrompt_LabelsAndWindow(t *testing.T) {
	history := []session.Message{
		{Sender: session.SenderSuspect, Text: "ancient"},
		{Sender: session.SenderSuspect, Text: "your account is blocked"},
		{Sender: session.SenderAgent, Text: "oh no, what happened?"},
		{Sender: session.SenderSuspect, Text: "send your otp"},
		{Sender: session.SenderAgent, Text: "where do I find that?"},
	}

	prompt := buildPrompt(4, "hurry up", history)
	if strings.Contains(prompt, "ancient") {
		t.Error("prompt includes history beyond the window")
	}
	if !strings.Contains(prompt, "You: oh no, what happened?") {
		t.Error("agent lines should be labeled You")
	}
	if !strings.Contains(prompt, "Them: send your otp") {
		t.Error("suspect lines should be labeled Them")
	}
	if !strings.Contains(prompt, "Them: hurry up") {
		t.Error("prompt missing latest suspect message")
	}
}
