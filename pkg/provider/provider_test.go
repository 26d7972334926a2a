package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSplitSystemPromotesFirstOnly(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleSystem, Content: "be verbose"},
		{Role: RoleAssistant, Content: "hi"},
	}

	system, rest := SplitSystem(msgs)
	if system != "be terse" {
		t.Errorf("expected first system prompt, got %q", system)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining messages, got %d", len(rest))
	}
	// The second system message is demoted, not dropped.
	if rest[1].Role != RoleUser || rest[1].Content != "be verbose" {
		t.Errorf("expected demoted system message as user, got %+v", rest[1])
	}
	if rest[2].Role != RoleAssistant {
		t.Errorf("expected assistant message preserved, got %+v", rest[2])
	}
}

func TestSplitSystemNoSystemMessage(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "hello"}}
	system, rest := SplitSystem(msgs)
	if system != "" {
		t.Errorf("expected empty system prompt, got %q", system)
	}
	if len(rest) != 1 {
		t.Errorf("expected 1 message, got %d", len(rest))
	}
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError("OpenAI", "gpt-4o", cause)

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "OpenAI") || !strings.Contains(msg, "gpt-4o") {
		t.Errorf("expected provider and model in message, got %q", msg)
	}
}

type fakeAdapter struct{ name string }

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) StreamComplete(_ context.Context, _ CompletionRequest) (Stream, error) {
	return nil, nil
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{name: "OpenAI"}, &fakeAdapter{name: "Gemini"})

	if _, ok := reg.Lookup("OpenAI"); !ok {
		t.Error("expected OpenAI to be registered")
	}
	if _, ok := reg.Lookup("Nope"); ok {
		t.Error("expected unknown provider to miss")
	}
	if n := len(reg.Names()); n != 2 {
		t.Errorf("expected 2 names, got %d", n)
	}
}
