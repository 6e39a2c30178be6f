package openai

import (
	"errors"
	"testing"

	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(llm.ProviderOptions{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}

	var ce *chat.CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *chat.CompletionError", err)
	}
	if ce.Detail.Type != chat.ErrorTypeInit {
		t.Errorf("error type = %q, want init_error", ce.Detail.Type)
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(llm.ProviderOptions{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if p.Name() != "openai" {
		t.Errorf("name = %q", p.Name())
	}

	caps := p.Capabilities()
	if !caps.Streaming || !caps.Transcription || !caps.Speech {
		t.Errorf("capabilities = %+v, want all true", caps)
	}
}

func TestNew_CapabilitiesSurviveDispatcherResolution(t *testing.T) {
	p, err := New(llm.ProviderOptions{APIKey: "sk-test", Model: "gpt-4"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	// The dispatcher intersects declared flags with interface conformance;
	// the full surface must survive intact.
	c, err := llm.NewWithProvider(p, chat.Options{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("NewWithProvider: %v", err)
	}

	caps := c.Capabilities()
	if !caps.Streaming || !caps.Transcription || !caps.Speech {
		t.Errorf("resolved capabilities = %+v, want all true", caps)
	}
}
