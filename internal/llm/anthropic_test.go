package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const messageResponse = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "content": [{"type": "text", "text": "TC-001 "}, {"type": "text", "text": "login succeeds"}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 120, "output_tokens": 30}
}`

func newTestGateway(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *AnthropicGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewAnthropicGateway(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: timeout,
	})
	if err != nil {
		t.Fatalf("NewAnthropicGateway failed: %v", err)
	}
	return g
}

func TestNewAnthropicGateway_Defaults(t *testing.T) {
	g, err := NewAnthropicGateway(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropicGateway failed: %v", err)
	}

	if g.Model() != string(DefaultModel) {
		t.Errorf("Model = %q, want %q", g.Model(), DefaultModel)
	}
	if g.Timeout() != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", g.Timeout(), defaultTimeout)
	}
	if g.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewAnthropicGateway_NoAPIKey(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)
	os.Unsetenv("ANTHROPIC_API_KEY")

	_, err := NewAnthropicGateway(AnthropicConfig{})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestBedrockModelID(t *testing.T) {
	tests := []struct {
		model anthropic.Model
		want  anthropic.Model
	}{
		{DefaultModel, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{anthropic.ModelClaudeHaiku4_5_20251001, "us.anthropic.claude-haiku-4-5-20251001-v1:0"},
		{"us.anthropic.claude-opus-4-1-20250805-v1:0", "us.anthropic.claude-opus-4-1-20250805-v1:0"},
		{"my-custom-model", "my-custom-model"},
	}
	for _, tt := range tests {
		if got := bedrockModelID(tt.model); got != tt.want {
			t.Errorf("bedrockModelID(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestAnthropicGateway_Generate(t *testing.T) {
	var gotBody string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, messageResponse)
	}, time.Second)

	gen, err := g.Generate(context.Background(), "You are a QA analyst.", "Analyze the login page")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if gen.Content != "TC-001 login succeeds" {
		t.Errorf("Content = %q", gen.Content)
	}
	if gen.TokenCount != 150 {
		t.Errorf("TokenCount = %d, want 150", gen.TokenCount)
	}
	if !strings.Contains(gotBody, "You are a QA analyst.") {
		t.Error("system prompt not sent")
	}
	if !strings.Contains(gotBody, "Analyze the login page") {
		t.Error("user message not sent")
	}

	in, out := g.Tracker().Total()
	if in != 120 || out != 30 {
		t.Errorf("tracker = %d/%d, want 120/30", in, out)
	}
}

func TestAnthropicGateway_Generate_NoSystemPrompt(t *testing.T) {
	var gotBody string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, messageResponse)
	}, time.Second)

	if _, err := g.Generate(context.Background(), "", "hello"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if strings.Contains(gotBody, `"system"`) {
		t.Errorf("empty system prompt should be omitted, body: %s", gotBody)
	}
}

func TestAnthropicGateway_Generate_Timeout(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := g.Generate(context.Background(), "", "slow")
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestAnthropicGateway_Generate_ProviderError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}, time.Second)

	_, err := g.Generate(context.Background(), "", "hello")
	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("err = %v, want *InvocationError", err)
	}
	if IsTimeout(err) {
		t.Error("provider error must not be reported as timeout")
	}
}

func TestAnthropicGateway_Generate_ParentCancelled(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "", "hello")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if IsTimeout(err) {
		t.Error("cancelled parent context must not be reported as timeout")
	}
}
