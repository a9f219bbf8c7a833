package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type fakeCompletions struct {
	mu        sync.Mutex
	statuses  []int
	content   string
	calls     int
	maxTokens []float64
	system    []string
}

func (f *fakeCompletions) handle(c echo.Context) error {
	var body struct {
		MaxTokens float64 `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": map[string]any{"message": err.Error()}})
	}

	f.mu.Lock()
	f.calls++
	f.maxTokens = append(f.maxTokens, body.MaxTokens)
	for _, message := range body.Messages {
		if message.Role == "system" {
			f.system = append(f.system, message.Content)
		}
	}
	status := http.StatusOK
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
	}
	f.mu.Unlock()

	if status != http.StatusOK {
		return c.JSON(status, map[string]any{
			"error": map[string]any{"message": "upstream failure", "type": "server_error"},
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1760000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": f.content},
		}},
	})
}

func (f *fakeCompletions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompletions) budgets() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.maxTokens...)
}

func (f *fakeCompletions) systemPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.system...)
}

func newTestClient(t *testing.T, fake *fakeCompletions) *Client {
	t.Helper()

	e := echo.New()
	e.HideBanner = true
	e.POST("/chat/completions", fake.handle)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Model:     "test-model",
		MaxTokens: 8000,
		RetryWait: time.Millisecond,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected missing api key to be rejected")
	}
}

func TestClientExtract_ReturnsRawText(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{content: "Here are the events:\n```json\n[]\n```"}
	client := newTestClient(t, fake)

	text, err := client.Extract(context.Background(), "Some listing page text", "full document")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != fake.content {
		t.Fatalf("unexpected text: %q", text)
	}
	if fake.callCount() != 1 {
		t.Fatalf("expected one call, got %d", fake.callCount())
	}
	if fake.budgets()[0] != minFullDocTokens {
		t.Fatalf("expected short document budget %d, got %v", minFullDocTokens, fake.budgets()[0])
	}
}

func TestClientExtract_WindowGetsFullBudget(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{content: "[]"}
	client := newTestClient(t, fake)

	if _, err := client.Extract(context.Background(), "window text", "part 2 of 3"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if fake.budgets()[0] != 8000 {
		t.Fatalf("expected full budget for window, got %v", fake.budgets()[0])
	}
}

func TestClientExtract_RetriesOnceOnServerError(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{statuses: []int{http.StatusInternalServerError}, content: "[]"}
	client := newTestClient(t, fake)

	if _, err := client.Extract(context.Background(), "page", "full document"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if fake.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", fake.callCount())
	}
}

func TestClientExtract_GivesUpAfterOneRetry(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{statuses: []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway}}
	client := newTestClient(t, fake)

	_, err := client.Extract(context.Background(), "page", "part 1 of 2")
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Label != "part 1 of 2" {
		t.Fatalf("expected CallError for the window, got %v", err)
	}
	if fake.callCount() != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", fake.callCount())
	}
}

func TestClientExtract_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{statuses: []int{http.StatusBadRequest}}
	client := newTestClient(t, fake)

	_, err := client.Extract(context.Background(), "page", "full document")
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if fake.callCount() != 1 {
		t.Fatalf("expected no retry for 400, got %d calls", fake.callCount())
	}
}

func TestClientExtract_AddsLanguageHint(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{content: "[]"}
	client := newTestClient(t, fake)

	page := "Únete a nosotros para la conferencia de desarrolladores más grande de la ciudad, con talleres y charlas durante todo el fin de semana."
	if _, err := client.Extract(context.Background(), page, "full document"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if prompts := fake.systemPrompts(); len(prompts) != 1 || prompts[0] == systemPrompt {
		t.Fatalf("expected language hint in system prompt, got %q", prompts)
	}
}

func TestClientExtract_EmptyDocument(t *testing.T) {
	t.Parallel()

	fake := &fakeCompletions{}
	client := newTestClient(t, fake)

	if _, err := client.Extract(context.Background(), "   ", "full document"); err == nil {
		t.Fatalf("expected empty document to fail")
	}
	if fake.callCount() != 0 {
		t.Fatalf("expected no call for empty document")
	}
}
