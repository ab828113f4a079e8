package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

const okCompletion = `{"id":"gen-1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello back!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`

func newTestOpenRouter(url string) *OpenRouterProvider {
	return NewOpenRouterProvider(Settings{
		APIKey:    "sk-or-test",
		APIBase:   url,
		ModelType: "deepseek/deepseek-r1:free",
		Title:     "nagochat",
		Referer:   "https://example.test/widget",
	})
}

// TestOpenRouterRequestShape captures the outgoing request and checks headers
// and the single-turn body.
func TestOpenRouterRequestShape(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okCompletion)
	}))
	defer server.Close()

	p := newTestOpenRouter(server.URL)
	resp, err := p.Chat(context.Background(), &Request{Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "Hello back!" {
		t.Fatalf("Content = %q, want %q", resp.Content, "Hello back!")
	}
	if resp.FinishReason != "stop" || resp.Usage.TotalTokens != 5 {
		t.Fatalf("response metadata = %+v", resp)
	}

	if got := gotHeaders.Get("Authorization"); got != "Bearer sk-or-test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := gotHeaders.Get("X-Title"); got != "nagochat" {
		t.Errorf("X-Title = %q", got)
	}
	if got := gotHeaders.Get("HTTP-Referer"); got != "https://example.test/widget" {
		t.Errorf("HTTP-Referer = %q", got)
	}

	if gotBody["model"] != "deepseek/deepseek-r1:free" {
		t.Errorf("model = %v", gotBody["model"])
	}
	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v, want exactly one turn", gotBody["messages"])
	}
	turn := msgs[0].(map[string]any)
	if turn["role"] != "user" || turn["content"] != "Hi" {
		t.Errorf("turn = %v", turn)
	}
	if _, ok := gotBody["max_tokens"]; ok {
		t.Error("max_tokens should be omitted when unset")
	}
}

func TestOpenRouterOptionalFields(t *testing.T) {
	p := NewOpenRouterProvider(Settings{APIKey: "k", ModelType: "m", MaxTokens: 256, Temperature: 0.5})
	body, err := p.buildBody(&Request{Messages: []Message{UserMessage("x")}})
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["max_tokens"] != float64(256) {
		t.Errorf("max_tokens = %v", parsed["max_tokens"])
	}
	if parsed["temperature"] != 0.5 {
		t.Errorf("temperature = %v", parsed["temperature"])
	}
}

func TestOpenRouterNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	_, err := newTestOpenRouter(server.URL).Chat(context.Background(), &Request{Messages: []Message{UserMessage("Hi")}})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d", statusErr.StatusCode)
	}
}

func TestOpenRouterErrorBodyClippedOnRuneBoundary(t *testing.T) {
	body := "a" + strings.Repeat("é", 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	_, err := newTestOpenRouter(server.URL).Chat(context.Background(), &Request{Messages: []Message{UserMessage("Hi")}})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if len(statusErr.Body) > maxErrorBodyChars {
		t.Fatalf("len(Body) = %d, want <= %d", len(statusErr.Body), maxErrorBodyChars)
	}
	if !utf8.ValidString(statusErr.Body) {
		t.Fatalf("Body is not valid UTF-8: %q", statusErr.Body[len(statusErr.Body)-4:])
	}
	if !strings.HasPrefix(body, statusErr.Body) || len(statusErr.Body) != maxErrorBodyChars-1 {
		t.Fatalf("Body = %d bytes, want the first %d bytes of the response", len(statusErr.Body), maxErrorBodyChars-1)
	}
}

func TestClipUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "héllo", 10, "héllo"},
		{"ascii", "hello", 3, "hel"},
		{"mid rune", "hé", 2, "h"},
		{"on boundary", "hé", 3, "hé"},
		{"cjk", "你好", 4, "你"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clipUTF8(tt.in, tt.max); got != tt.want {
				t.Fatalf("clipUTF8(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestOpenRouterTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestOpenRouter(url).Chat(context.Background(), &Request{Messages: []Message{UserMessage("Hi")}})
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestParseChatCompletion(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
		apiErr  bool
	}{
		{name: "ok", body: okCompletion, want: "Hello back!"},
		{name: "empty content", body: `{"choices":[{"message":{"content":""}}]}`, want: ""},
		{name: "not json", body: `<html>bad gateway</html>`, wantErr: ErrMalformedResponse},
		{name: "no choices field", body: `{"id":"x"}`, wantErr: ErrMalformedResponse},
		{name: "empty choices", body: `{"choices":[]}`, wantErr: ErrNoChoices},
		{name: "null content", body: `{"choices":[{"message":{"content":null}}]}`, wantErr: ErrMalformedResponse},
		{name: "missing message", body: `{"choices":[{"index":0}]}`, wantErr: ErrMalformedResponse},
		{name: "api error", body: `{"error":{"message":"invalid key","type":"auth"}}`, apiErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseChatCompletion([]byte(tt.body))
			switch {
			case tt.apiErr:
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("error = %v, want *APIError", err)
				}
				if apiErr.Message != "invalid key" {
					t.Fatalf("Message = %q", apiErr.Message)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Content != tt.want {
					t.Fatalf("Content = %q, want %q", resp.Content, tt.want)
				}
			}
		})
	}
}
