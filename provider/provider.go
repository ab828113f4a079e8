// Package provider defines the completion provider interface and its
// implementations.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider is the interface for completion endpoints.
type Provider interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// Request represents a chat completion request.
type Request struct {
	Messages []Message
}

// Message is one conversational turn in OpenAI wire format.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Response represents a chat completion response.
type Response struct {
	Content      string // reply text of the first choice
	FinishReason string
	Usage        Usage
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

var (
	// ErrNoChoices is returned when the endpoint answers with an empty choice list.
	ErrNoChoices = errors.New("no choices in response")
	// ErrMalformedResponse is returned when the body does not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %d %s", e.StatusCode, e.Body)
}

// APIError is returned when the endpoint reports an error object in a 2xx body.
type APIError struct {
	Message string
	Type    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error (%s): %s", e.Type, e.Message)
	}
	return "API error: " + e.Message
}

// Settings carries what a constructor needs to build a provider.
type Settings struct {
	APIKey      string
	APIBase     string
	ModelType   string
	ModelName   string // defaults to ModelType
	MaxTokens   int
	Temperature float64
	Title       string // client identifier header
	Referer     string
	Timeout     time.Duration
}

func (s Settings) model() string {
	if strings.TrimSpace(s.ModelName) != "" {
		return s.ModelName
	}
	return s.ModelType
}

// Constructor builds a provider from settings.
type Constructor func(s Settings) Provider

// Registration defines metadata and constructor for a provider.
type Registration struct {
	EnvKey       string
	EnvBase      string
	DefaultModel string
	Constructor  Constructor
}

var registry = map[string]Registration{}

// RegisterProvider registers provider metadata and constructor.
func RegisterProvider(name string, reg Registration) {
	name = strings.TrimSpace(name)
	if name == "" || reg.Constructor == nil {
		return
	}
	reg.EnvKey = strings.TrimSpace(reg.EnvKey)
	reg.EnvBase = strings.TrimSpace(reg.EnvBase)
	registry[name] = reg
}

// Lookup returns the registration for a provider name.
func Lookup(name string) (Registration, bool) {
	reg, ok := registry[name]
	return reg, ok
}

// SupportedProviders returns all registered provider names in sorted order.
func SupportedProviders() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named provider.
func New(name string, s Settings) (Provider, error) {
	reg, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (supported: %s)", name, strings.Join(SupportedProviders(), ", "))
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, fmt.Errorf("no API key configured for provider %s (set %s)", name, reg.EnvKey)
	}
	if strings.TrimSpace(s.ModelType) == "" {
		s.ModelType = reg.DefaultModel
	}
	return reg.Constructor(s), nil
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

func inputChars(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Role) + len(m.Content)
	}
	return total
}
