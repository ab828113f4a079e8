package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/linanwx/nagochat/logger"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1/chat/completions"
	openRouterDefaultModel = "deepseek/deepseek-r1:free"
	maxErrorBodyChars      = 512
)

func init() {
	RegisterProvider("openrouter", Registration{
		EnvKey:       "OPENROUTER_API_KEY",
		EnvBase:      "OPENROUTER_API_BASE",
		DefaultModel: openRouterDefaultModel,
		Constructor: func(s Settings) Provider {
			return NewOpenRouterProvider(s)
		},
	})
}

// OpenRouterProvider implements the Provider interface for OpenRouter's
// chat completions endpoint.
type OpenRouterProvider struct {
	apiKey      string
	url         string
	modelType   string
	modelName   string
	maxTokens   int
	temperature float64
	title       string
	referer     string
	httpClient  *http.Client
}

// NewOpenRouterProvider creates a new OpenRouter provider. An empty APIBase
// selects the public endpoint; otherwise APIBase is the full completions URL.
func NewOpenRouterProvider(s Settings) *OpenRouterProvider {
	url := s.APIBase
	if url == "" {
		url = openRouterBaseURL
	}
	return &OpenRouterProvider{
		apiKey:      s.APIKey,
		url:         url,
		modelType:   s.ModelType,
		modelName:   s.model(),
		maxTokens:   s.MaxTokens,
		temperature: s.Temperature,
		title:       s.Title,
		referer:     s.Referer,
		httpClient:  &http.Client{Timeout: s.Timeout},
	}
}

type openRouterRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

func (p *OpenRouterProvider) buildBody(req *Request) ([]byte, error) {
	body, err := json.Marshal(openRouterRequest{Model: p.modelName, Messages: req.Messages})
	if err != nil {
		return nil, err
	}
	if p.maxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_tokens", p.maxTokens); err != nil {
			return nil, err
		}
	}
	if p.temperature != 0 {
		if body, err = sjson.SetBytes(body, "temperature", p.temperature); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Chat sends a chat completion request to OpenRouter.
func (p *OpenRouterProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	logger.Info(
		"openrouter request",
		"provider", "openrouter",
		"modelType", p.modelType,
		"modelName", p.modelName,
		"messageCount", len(req.Messages),
		"inputChars", inputChars(req.Messages),
		"inputTokens", EstimateTokens(req.Messages),
	)

	body, err := p.buildBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.referer != "" {
		httpReq.Header.Set("HTTP-Referer", p.referer)
	}
	if p.title != "" {
		httpReq.Header.Set("X-Title", p.title)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		logger.Error("openrouter request send error", "provider", "openrouter", "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		logger.Error("openrouter response read error", "provider", "openrouter", "err", err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		errBody := clipUTF8(string(respBody), maxErrorBodyChars)
		logger.Error("openrouter status error", "provider", "openrouter", "status", httpResp.StatusCode, "body", errBody)
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: errBody}
	}

	resp, err := parseChatCompletion(respBody)
	if err != nil {
		logger.Error("openrouter response parse error", "provider", "openrouter", "err", err)
		return nil, err
	}

	logger.Info(
		"openrouter response",
		"provider", "openrouter",
		"modelName", p.modelName,
		"finishReason", resp.FinishReason,
		"promptTokens", resp.Usage.PromptTokens,
		"completionTokens", resp.Usage.CompletionTokens,
		"totalTokens", resp.Usage.TotalTokens,
		"outputChars", len(resp.Content),
		"latencyMs", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// parseChatCompletion extracts the first choice's reply from an OpenAI-style
// chat completion body.
func parseChatCompletion(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}
	doc := gjson.ParseBytes(body)

	if apiErr := doc.Get("error"); apiErr.Exists() && apiErr.Type != gjson.Null {
		msg := apiErr.Get("message").String()
		if msg == "" {
			msg = apiErr.Raw
		}
		return nil, &APIError{Message: msg, Type: apiErr.Get("type").String()}
	}

	choices := doc.Get("choices")
	if !choices.IsArray() {
		return nil, fmt.Errorf("%w: missing choices", ErrMalformedResponse)
	}
	if len(choices.Array()) == 0 {
		return nil, ErrNoChoices
	}

	content := doc.Get("choices.0.message.content")
	if content.Type != gjson.String {
		return nil, fmt.Errorf("%w: choices[0].message.content is not a string", ErrMalformedResponse)
	}

	return &Response{
		Content:      content.String(),
		FinishReason: doc.Get("choices.0.finish_reason").String(),
		Usage: Usage{
			PromptTokens:     int(doc.Get("usage.prompt_tokens").Int()),
			CompletionTokens: int(doc.Get("usage.completion_tokens").Int()),
			TotalTokens:      int(doc.Get("usage.total_tokens").Int()),
		},
	}, nil
}

// clipUTF8 cuts s to at most maxBytes without splitting a multi-byte rune.
func clipUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
