package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linanwx/nagochat/logger"
	openai "github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	openAIAPIBase      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

func init() {
	RegisterProvider("openai", Registration{
		EnvKey:       "OPENAI_API_KEY",
		EnvBase:      "OPENAI_API_BASE",
		DefaultModel: openAIDefaultModel,
		Constructor: func(s Settings) Provider {
			return newOpenAIProvider(s)
		},
	})
}

// OpenAIProvider talks to any OpenAI-compatible chat completions API through
// the official SDK.
type OpenAIProvider struct {
	modelType   string
	modelName   string
	maxTokens   int
	temperature float64
	client      openai.Client
}

func newOpenAIProvider(s Settings) *OpenAIProvider {
	opts := []oaioption.RequestOption{
		oaioption.WithAPIKey(s.APIKey),
		oaioption.WithBaseURL(normalizeSDKBaseURL(s.APIBase, openAIAPIBase, "/chat/completions")),
		oaioption.WithMaxRetries(0),
	}
	if s.Timeout > 0 {
		opts = append(opts, oaioption.WithRequestTimeout(s.Timeout))
	}
	if s.Title != "" {
		opts = append(opts, oaioption.WithHeader("X-Title", s.Title))
	}
	return &OpenAIProvider{
		modelType:   s.ModelType,
		modelName:   s.model(),
		maxTokens:   s.MaxTokens,
		temperature: s.Temperature,
		client:      openai.NewClient(opts...),
	}
}

// normalizeSDKBaseURL strips a trailing endpoint path so a full URL copied
// from provider docs still works as an SDK base URL.
func normalizeSDKBaseURL(apiBase, defaultBase, endpoint string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = defaultBase
	}
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, endpoint)
}

func toOpenAIChatMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		default:
			return nil, fmt.Errorf("unsupported role %q", m.Role)
		}
	}
	return out, nil
}

// Chat sends a chat completion request through the OpenAI SDK.
func (p *OpenAIProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	messages, err := toOpenAIChatMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	logger.Info(
		"openai request",
		"provider", "openai",
		"modelType", p.modelType,
		"modelName", p.modelName,
		"messageCount", len(req.Messages),
		"inputChars", inputChars(req.Messages),
		"inputTokens", EstimateTokens(req.Messages),
	)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.modelName),
		Messages: messages,
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	if p.temperature != 0 {
		params.Temperature = openai.Float(p.temperature)
	}

	chatResp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("openai request error", "provider", "openai", "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		logger.Error("openai no choices", "provider", "openai")
		return nil, ErrNoChoices
	}

	choice := chatResp.Choices[0]
	logger.Info(
		"openai response",
		"provider", "openai",
		"modelName", p.modelName,
		"finishReason", choice.FinishReason,
		"promptTokens", chatResp.Usage.PromptTokens,
		"completionTokens", chatResp.Usage.CompletionTokens,
		"totalTokens", chatResp.Usage.TotalTokens,
		"outputChars", len(choice.Message.Content),
		"latencyMs", time.Since(start).Milliseconds(),
	)

	return &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     int(chatResp.Usage.PromptTokens),
			CompletionTokens: int(chatResp.Usage.CompletionTokens),
			TotalTokens:      int(chatResp.Usage.TotalTokens),
		},
	}, nil
}
