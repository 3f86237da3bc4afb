package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/certprep/internal/llm/prompts"
	"github.com/pavelanni/certprep/internal/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

const (
	explainTemperature  = 0.7
	explainMaxTokens    = 1000
	keywordsTemperature = 0.3
	keywordsMaxTokens   = 100
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("LLM explanations are disabled: no API key configured")

// FallbackKeywords are used when the keyword reply cannot be parsed.
var FallbackKeywords = []string{"AWS", "Cloud Architecture"}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	lang    prompts.Lang
	enabled bool
}

// New creates a new LLM client. With an empty apiKey the client is disabled
// and Explain returns ErrDisabled.
func New(baseURL, apiKey, modelName string, lang prompts.Lang) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if !prompts.IsValidLang(string(lang)) {
		lang = prompts.LangKorean
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		lang:    lang,
		enabled: apiKey != "",
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM ping: %w", err)
	}
	return nil
}

// Explain generates a study explanation for q and 3-5 keywords that separate
// the correct options from the wrong ones. A keyword reply that cannot be
// parsed falls back to FallbackKeywords.
func (c *Client) Explain(ctx context.Context, q model.Question) (model.Explanation, error) {
	if !c.Enabled() {
		return model.Explanation{}, ErrDisabled
	}
	if err := prompts.Load(nil); err != nil {
		return model.Explanation{}, fmt.Errorf("load prompts: %w", err)
	}

	text, err := c.complete(ctx, q, prompts.ExplainSystem, prompts.ExplainUser, explainTemperature, explainMaxTokens)
	if err != nil {
		return model.Explanation{}, fmt.Errorf("LLM explanation call: %w", err)
	}

	raw, err := c.complete(ctx, q, prompts.KeywordsSystem, prompts.KeywordsUser, keywordsTemperature, keywordsMaxTokens)
	if err != nil {
		slog.Warn("keyword extraction failed", "question", q.ID, "error", err)
		raw = ""
	}

	return model.Explanation{Text: text, Keywords: ParseKeywords(raw)}, nil
}

func (c *Client) complete(ctx context.Context, q model.Question, systemTmpl, userTmpl string, temperature float32, maxTokens int) (string, error) {
	system, err := prompts.Build(c.lang, systemTmpl, q)
	if err != nil {
		return "", err
	}
	user, err := prompts.Build(c.lang, userTmpl, q)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "template", userTmpl, "raw", content)
	return content, nil
}

// ParseKeywords reads a JSON string array, tolerating markdown code fences.
// Anything else yields FallbackKeywords.
func ParseKeywords(raw string) []string {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var keywords []string
	if err := json.Unmarshal([]byte(clean), &keywords); err != nil || keywords == nil {
		if raw != "" {
			slog.Warn("failed to parse keywords", "raw", raw, "error", err)
		}
		return append([]string(nil), FallbackKeywords...)
	}
	return keywords
}
