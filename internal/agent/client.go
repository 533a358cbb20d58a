package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	askSystemPrompt = "You are Blaze, a helpful assistant guiding a user through registration and login. " +
		"Reply with a single short message addressed to the user."
	validateSystemPrompt = "You are an evaluator that determines whether a user's response satisfies the intent " +
		"of a given prompt, while allowing for conversational elements and indirect phrasing."
	extractSystemPrompt = "You are an assistant that extracts specific answers from user responses based on a given prompt."
)

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements Adapter over an OpenAI-compatible chat completion API.
type Client struct {
	api   *openai.Client
	model string
	log   *zap.Logger
}

var _ Adapter = (*Client)(nil)

// NewClient builds a Client. An empty API key is allowed for local services.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	key := cfg.APIKey
	if key == "" {
		key = "unused"
	}

	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:   openai.NewClientWithConfig(oc),
		model: cfg.Model,
		log:   logging.Named("agent"),
	}, nil
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// AskQuestion phrases a message for the user from instruction.
func (c *Client) AskQuestion(ctx context.Context, instruction string) (string, error) {
	text, err := c.complete(ctx, askSystemPrompt, instruction, 100)
	if err != nil {
		c.log.Warn("question generation failed", zap.Error(err))
		return FallbackQuestion, err
	}
	return text, nil
}

// IsIntentSatisfied asks the service whether answer fulfils question.
// Any failure or an unclear verdict counts as not satisfied.
func (c *Client) IsIntentSatisfied(ctx context.Context, question, answer string) bool {
	prompt := fmt.Sprintf(`Assess whether the user's response fulfills the main request in the prompt, regardless of additional conversational elements. A valid response must provide the requested information explicitly or implicitly.

Prompt: %s

Response: %s

Reply with 'true' if the user's response satisfies the intent of the prompt, even if it's conversational or includes extra context. Reply with 'false' otherwise.`, question, answer)

	verdict, err := c.complete(ctx, validateSystemPrompt, prompt, 10)
	if err != nil {
		c.log.Warn("intent validation failed", zap.Error(err))
		return false
	}
	return parseVerdict(verdict)
}

// Extract pulls the answer out of a reply and converts it to kind.
func (c *Client) Extract(ctx context.Context, question, answer string, kind Kind) (any, bool) {
	prompt := fmt.Sprintf(`Extract the answer from the user's response based on the following prompt and return it as a %s.

Prompt: %s

Response: %s

Only provide the extracted value.`, kind, question, answer)

	raw, err := c.complete(ctx, extractSystemPrompt, prompt, 50)
	if err != nil {
		c.log.Warn("extraction failed", zap.Error(err), zap.String("kind", string(kind)))
		return nil, false
	}

	v, err := Convert(raw, kind)
	if err != nil {
		c.log.Debug("extracted value did not convert", zap.Error(err), zap.String("kind", string(kind)))
		return nil, false
	}
	return v, true
}

func parseVerdict(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!'\"` ")
	return s == "true"
}

// Convert parses raw completion text as kind.
func Convert(raw string, kind Kind) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case KindNumber:
		return strconv.ParseFloat(raw, 64)
	case KindBoolean:
		return strconv.ParseBool(strings.ToLower(raw))
	case KindJSON:
		var v any
		if err := json.Unmarshal([]byte(stripFence(raw)), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		raw = strings.Trim(raw, "\"'`")
		if raw == "" {
			return nil, ErrEmptyCompletion
		}
		return raw, nil
	}
}

// stripFence removes a ```json fence some models wrap around structured output.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
