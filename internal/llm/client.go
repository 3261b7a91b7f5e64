// Package llm wraps the external text-completion service behind a small
// client with retry, pacing, and failure classification. Pipeline stages
// treat every error from this package as a signal to degrade, never to
// abort the run.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/pricewise-ai/pricewise/internal/config"
	"github.com/pricewise-ai/pricewise/internal/metrics"
)

// Message roles, mirroring the chat completion wire format.
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string
	Content string
}

// Completion carries the model output and the token accounting used by
// governance.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client talks to an OpenAI-compatible completion endpoint.
type Client struct {
	api        *openai.Client
	model      string
	embedModel string
	maxRetries int
	embeddings bool
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New builds a client from configuration. A nil return means no API key was
// configured and callers should run fully degraded.
func New(cfg config.OpenAIConfig, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		api:        openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		embedModel: cfg.EmbeddingModel,
		maxRetries: maxRetries,
		embeddings: cfg.Embeddings,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:     logger,
	}
}

// EmbeddingsEnabled reports whether memory embeddings are configured.
func (c *Client) EmbeddingsEnabled() bool {
	return c != nil && c.embeddings && c.embedModel != ""
}

// Complete runs one chat completion with retry and client-side pacing.
func (c *Client) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var result *Completion
	err := c.doWithRetry(ctx, "completion", func() error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: chatMessages,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		result = &Completion{
			Content:          resp.Choices[0].Message.Content,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(result.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(result.CompletionTokens))
	return result, nil
}

// CompleteJSON runs a completion whose answer must unmarshal into out. A
// malformed first answer earns exactly one corrective retry; a second
// malformed answer is a schema failure.
func (c *Client) CompleteJSON(ctx context.Context, messages []Message, out any) (*Completion, error) {
	comp, err := c.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	jsonErr := decodeJSONAnswer(comp.Content, out)
	if jsonErr == nil {
		return comp, nil
	}
	c.logger.Warn("completion returned malformed JSON, retrying once", "error", jsonErr)

	retryMessages := append(messages, Message{
		Role:    openai.ChatMessageRoleUser,
		Content: "Your previous answer was not valid JSON. Reply with only the JSON object, no prose and no code fences.",
	})
	comp, err = c.Complete(ctx, retryMessages)
	if err != nil {
		return nil, err
	}
	if jsonErr := decodeJSONAnswer(comp.Content, out); jsonErr != nil {
		metrics.LLMRequestsTotal.WithLabelValues(string(KindSchema)).Inc()
		return nil, &ServiceError{Kind: KindSchema, Err: jsonErr}
	}
	return comp, nil
}

// Embed generates the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.EmbeddingsEnabled() {
		return nil, &ServiceError{Kind: KindOther, Err: fmt.Errorf("embeddings not configured")}
	}

	var result []float32
	err := c.doWithRetry(ctx, "embedding", func() error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embedModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		result = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doWithRetry paces each attempt through the limiter and retries transient
// failures with exponential backoff. Quota exhaustion aborts immediately.
func (c *Client) doWithRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr *ServiceError
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return &ServiceError{Kind: KindOther, Err: err}
		}

		err := fn()
		if err == nil {
			metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
			return nil
		}

		lastErr = Classify(err)
		metrics.LLMRequestsTotal.WithLabelValues(string(lastErr.Kind)).Inc()
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < c.maxRetries-1 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			c.logger.Debug("completion request failed, retrying",
				"op", op,
				"attempt", attempt+1,
				"wait", waitTime,
				"error", err)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return &ServiceError{Kind: KindOther, Err: ctx.Err()}
			}
		}
	}
	return lastErr
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\n?(.*?)\\s*```$")

// decodeJSONAnswer unmarshals a completion answer, tolerating the code
// fences models sometimes wrap JSON in.
func decodeJSONAnswer(content string, out any) error {
	cleaned := strings.TrimSpace(content)
	if m := codeFenceRe.FindStringSubmatch(cleaned); len(m) == 2 {
		cleaned = strings.TrimSpace(m[1])
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("unmarshaling completion answer: %w", err)
	}
	return nil
}
