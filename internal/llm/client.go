// Package llm is a thin synchronous client over the OpenAI chat completions
// API, used by the LLM Circuit Breaker (C7) to improve a rendered reply
// when a handler's action sets llm_improve.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned when no API key is set; callers treat this
// the same as any other Call failure (the breaker still counts it).
var ErrNotConfigured = errors.New("llm: no API key configured")

// Request is one improve-this-text call.
type Request struct {
	Model  string
	System string
	Prompt string
}

// Response carries the generated text and the token usage the caller uses
// to decrement the bot's daily budget.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

type Client struct {
	client *openai.Client
}

func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	return &Client{client: openai.NewClient(apiKey)}
}

// Call issues one non-streaming chat completion. The 30s RPC timeout is the
// caller's responsibility via ctx; Call does not impose its own.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	if c.client == nil {
		return Response{}, ErrNotConfigured
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	})
	if err != nil {
		if isTimeout(err) {
			return Response{}, context.DeadlineExceeded
		}
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("llm: empty response")
	}

	return Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// DefaultTimeout is the per-RPC LLM call budget from §5, independent of any
// caller-supplied deadline (the shorter of the two applies).
const DefaultTimeout = 30 * time.Second

// IsBreakerFailure reports whether err should count against the circuit
// breaker: any transport error, an explicit timeout, or an HTTP-equivalent
// status >= 500. A 4xx (bad request, invalid key) is a caller/config
// problem, not evidence the upstream is unhealthy, so it does not count.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	return true
}
