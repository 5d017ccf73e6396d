package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestCall_NotConfiguredWithoutAPIKey(t *testing.T) {
	c := NewClient("")
	_, err := c.Call(context.Background(), Request{Model: "gpt-4o", Prompt: "hi"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestIsBreakerFailure(t *testing.T) {
	if IsBreakerFailure(nil) {
		t.Error("nil error should not count as a failure")
	}
	if !IsBreakerFailure(errors.New("connection refused")) {
		t.Error("a plain transport error should count as a failure")
	}
	if !IsBreakerFailure(context.DeadlineExceeded) {
		t.Error("a timeout should count as a failure")
	}
	if !IsBreakerFailure(&openai.APIError{HTTPStatusCode: 500}) {
		t.Error("a 5xx API error should count as a failure")
	}
	if IsBreakerFailure(&openai.APIError{HTTPStatusCode: 400}) {
		t.Error("a 4xx API error should not count as a failure")
	}
}
