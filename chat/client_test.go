package chat

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
)

func TestCompleteRefusesUnauthenticated(t *testing.T) {
	c := &Client{timeout: time.Second}

	_, err := c.Complete(context.Background(), auth.Unauthenticated, []Turn{{Content: "hi", IsUser: true}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized before any network activity, got %v", err)
	}
}

func TestCompleteWithoutUpstreamConfigured(t *testing.T) {
	c := &Client{timeout: time.Second}

	_, err := c.Complete(context.Background(), auth.Anonymous, []Turn{{Content: "hi", IsUser: true}})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestClassifyOpenError(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	got := classifyOpenError(apiErr)
	var upstream *UpstreamError
	if !errors.As(got, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", got)
	}
	if upstream.Status != 429 || upstream.Message != "rate limited" {
		t.Errorf("unexpected upstream error: %+v", upstream)
	}

	if got := classifyOpenError(context.DeadlineExceeded); !errors.Is(got, ErrTimeout) {
		t.Errorf("expected ErrTimeout for deadline, got %v", got)
	}

	if got := classifyOpenError(errors.New("connection refused")); !errors.Is(got, ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable for connection failure, got %v", got)
	}
}

func TestClassifyStreamError(t *testing.T) {
	if got := classifyStreamError(io.EOF); !errors.Is(got, io.EOF) {
		t.Errorf("expected io.EOF passthrough, got %v", got)
	}

	if got := classifyStreamError(context.DeadlineExceeded); !errors.Is(got, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", got)
	}

	if got := classifyStreamError(errors.New("connection reset")); !errors.Is(got, ErrStreamInterrupted) {
		t.Errorf("expected ErrStreamInterrupted for a mid-stream failure, got %v", got)
	}

	apiErr := &openai.APIError{HTTPStatusCode: 500, Message: "server error"}
	var upstream *UpstreamError
	if got := classifyStreamError(apiErr); !errors.As(got, &upstream) {
		t.Errorf("expected UpstreamError, got %v", got)
	}
}
