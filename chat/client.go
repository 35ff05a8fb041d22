package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
	"github.com/xiaoyuanzhu-com/my-chat-db/vendors"
)

// fragmentTimeout bounds the wait between consecutive fragments once the
// stream is open. The wait for the first byte is bounded at the transport.
const fragmentTimeout = 60 * time.Second

var clientLogger = log.GetLogger("ChatClient")

// Turn is one entry of the conversation history sent upstream
type Turn struct {
	Content string
	IsUser  bool
}

// Stream is a finite, non-restartable sequence of assistant text fragments.
// Recv blocks until the next fragment arrives, returns io.EOF on normal
// completion, and any other error is a hard stop. Fragments are pulled one
// at a time; backpressure is the consumer not calling Recv.
type Stream interface {
	Recv() (string, error)
	Close()
}

// Completer issues a chat completion and exposes the response incrementally
type Completer interface {
	Complete(ctx context.Context, ident auth.Identity, turns []Turn) (Stream, error)
}

// Client is the streaming completion client over the OpenAI-compatible
// upstream. It refuses to dispatch for unauthenticated callers before any
// network activity.
type Client struct {
	vendor  *vendors.OpenAIClient
	timeout time.Duration
}

// NewClient creates the completion client
func NewClient() *Client {
	return &Client{
		vendor:  vendors.GetOpenAIClient(),
		timeout: fragmentTimeout,
	}
}

// Complete opens a completion stream for the conversation. The fixed system
// prompt is prepended and turns are mapped isUser→user, otherwise assistant.
func (c *Client) Complete(ctx context.Context, ident auth.Identity, turns []Turn) (Stream, error) {
	if !ident.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	if c.vendor == nil {
		clientLogger.Error().Msg("completion requested but upstream not configured")
		return nil, ErrUpstreamUnavailable
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: vendors.ChatSystemPrompt,
	})
	for _, turn := range turns {
		role := openai.ChatMessageRoleAssistant
		if turn.IsUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	streamCtx, cancel := context.WithCancel(ctx)

	upstream, err := c.vendor.StreamChat(streamCtx, messages)
	if err != nil {
		cancel()
		return nil, classifyOpenError(err)
	}

	return newTimedStream(upstream, cancel, c.timeout), nil
}

// classifyOpenError maps a stream-open failure into the error taxonomy
func classifyOpenError(err error) error {
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrStreamInterrupted
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

// fragResult carries one pull off the upstream
type fragResult struct {
	text string
	err  error
}

// timedStream pumps the upstream on a goroutine and hands fragments to the
// consumer over an unbuffered channel, enforcing the between-fragment bound.
type timedStream struct {
	frags     chan fragResult
	done      chan struct{}
	cancel    context.CancelFunc
	upstream  *vendors.ChatStream
	timeout   time.Duration
	closeOnce sync.Once
}

func newTimedStream(upstream *vendors.ChatStream, cancel context.CancelFunc, timeout time.Duration) *timedStream {
	s := &timedStream{
		frags:    make(chan fragResult),
		done:     make(chan struct{}),
		cancel:   cancel,
		upstream: upstream,
		timeout:  timeout,
	}
	go s.pump()
	return s
}

// pump pulls from upstream until completion, error, or Close. The unbuffered
// channel means the pump advances only as fast as the consumer.
func (s *timedStream) pump() {
	defer s.upstream.Close()
	for {
		text, err := s.upstream.Recv()
		select {
		case s.frags <- fragResult{text: text, err: err}:
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Recv returns the next fragment, io.EOF on normal completion, ErrTimeout
// when the upstream goes quiet past the bound.
func (s *timedStream) Recv() (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-s.frags:
		if res.err != nil {
			return "", classifyStreamError(res.err)
		}
		return res.text, nil
	case <-timer.C:
		s.Close()
		return "", ErrTimeout
	}
}

// Close stops the pump and releases the transport. Persisted partial content
// remains valid; closing never rolls anything back.
func (s *timedStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// classifyStreamError maps a mid-stream failure into the error taxonomy
func classifyStreamError(err error) error {
	var apiErr *openai.APIError
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.As(err, &apiErr):
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
}
