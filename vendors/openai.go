package vendors

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xiaoyuanzhu-com/my-chat-db/config"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

var (
	openaiClient     *OpenAIClient
	openaiClientOnce sync.Once
	openaiLogger     = log.GetLogger("OpenAI")
)

// firstByteTimeout bounds the wait for upstream response headers. Once the
// stream is open there is no overall deadline; the per-fragment bound is
// enforced by the consumer.
const firstByteTimeout = 30 * time.Second

// OpenAIClient wraps the OpenAI-compatible completion client
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// GetOpenAIClient returns the singleton OpenAI client, nil when no API key
// is configured.
func GetOpenAIClient() *OpenAIClient {
	openaiClientOnce.Do(func() {
		cfg := config.Get()

		if cfg.OpenAIAPIKey == "" {
			openaiLogger.Warn().Msg("OPENAI_API_KEY not configured, completions disabled")
			return
		}

		clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" && cfg.OpenAIBaseURL != "https://api.openai.com/v1" {
			clientConfig.BaseURL = cfg.OpenAIBaseURL
		}

		// No Client.Timeout: it would cap total stream duration. The
		// header timeout bounds time-to-first-byte only.
		clientConfig.HTTPClient = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: firstByteTimeout,
			},
		}

		openaiClient = &OpenAIClient{
			client: openai.NewClientWithConfig(clientConfig),
			model:  cfg.OpenAIModel,
		}

		openaiLogger.Info().Str("model", cfg.OpenAIModel).Str("baseURL", cfg.OpenAIBaseURL).Msg("OpenAI initialized")
	})

	return openaiClient
}

// Model returns the configured completion model
func (o *OpenAIClient) Model() string {
	if o == nil {
		return ""
	}
	return o.model
}

// ChatStream is one in-flight streaming completion. Fragments are pulled one
// at a time; the stream is finite and not restartable.
type ChatStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty text fragment. io.EOF signals normal
// completion; any other error is a hard stop.
func (s *ChatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

// Close releases the underlying transport
func (s *ChatStream) Close() {
	s.stream.Close()
}

// StreamChat opens a streaming chat completion for the given messages.
// The first fragment is delivered as soon as the upstream produces it; the
// response is never buffered whole.
func (o *OpenAIClient) StreamChat(ctx context.Context, messages []openai.ChatCompletionMessage) (*ChatStream, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: 4096,
		Stream:    true,
	}

	openaiLogger.Debug().
		Str("model", o.model).
		Int("messageCount", len(messages)).
		Msg("opening completion stream")

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		openaiLogger.Error().Err(err).Msg("completion stream open failed")
		return nil, err
	}

	return &ChatStream{stream: stream}, nil
}
