// Package ai wraps the external generative model behind blocking and
// streaming invocation.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
)

// ErrUnavailable wraps any model-side failure. It is never surfaced to the
// end user; the queue layer converts it into a fallback reply.
var ErrUnavailable = errors.New("ai model unavailable")

// Service runs prompts against the configured chat model.
type Service struct {
	cfg   config.AIConfig
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the invoker. The whole prompt is assembled upstream, so
// the chain template is a bare system/user pair.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		cfg:   cfg,
		chain: runnable,
	}, nil
}

// Invoke runs the prompt and blocks for the full response text.
func (s *Service) Invoke(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	response, err := s.chain.Invoke(ctx, chainInput(systemPrompt, userMessage))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return response.Content, nil
}

// Stream runs the prompt, pushing each chunk through onChunk, and returns the
// concatenated text. A mid-stream failure returns the error; chunks already
// pushed stay with the client, and the retry layer avoids re-streaming them.
// When streaming is disabled by configuration the whole reply is pushed as a
// single chunk.
func (s *Service) Stream(ctx context.Context, systemPrompt, userMessage string, onChunk func(string)) (string, error) {
	if !s.cfg.StreamResponse {
		text, err := s.Invoke(ctx, systemPrompt, userMessage)
		if err != nil {
			return "", err
		}
		if onChunk != nil {
			onChunk(text)
		}
		return text, nil
	}

	stream, err := s.chain.Stream(ctx, chainInput(systemPrompt, userMessage))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onChunk != nil {
			onChunk(chunk.Content)
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return response.Content, nil
}

func chainInput(systemPrompt, userMessage string) map[string]any {
	return map[string]any{
		"system": systemPrompt,
		"query":  userMessage,
	}
}
