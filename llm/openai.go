package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/doc-chat/fault"
)

type openAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIClient(opts Options) Client {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
	}
}

func (c *openAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
	}

	req.Messages = make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError("create openai chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %v: %w", op, err, fault.ErrRateLimited)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %v: %w", op, err, fault.ErrAuth)
		}
	}
	if timeoutErr := fault.Timeout(err); errors.Is(timeoutErr, fault.ErrNetworkTimeout) {
		return fmt.Errorf("%s: %v: %w", op, err, fault.ErrNetworkTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
