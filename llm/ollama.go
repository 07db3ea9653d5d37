package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/doc-chat/fault"
)

type ollamaClient struct {
	host        string
	model       string
	temperature float32
	client      *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options"`
}

type ollamaChatOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaClient{
		host:        host,
		model:       opts.Model,
		temperature: opts.Temperature,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	payload := ollamaChatRequest{
		Model:   c.model,
		Stream:  false,
		Options: ollamaChatOptions{Temperature: c.temperature},
	}

	payload.Messages = make([]ollamaChatMessage, len(messages))
	for i := range messages {
		payload.Messages[i] = ollamaChatMessage(messages[i])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if timeoutErr := fault.Timeout(err); errors.Is(timeoutErr, fault.ErrNetworkTimeout) {
			return "", fmt.Errorf("call ollama chat API: %v: %w", err, fault.ErrNetworkTimeout)
		}
		return "", fmt.Errorf("call ollama chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return "", fmt.Errorf("ollama chat API status %s: %w", resp.Status, fault.ErrRateLimited)
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", fmt.Errorf("ollama chat API status %s: %w", resp.Status, fault.ErrAuth)
		}
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("read ollama chat error body: %w", readErr)
		}
		if len(data) > 0 {
			return "", fmt.Errorf("ollama chat API error: %s", string(data))
		}
		return "", fmt.Errorf("ollama chat API returned status %s", resp.Status)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("ollama chat error: %s", parsed.Error)
	}

	return parsed.Message.Content, nil
}
