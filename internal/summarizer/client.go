package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	client *resty.Client
	model  string
}

// NewChatClient creates a ChatClient against baseURL (e.g.
// https://api.openai.com/v1). apiKey may be empty for local providers.
func NewChatClient(baseURL, apiKey, model string, timeout time.Duration) *ChatClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &ChatClient{client: c, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   500,
		Temperature: 0.7,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/chat/completions")
	if err != nil {
		return "", errors.Wrap(err, "chat completion request")
	}
	if resp.StatusCode() != http.StatusOK {
		return "", errors.Errorf("chat completion status %d: %s", resp.StatusCode(), resp.String())
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return "", errors.Wrap(err, "decode chat completion")
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}
