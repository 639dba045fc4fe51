package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Delegate sends a prompt to a language model and returns its reply.
type Delegate interface {
	Complete(ctx context.Context, apiKey string, prompt string) (string, error)
}

// HTTPDelegate talks to an OpenAI-compatible chat completions endpoint.
type HTTPDelegate struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPDelegate(endpoint string, model string, timeout time.Duration) *HTTPDelegate {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPDelegate{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDelegate) Model() string {
	return d.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (d *HTTPDelegate) Complete(ctx context.Context, apiKey string, prompt string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("assistant api key is not configured")
	}

	payload, err := json.Marshal(chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant endpoint returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("assistant endpoint returned an empty reply")
	}
	return parsed.Choices[0].Message.Content, nil
}

const systemPrompt = "You are a business assistant for a small shop. " +
	"Answer using only the business data provided in the prompt. " +
	"Be concise and concrete; quote numbers from the data when relevant. " +
	"If the data does not contain the answer, say so plainly."
