package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wrathskeller/rigger/pkg/ollama"
	"github.com/wrathskeller/rigger/pkg/types"
)

// Client talks to a llama.cpp server through its OpenAI-compatible API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Message is an OpenAI-compatible chat message. Content is a string or a
// list of ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

// ChatCompletionResponse is an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewClient creates a llama.cpp client; an empty URL means localhost:8080
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL: %q", serverURL)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// SimpleQuery performs a query with an image and returns the raw answer
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.complete(ctx, model, prompt, imgB64, nil)
}

// DetectPose asks the model for the person's landmarks and parses the
// JSON answer
func (c *Client) DetectPose(ctx context.Context, model, prompt, imgB64 string) (*types.PoseResult, error) {
	content, err := c.complete(ctx, model, prompt, imgB64, &ResponseFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}
	return ollama.ParsePoseResult(content)
}

func (c *Client) complete(ctx context.Context, model, prompt, imgB64 string, format *ResponseFormat) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	content := []ContentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		content = append(content, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}

	req := ChatCompletionRequest{
		Model:          model,
		Messages:       []Message{{Role: "user", Content: content}},
		Temperature:    0.1,
		MaxTokens:      4096,
		ResponseFormat: format,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return messageText(resp.Choices[0].Message.Content), nil
}

// messageText extracts text from a string or content-part answer
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, item := range v {
			if part, ok := item.(map[string]any); ok && part["type"] == "text" {
				if text, ok := part["text"].(string); ok {
					b.WriteString(text)
				}
			}
		}
		return b.String()
	}
	return ""
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
