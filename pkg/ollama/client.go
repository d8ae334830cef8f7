package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/wrathskeller/rigger/pkg/types"
)

// DefaultTimeout applies when the caller's context has no deadline
const DefaultTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// DefaultURL is used when NewClient gets an empty URL
const DefaultURL = "http://localhost:11434"

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q has no scheme or host", ollamaURL)
	}

	// drop any path such as /api/chat
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

// SimpleQuery performs a query with an image and returns the raw answer
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.chat(ctx, model, prompt, imgB64, "")
}

// DetectPose asks the model for the person's landmarks and parses the
// JSON answer
func (c *Client) DetectPose(ctx context.Context, model, prompt, imgB64 string) (*types.PoseResult, error) {
	content, err := c.chat(ctx, model, prompt, imgB64, "json")
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}
	return ParsePoseResult(content)
}

func (c *Client) chat(ctx context.Context, model, prompt, imgB64, format string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	// low temperature keeps coordinates stable between runs
	options := map[string]any{
		"temperature": 0.1,
		"num_ctx":     4096,
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: options,
	}
	if format != "" {
		req.Format = json.RawMessage(`"` + format + `"`)
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	return responseContent, nil
}

// ParsePoseResult parses a model answer into a PoseResult. It tolerates
// code fences, comments and trailing commas, and accepts either an object
// with a keypoints field or a bare keypoint array.
func ParsePoseResult(raw string) (*types.PoseResult, error) {
	raw = sanitizeModelJSON(raw)
	if raw == "" {
		return nil, fmt.Errorf("no JSON found in model response")
	}

	var result types.PoseResult
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &result.Keypoints); err != nil {
			return nil, fmt.Errorf("failed to parse keypoint array: %w", err)
		}
	} else if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse pose response: %w", err)
	}

	if len(result.Keypoints) == 0 {
		return nil, fmt.Errorf("model response has no keypoints")
	}
	return &result, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas and
// keeps only the outermost object or array
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(raw, closer)
	if end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}
