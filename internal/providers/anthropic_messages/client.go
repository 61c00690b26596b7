package anthropic_messages

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alemoreirac/maria-aux-back/internal/providers"
)

const (
	defaultModel      = "claude-sonnet-4-20250514"
	defaultAPIVersion = "2023-06-01"
	webSearchTool     = "web_search_20250305"
)

type Config struct {
	BaseURL       string
	APIKey        string
	APIVersion    string
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxSearchUses int
	HTTPClient    *http.Client
	MaxRetries    int
	BackoffBase   time.Duration
}

// Client calls the Anthropic Messages API.
type Client struct {
	cfg       Config
	transport providers.Transport
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.MaxSearchUses <= 0 {
		cfg.MaxSearchUses = 5
	}
	return &Client{
		cfg: cfg,
		transport: providers.Transport{
			HTTPClient: cfg.HTTPClient,
			Headers: map[string]string{
				"x-api-key":         cfg.APIKey,
				"anthropic-version": cfg.APIVersion,
			},
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: cfg.BackoffBase,
		},
	}
}

var (
	_ providers.Adapter     = (*Client)(nil)
	_ providers.FileRunner  = (*Client)(nil)
	_ providers.WebSearcher = (*Client)(nil)
)

func (c *Client) Name() string { return providers.Claude.String() }

func (c *Client) RunText(ctx context.Context, prompt string) (string, error) {
	payload := c.payload(c.cfg.MaxTokens, prompt)
	text, err := c.messages(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) RunFile(ctx context.Context, req providers.FileRequest) (string, error) {
	blockType := "document"
	if strings.HasPrefix(req.MIMEType, "image/") {
		blockType = "image"
	}
	block := map[string]any{
		"type": blockType,
		"source": map[string]string{
			"type":       "base64",
			"media_type": req.MIMEType,
			"data":       base64.StdEncoding.EncodeToString(req.Data),
		},
	}
	payload := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  2 * c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				block,
				{"type": "text", "text": req.Prompt},
			},
		}},
	}
	text, err := c.messages(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) RunWebSearch(ctx context.Context, prompt string) (string, error) {
	payload := c.payload(2*c.cfg.MaxTokens, prompt)
	payload["tools"] = []map[string]any{{
		"type":     webSearchTool,
		"name":     "web_search",
		"max_uses": c.cfg.MaxSearchUses,
	}}
	text, err := c.messages(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) payload(maxTokens int, prompt string) map[string]any {
	return map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  maxTokens,
		"temperature": c.cfg.Temperature,
		"messages":    []map[string]any{{"role": "user", "content": prompt}},
	}
}

func (c *Client) messages(ctx context.Context, payload map[string]any) (string, error) {
	endpointURL := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/")
	if !strings.HasSuffix(endpointURL, "/messages") {
		endpointURL += "/messages"
	}
	body, err := c.transport.PostJSON(ctx, endpointURL, payload)
	if err != nil {
		return "", err
	}
	return parseMessages(body)
}

// parseMessages joins every text block; tool_use and search result blocks are skipped.
func parseMessages(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text content in messages response (stop_reason=%s)", resp.StopReason)
	}
	return strings.TrimSpace(strings.Join(parts, "")), nil
}
