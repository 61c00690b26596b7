package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alemoreirac/maria-aux-back/internal/providers"
)

const defaultModel = "gemini-2.5-flash"

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// Client calls the Generative Language generateContent endpoint.
type Client struct {
	cfg       Config
	transport providers.Transport
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
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
	return &Client{
		cfg: cfg,
		transport: providers.Transport{
			HTTPClient:  cfg.HTTPClient,
			Headers:     map[string]string{"x-goog-api-key": cfg.APIKey},
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

func (c *Client) Name() string { return providers.Gemini.String() }

func (c *Client) RunText(ctx context.Context, prompt string) (string, error) {
	payload := c.payload([]map[string]any{{"text": prompt}}, c.cfg.Temperature, c.cfg.MaxTokens)
	text, err := c.generate(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) RunFile(ctx context.Context, req providers.FileRequest) (string, error) {
	parts := []map[string]any{
		{"inline_data": map[string]string{
			"mime_type": req.MIMEType,
			"data":      base64.StdEncoding.EncodeToString(req.Data),
		}},
		{"text": req.Prompt},
	}
	payload := c.payload(parts, c.cfg.Temperature, 2*c.cfg.MaxTokens)
	text, err := c.generate(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

// RunWebSearch grounds the answer with the google_search tool at a lower temperature.
func (c *Client) RunWebSearch(ctx context.Context, prompt string) (string, error) {
	payload := c.payload([]map[string]any{{"text": prompt}}, 0.1, 2*c.cfg.MaxTokens)
	payload["tools"] = []map[string]any{{"google_search": map[string]any{}}}
	text, err := c.generate(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) payload(parts []map[string]any, temperature float64, maxTokens int) map[string]any {
	return map[string]any{
		"contents": []map[string]any{{"role": "user", "parts": parts}},
		"generationConfig": map[string]any{
			"temperature":     temperature,
			"maxOutputTokens": maxTokens,
		},
	}
}

func (c *Client) generate(ctx context.Context, payload map[string]any) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path += "/models/" + c.cfg.Model + ":generateContent"
	body, err := c.transport.PostJSON(ctx, u.String(), payload)
	if err != nil {
		return "", err
	}
	return parseGenerateContent(body)
}

func parseGenerateContent(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generateContent response: %w", err)
	}
	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty candidates in generateContent response")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text in generateContent response (finishReason=%s)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}
