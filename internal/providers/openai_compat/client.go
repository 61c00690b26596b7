package openai_compat

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

const (
	defaultTextModel   = "gpt-4.1"
	defaultFileModel   = "gpt-4o"
	defaultSearchModel = "gpt-4.1"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	TextModel   string
	FileModel   string
	SearchModel string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// Client talks to OpenAI (or any API exposing chat/completions and responses).
type Client struct {
	cfg       Config
	transport providers.Transport
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.TextModel == "" {
		cfg.TextModel = defaultTextModel
	}
	if cfg.FileModel == "" {
		cfg.FileModel = defaultFileModel
	}
	if cfg.SearchModel == "" {
		cfg.SearchModel = defaultSearchModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	headers := map[string]string{}
	if strings.TrimSpace(cfg.APIKey) != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	for k, v := range cfg.Headers {
		headers[k] = strings.ReplaceAll(v, "{{api_key}}", cfg.APIKey)
	}
	return &Client{
		cfg: cfg,
		transport: providers.Transport{
			HTTPClient:  cfg.HTTPClient,
			Headers:     headers,
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

func (c *Client) Name() string { return providers.GPT.String() }

func (c *Client) RunText(ctx context.Context, prompt string) (string, error) {
	payload := c.chatPayload(c.cfg.TextModel, c.cfg.MaxTokens, prompt)
	text, err := c.chat(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) RunFile(ctx context.Context, req providers.FileRequest) (string, error) {
	dataURI := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Data)
	var filePart map[string]any
	if strings.HasPrefix(req.MIMEType, "image/") {
		filePart = map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": dataURI},
		}
	} else {
		filePart = map[string]any{
			"type": "file",
			"file": map[string]string{"filename": req.Filename, "file_data": dataURI},
		}
	}
	payload := map[string]any{
		"model": c.cfg.FileModel,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": req.Prompt},
				filePart,
			},
		}},
		"temperature": c.cfg.Temperature,
		"max_tokens":  2 * c.cfg.MaxTokens,
	}
	text, err := c.chat(ctx, payload)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) RunWebSearch(ctx context.Context, prompt string) (string, error) {
	endpointURL, err := c.endpointURL("responses")
	if err != nil {
		return "", providers.Wrap(c.Name(), err)
	}
	payload := map[string]any{
		"model":             c.cfg.SearchModel,
		"input":             prompt,
		"tools":             []map[string]string{{"type": "web_search_preview"}},
		"max_output_tokens": 2 * c.cfg.MaxTokens,
	}
	body, err := c.transport.PostJSON(ctx, endpointURL, payload)
	if err != nil {
		return "", providers.Wrap(c.Name(), err)
	}
	text, err := parseResponsesAPI(body)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) chatPayload(model string, maxTokens int, prompt string) map[string]any {
	return map[string]any{
		"model":       model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": c.cfg.Temperature,
		"max_tokens":  maxTokens,
	}
}

func (c *Client) chat(ctx context.Context, payload map[string]any) (string, error) {
	endpointURL, err := c.endpointURL("chat_completions")
	if err != nil {
		return "", err
	}
	body, err := c.transport.PostJSON(ctx, endpointURL, payload)
	if err != nil {
		return "", err
	}
	return parseChatCompletions(body)
}

func (c *Client) endpointURL(endpoint string) (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/chat/completions"), "/responses")

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	if endpoint == "responses" {
		u.Path = path + "/responses"
	} else {
		u.Path = path + "/chat/completions"
	}
	return u.String(), nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat completion response")
	}
	if resp.Choices[0].Text != "" {
		return strings.TrimSpace(resp.Choices[0].Text), nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content), nil
	}
	return "", fmt.Errorf("missing message content in chat completion response")
}

func parseResponsesAPI(body []byte) (string, error) {
	var resp struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Type    string `json:"type"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode responses api response: %w", err)
	}
	if strings.TrimSpace(resp.OutputText) != "" {
		return strings.TrimSpace(resp.OutputText), nil
	}
	parts := make([]string, 0)
	for _, out := range resp.Output {
		if out.Type != "" && out.Type != "message" {
			continue
		}
		for _, c := range out.Content {
			if strings.TrimSpace(c.Text) != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("missing output text in responses api response")
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
