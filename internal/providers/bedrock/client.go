package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/alemoreirac/maria-aux-back/internal/providers"
)

const (
	defaultModel     = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	anthropicVersion = "bedrock-2023-05-31"
)

// Invoker is the subset of *bedrockruntime.Client used here.
type Invoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Config struct {
	Region      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client runs Claude through AWS Bedrock InvokeModel. It has no web search
// capability, so only Adapter and FileRunner are implemented.
type Client struct {
	cfg Config
	svc Invoker
}

// New loads the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(cfg.Region) != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		return nil, fmt.Errorf("aws region not resolved: set BEDROCK_REGION or AWS_REGION")
	}
	return NewWithInvoker(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func NewWithInvoker(svc Invoker, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Client{cfg: cfg, svc: svc}
}

var (
	_ providers.Adapter    = (*Client)(nil)
	_ providers.FileRunner = (*Client)(nil)
)

func (c *Client) Name() string { return providers.Claude.String() }

func (c *Client) RunText(ctx context.Context, prompt string) (string, error) {
	content := []map[string]any{{"type": "text", "text": prompt}}
	text, err := c.invoke(ctx, content, c.cfg.MaxTokens)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) RunFile(ctx context.Context, req providers.FileRequest) (string, error) {
	blockType := "document"
	if strings.HasPrefix(req.MIMEType, "image/") {
		blockType = "image"
	}
	content := []map[string]any{
		{
			"type": blockType,
			"source": map[string]string{
				"type":       "base64",
				"media_type": req.MIMEType,
				"data":       base64.StdEncoding.EncodeToString(req.Data),
			},
		},
		{"type": "text", "text": req.Prompt},
	}
	text, err := c.invoke(ctx, content, 2*c.cfg.MaxTokens)
	return text, providers.Wrap(c.Name(), err)
}

func (c *Client) invoke(ctx context.Context, content []map[string]any, maxTokens int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"anthropic_version": anthropicVersion,
		"max_tokens":        maxTokens,
		"temperature":       c.cfg.Temperature,
		"messages":          []map[string]any{{"role": "user", "content": content}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	out, err := c.svc.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.cfg.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke %s: %w", c.cfg.Model, err)
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("decode bedrock response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("empty response from bedrock model %s", c.cfg.Model)
}
