package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alemoreirac/maria-aux-back/internal/providers"
	"github.com/alemoreirac/maria-aux-back/internal/providers/anthropic_messages"
	"github.com/alemoreirac/maria-aux-back/internal/providers/bedrock"
	"github.com/alemoreirac/maria-aux-back/internal/providers/gemini"
	"github.com/alemoreirac/maria-aux-back/internal/providers/openai_compat"
)

const (
	ClaudeTransportAPI     = "api"
	ClaudeTransportBedrock = "bedrock"
)

type BuildOptions struct {
	OpenAI          openai_compat.Config
	Anthropic       anthropic_messages.Config
	Gemini          gemini.Config
	ClaudeTransport string
	Bedrock         bedrock.Config

	// Shared transport settings, applied to every HTTP adapter.
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// Build returns the adapters that have credentials configured. Providers
// left out of the map are reported as invalid by the router.
func Build(ctx context.Context, opts BuildOptions) (map[providers.ID]providers.Adapter, error) {
	out := make(map[providers.ID]providers.Adapter, 3)

	if strings.TrimSpace(opts.OpenAI.APIKey) != "" {
		cfg := opts.OpenAI
		cfg.HTTPClient, cfg.MaxRetries, cfg.BackoffBase = opts.HTTPClient, opts.MaxRetries, opts.BackoffBase
		out[providers.GPT] = openai_compat.New(cfg)
	}

	switch strings.ToLower(strings.TrimSpace(opts.ClaudeTransport)) {
	case "", ClaudeTransportAPI:
		if strings.TrimSpace(opts.Anthropic.APIKey) != "" {
			cfg := opts.Anthropic
			cfg.HTTPClient, cfg.MaxRetries, cfg.BackoffBase = opts.HTTPClient, opts.MaxRetries, opts.BackoffBase
			out[providers.Claude] = anthropic_messages.New(cfg)
		}
	case ClaudeTransportBedrock:
		c, err := bedrock.New(ctx, opts.Bedrock)
		if err != nil {
			return nil, fmt.Errorf("build bedrock claude: %w", err)
		}
		out[providers.Claude] = c
	default:
		return nil, fmt.Errorf("unsupported claude transport %q", opts.ClaudeTransport)
	}

	if strings.TrimSpace(opts.Gemini.APIKey) != "" {
		cfg := opts.Gemini
		cfg.HTTPClient, cfg.MaxRetries, cfg.BackoffBase = opts.HTTPClient, opts.MaxRetries, opts.BackoffBase
		out[providers.Gemini] = gemini.New(cfg)
	}

	return out, nil
}
