package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/crypto"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

const (
	DefaultOutputLimit = 150
	DefaultRecentLimit = 20
)

type Store interface {
	InsertInteraction(ctx context.Context, e storage.Interaction) (int64, error)
	RecentInteractions(ctx context.Context, userID string, limit uint64) ([]storage.Interaction, error)
}

type Config struct {
	Sealer      *crypto.Sealer
	OutputLimit int
	Logger      zerolog.Logger
}

// Logger records completed AI interactions in an append-only log.
type Logger struct {
	store       Store
	sealer      *crypto.Sealer
	outputLimit int
	log         zerolog.Logger
}

func New(store Store, cfg Config) *Logger {
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = DefaultOutputLimit
	}
	return &Logger{
		store:       store,
		sealer:      cfg.Sealer,
		outputLimit: cfg.OutputLimit,
		log:         cfg.Logger.With().Str("component", "history").Logger(),
	}
}

type Entry struct {
	RequestID string    `json:"request_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// LogInteraction persists one record and returns the request id assigned to it.
func (l *Logger) LogInteraction(ctx context.Context, userID, inputSummary, output string) (string, error) {
	requestID := uuid.NewString()
	query, err := l.sealer.Seal(inputSummary, userID)
	if err != nil {
		return "", fmt.Errorf("seal input summary: %w", err)
	}
	_, err = l.store.InsertInteraction(ctx, storage.Interaction{
		RequestID:   requestID,
		UserID:      userID,
		UserQuery:   query,
		LLMResponse: Truncate(output, l.outputLimit),
	})
	if err != nil {
		return "", err
	}
	return requestID, nil
}

// Recent returns a user's latest interactions, newest first.
func (l *Logger) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := l.store.RecentInteractions(ctx, userID, uint64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		input, err := l.sealer.Open(r.UserQuery, r.UserID)
		if err != nil {
			l.log.Warn().Err(err).Str("request_id", r.RequestID).Msg("cannot open sealed summary")
			input = "<sealed>"
		}
		out = append(out, Entry{
			RequestID: r.RequestID,
			Input:     input,
			Output:    r.LLMResponse,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

type summaryParam struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type summary struct {
	PromptID   int64          `json:"prompt_id"`
	Provider   string         `json:"provider"`
	Parameters []summaryParam `json:"parameters"`
}

// Summarize serializes a request for the log. Binary parameters are
// reduced to their kind and size.
func Summarize(promptID int64, provider string, params []prompts.FilledParameter) string {
	s := summary{PromptID: promptID, Provider: provider, Parameters: make([]summaryParam, 0, len(params))}
	for _, p := range params {
		s.Parameters = append(s.Parameters, summaryParam{
			Title: p.Title,
			Kind:  p.Kind.String(),
			Value: p.Value.String(),
		})
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf(`{"prompt_id":%d}`, promptID)
	}
	return string(b)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
