package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ID identifies an upstream LLM provider as sent by clients.
type ID int

const (
	GPT    ID = 1
	Claude ID = 2
	Gemini ID = 3
)

var ErrUnsupported = errors.New("capability not supported by provider")

func (id ID) String() string {
	switch id {
	case GPT:
		return "gpt"
	case Claude:
		return "claude"
	case Gemini:
		return "gemini"
	default:
		return "provider_" + strconv.Itoa(int(id))
	}
}

func (id ID) Valid() bool {
	return id == GPT || id == Claude || id == Gemini
}

// ParseID accepts either the numeric id or the provider name.
func ParseID(raw string) (ID, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "gpt", "openai", "chatgpt":
		return GPT, nil
	case "claude", "anthropic":
		return Claude, nil
	case "gemini", "google":
		return Gemini, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !ID(n).Valid() {
		return 0, fmt.Errorf("unknown provider %q", raw)
	}
	return ID(n), nil
}

// FileRequest carries a binary payload alongside instruction text.
type FileRequest struct {
	Prompt   string
	Data     []byte
	MIMEType string
	Filename string
}

// Adapter is the minimal capability every provider implements.
type Adapter interface {
	Name() string
	RunText(ctx context.Context, prompt string) (string, error)
}

type FileRunner interface {
	RunFile(ctx context.Context, req FileRequest) (string, error)
}

type WebSearcher interface {
	RunWebSearch(ctx context.Context, prompt string) (string, error)
}

// UpstreamError is the only error type adapters return for failed calls.
type UpstreamError struct {
	Provider string
	Message  string
	Timeout  bool
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timeout: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Wrap converts any adapter-internal error into an *UpstreamError.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{
		Provider: provider,
		Message:  err.Error(),
		Timeout:  IsTimeout(err),
		Err:      err,
	}
}

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Timeout
}
