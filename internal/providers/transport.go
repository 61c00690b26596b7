package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transport posts JSON payloads with retry on 5xx/429 and transport errors.
type Transport struct {
	HTTPClient  *http.Client
	Headers     map[string]string
	MaxRetries  int
	BackoffBase time.Duration
}

func (t Transport) normalized() Transport {
	if t.HTTPClient == nil {
		t.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if t.BackoffBase <= 0 {
		t.BackoffBase = 400 * time.Millisecond
	}
	if t.MaxRetries < 0 {
		t.MaxRetries = 0
	}
	return t
}

// PostJSON marshals payload, sends it and returns the raw 2xx body.
func (t Transport) PostJSON(ctx context.Context, endpointURL string, payload any) ([]byte, error) {
	t = t.normalized()
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		respBody, retry, err := t.callOnce(ctx, endpointURL, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !retry || attempt == t.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.BackoffBase * (1 << attempt)):
		}
	}
	return nil, lastErr
}

func (t Transport) callOnce(ctx context.Context, endpointURL string, body []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("request failed: %w", err)
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("provider temporary status %d: %s", resp.StatusCode, errorSnippet(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("provider status %d: %s", resp.StatusCode, errorSnippet(respBody))
	}
	return respBody, false, nil
}

func errorSnippet(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200])
	}
	return s
}
