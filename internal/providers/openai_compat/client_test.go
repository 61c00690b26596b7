package openai_compat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alemoreirac/maria-aux-back/internal/providers"
)

func TestEndpointURL(t *testing.T) {
	c := New(Config{BaseURL: "https://api.openai.com/v1/"})

	chat, err := c.endpointURL("chat_completions")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", chat)

	responses, err := c.endpointURL("responses")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/responses", responses)

	c = New(Config{BaseURL: "https://api.x.ai/v1/chat/completions"})
	chat, err = c.endpointURL("chat_completions")
	require.NoError(t, err)
	assert.Equal(t, "https://api.x.ai/v1/chat/completions", chat)
}

func TestRunTextSendsChatCompletion(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &payload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello back "}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	out, err := c.RunText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
	assert.Equal(t, "gpt-4.1", payload["model"])
	assert.InDelta(t, 0.3, payload["temperature"], 0.0001)
	assert.EqualValues(t, 2048, payload["max_tokens"])
}

func TestRunFileUsesImagePartForImages(t *testing.T) {
	var payload struct {
		Model    string `json:"model"`
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &payload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"a cat"}]}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.RunFile(context.Background(), providers.FileRequest{
		Prompt:   "describe",
		Data:     []byte{0xff, 0xd8},
		MIMEType: "image/jpeg",
		Filename: "image.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)
	assert.Equal(t, "gpt-4o", payload.Model)
	require.Len(t, payload.Messages, 1)
	require.Len(t, payload.Messages[0].Content, 2)
	assert.Equal(t, "image_url", payload.Messages[0].Content[1]["type"])
}

func TestRunWebSearchUsesResponsesTool(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &payload)
		_, _ = w.Write([]byte(`{"output":[{"type":"web_search_call"},{"type":"message","content":[{"type":"output_text","text":"fresh news"}]}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.RunWebSearch(context.Background(), "what happened today")
	require.NoError(t, err)
	assert.Equal(t, "fresh news", out)
	tools, ok := payload["tools"].([]any)
	require.True(t, ok)
	assert.Equal(t, "web_search_preview", tools[0].(map[string]any)["type"])
}

func TestRetriesTemporaryStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"text":"ok"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 1, BackoffBase: time.Millisecond})
	out, err := c.RunText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestErrorsAreWrappedAsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.RunText(context.Background(), "hi")
	require.Error(t, err)

	var ue *providers.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "gpt", ue.Provider)
	assert.Contains(t, ue.Message, "bad key")
	assert.False(t, ue.Timeout)
}

func TestDeadlineIsReportedAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.RunText(ctx, "hi")
	require.Error(t, err)
	assert.True(t, providers.IsTimeout(err))
}
