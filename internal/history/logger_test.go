package history

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alemoreirac/maria-aux-back/internal/crypto"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), "sqlite", ":memory:", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogInteractionTruncatesAndAssignsID(t *testing.T) {
	store := newStore(t)
	l := New(store, Config{Logger: zerolog.Nop()})
	ctx := context.Background()

	long := strings.Repeat("é", 400)
	id, err := l.LogInteraction(ctx, "u1", `{"prompt_id":1}`, long)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	entries, err := l.Recent(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].RequestID)
	assert.Equal(t, DefaultOutputLimit, len([]rune(entries[0].Output)))
	assert.Equal(t, `{"prompt_id":1}`, entries[0].Input)
}

func TestSealedSummaryRoundTrip(t *testing.T) {
	key, _ := base64.StdEncoding.DecodeString("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	sealer, err := crypto.NewSealer("k1", map[string][]byte{"k1": key})
	require.NoError(t, err)

	store := newStore(t)
	l := New(store, Config{Sealer: sealer, Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err = l.LogInteraction(ctx, "u1", "cpf 123", "ok")
	require.NoError(t, err)

	raw, err := store.RecentInteractions(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.True(t, crypto.IsSealed(raw[0].UserQuery))
	assert.NotContains(t, raw[0].UserQuery, "cpf")

	entries, err := l.Recent(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, "cpf 123", entries[0].Input)
}

func TestSummarizeHidesBinaryContent(t *testing.T) {
	params := []prompts.FilledParameter{
		{Title: "Cliente", Kind: prompts.ParamText, Value: prompts.TextValue("Ana")},
		{Title: "Contrato", Kind: prompts.ParamPDF, Value: prompts.BinaryValue(prompts.ParamPDF, []byte("%PDF-1.7 secret"))},
	}
	got := Summarize(4, "claude", params)
	assert.JSONEq(t, `{
		"prompt_id": 4,
		"provider": "claude",
		"parameters": [
			{"title":"Cliente","kind":"TEXT","value":"Ana"},
			{"title":"Contrato","kind":"PDF","value":"<PDF 15 bytes>"}
		]
	}`, got)
	assert.NotContains(t, got, "secret")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "ção", Truncate("çãozinho", 3))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
