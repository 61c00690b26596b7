package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alemoreirac/maria-aux-back/internal/auth"
	"github.com/alemoreirac/maria-aux-back/internal/credits"
	"github.com/alemoreirac/maria-aux-back/internal/gateway"
	"github.com/alemoreirac/maria-aux-back/internal/history"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

type fakeRouter struct {
	calls int
	last  gateway.Request
	uid   string
	resp  gateway.Response
	err   error
}

func (f *fakeRouter) RouteAI(_ context.Context, req gateway.Request, uid string) (gateway.Response, error) {
	f.calls++
	f.last, f.uid = req, uid
	return f.resp, f.err
}

type fakeAccounts struct{ balances map[string]int64 }

func (f *fakeAccounts) Balance(_ context.Context, uid string) int64 { return f.balances[uid] }

func (f *fakeAccounts) Add(_ context.Context, uid string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, credits.ErrNegativeAmount
	}
	f.balances[uid] += amount
	return f.balances[uid], nil
}

type fakeHistory struct{ entries []history.Entry }

func (f fakeHistory) Recent(context.Context, string, int) ([]history.Entry, error) { return f.entries, nil }

type fakeStore struct {
	templates map[int64]prompts.Template
	params    map[int64]prompts.Parameter
	favs      map[int64]bool
	reports   []storage.Report
	nextID    int64
}

func newFakeStore() *fakeStore {
	topic := prompts.Parameter{ID: 99, PromptID: 1, Title: "Topic", Kind: prompts.ParamText}
	return &fakeStore{
		templates: map[int64]prompts.Template{1: {
			ID: 1, Title: "Haiku", Content: "Write a haiku", Kind: prompts.KindText,
			Parameters: []prompts.Parameter{topic},
		}},
		params: map[int64]prompts.Parameter{99: topic},
		favs:   map[int64]bool{},
		nextID: 1,
	}
}

func (f *fakeStore) ListTemplates(context.Context) ([]prompts.Template, error) {
	out := make([]prompts.Template, 0, len(f.templates))
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetTemplate(_ context.Context, id int64) (prompts.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return prompts.Template{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetParameter(_ context.Context, id int64) (prompts.Parameter, error) {
	p, ok := f.params[id]
	if !ok {
		return prompts.Parameter{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdateParameter(_ context.Context, p prompts.Parameter) (int64, error) {
	old, ok := f.params[p.ID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	p.PromptID = old.PromptID
	f.params[p.ID] = p
	return p.PromptID, nil
}

func (f *fakeStore) CreatePrompt(_ context.Context, t prompts.Template) (int64, error) {
	f.nextID++
	t.ID = f.nextID
	f.templates[t.ID] = t
	return t.ID, nil
}

func (f *fakeStore) UpdatePrompt(_ context.Context, t prompts.Template) error {
	if _, ok := f.templates[t.ID]; !ok {
		return storage.ErrNotFound
	}
	f.templates[t.ID] = t
	return nil
}

func (f *fakeStore) DeletePrompt(_ context.Context, id int64) error {
	if _, ok := f.templates[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.templates, id)
	return nil
}

func (f *fakeStore) AddParameter(_ context.Context, p prompts.Parameter) (int64, error) {
	if _, ok := f.templates[p.PromptID]; !ok {
		return 0, storage.ErrNotFound
	}
	return 99, nil
}

func (f *fakeStore) DeleteParameter(_ context.Context, id int64) (int64, error) {
	if id != 99 {
		return 0, storage.ErrNotFound
	}
	return 1, nil
}

func (f *fakeStore) AddFavourite(_ context.Context, _ string, promptID int64) (string, error) {
	if _, ok := f.templates[promptID]; !ok {
		return "", storage.ErrNotFound
	}
	if f.favs[promptID] {
		return "", storage.ErrAlreadyExists
	}
	f.favs[promptID] = true
	return "fav-1", nil
}

func (f *fakeStore) RemoveFavourite(_ context.Context, _ string, promptID int64) error {
	if !f.favs[promptID] {
		return storage.ErrNotFound
	}
	delete(f.favs, promptID)
	return nil
}

func (f *fakeStore) ListFavourites(_ context.Context, uid string) ([]storage.Favourite, error) {
	var out []storage.Favourite
	for id := range f.favs {
		out = append(out, storage.Favourite{ID: "fav-1", UserID: uid, PromptID: id, PromptTitle: f.templates[id].Title})
	}
	return out, nil
}

func (f *fakeStore) CreateReport(_ context.Context, r storage.Report) (storage.Report, error) {
	r.ID = "rep-1"
	r.CreatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.reports = append(f.reports, r)
	return r, nil
}

func (f *fakeStore) ListReports(context.Context, string) ([]storage.Report, error) {
	return f.reports, nil
}

type fakeCache struct{ invalidated []int64 }

func (f *fakeCache) Invalidate(_ context.Context, id int64) { f.invalidated = append(f.invalidated, id) }

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow(context.Context, string, time.Time) (bool, int64, time.Time, error) {
	return f.allow, 61, time.Now().Add(30 * time.Minute), nil
}

type fixture struct {
	router   *fakeRouter
	accounts *fakeAccounts
	store    *fakeStore
	cache    *fakeCache
	verifier *auth.Verifier
	handler  http.Handler
}

func newFixture(t *testing.T, limiter Limiter) *fixture {
	t.Helper()
	v, err := auth.NewVerifier("test-secret", "")
	require.NoError(t, err)
	f := &fixture{
		router:   &fakeRouter{},
		accounts: &fakeAccounts{balances: map[string]int64{"u1": 4}},
		store:    newFakeStore(),
		cache:    &fakeCache{},
		verifier: v,
	}
	f.handler = New(Config{
		Router:   f.router,
		Accounts: f.accounts,
		History:  fakeHistory{entries: []history.Entry{{RequestID: "r1", Input: "{}", Output: "hello"}}},
		Store:    f.store,
		Verifier: v,
		Cache:    f.cache,
		Limiter:  limiter,
		Logger:   zerolog.Nop(),
	}).Handler()
	return f
}

func (f *fixture) token(t *testing.T, uid string, verified, admin bool) string {
	t.Helper()
	tok, err := f.verifier.Issue(uid, verified, admin, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/menu", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/menu", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/menu", f.token(t, "u1", false, false), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "email_not_verified", decode(t, rec)["code"])

	rec = f.do(t, http.MethodGet, "/api/menu", f.token(t, "u1", true, false), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(t, fakeLimiter{allow: true})
	f.router.resp = gateway.Response{Text: "an autumn haiku", RequestID: "req-1", Charged: true}

	rec := f.do(t, http.MethodPost, "/api/process", f.token(t, "u1", true, false), map[string]any{
		"prompt_id": 1,
		"llm_id":    2,
		"parameters": []map[string]any{
			{"title": "Topic", "kind": 1, "value": "autumn"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "ok", body["code"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "an autumn haiku", data["text"])
	assert.Equal(t, "req-1", data["request_id"])
	assert.Equal(t, true, data["charged"])

	assert.Equal(t, "u1", f.router.uid)
	assert.EqualValues(t, 1, f.router.last.PromptID)
	assert.EqualValues(t, 2, f.router.last.ProviderID)
	require.Len(t, f.router.last.Parameters, 1)
	assert.Equal(t, "autumn", f.router.last.Parameters[0].Value.String())
}

func TestProcessErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&gateway.Error{Kind: gateway.KindInsufficientCredit}, http.StatusPaymentRequired, "insufficient_credit"},
		{&gateway.Error{Kind: gateway.KindPromptNotFound}, http.StatusNotFound, "prompt_not_found"},
		{&gateway.Error{Kind: gateway.KindInvalidProvider}, http.StatusBadRequest, "invalid_provider"},
		{&gateway.Error{Kind: gateway.KindMissingPayload}, http.StatusBadRequest, "missing_payload"},
		{&gateway.Error{Kind: gateway.KindUnsupportedPromptType}, http.StatusBadRequest, "unsupported_prompt_type"},
		{&gateway.Error{Kind: gateway.KindCanceled}, StatusClientClosedRequest, "canceled"},
		{&gateway.Error{Kind: gateway.KindUpstreamProviderFailure, Provider: "gemini"}, http.StatusBadGateway, "upstream_provider_failure"},
		{&gateway.Error{Kind: gateway.KindUpstreamProviderFailure, Provider: "gemini", Timeout: true}, http.StatusGatewayTimeout, "upstream_provider_failure"},
		{&gateway.Error{Kind: gateway.KindPersistenceFailure, Message: "postgres://secret@db"}, http.StatusInternalServerError, "persistence_failure"},
		{errors.New("unexpected"), http.StatusInternalServerError, "persistence_failure"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture(t, nil)
			f.router.err = tc.err

			rec := f.do(t, http.MethodPost, "/api/process", f.token(t, "u1", true, false), map[string]any{"prompt_id": 1, "llm_id": 3})
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.code, body["code"])
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestProcessUpstreamNamesProvider(t *testing.T) {
	f := newFixture(t, nil)
	f.router.err = &gateway.Error{Kind: gateway.KindUpstreamProviderFailure, Provider: "claude", Timeout: true, Message: "deadline"}

	rec := f.do(t, http.MethodPost, "/api/process", f.token(t, "u1", true, false), map[string]any{"prompt_id": 1})
	body := decode(t, rec)
	assert.Equal(t, "claude", body["provider"])
	assert.Equal(t, true, body["timeout"])
}

func TestProcessBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(t, "u1", true, false)

	rec := f.do(t, http.MethodPost, "/api/process", tok, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/process", tok, map[string]any{"llm_id": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/process", tok, map[string]any{
		"prompt_id":  1,
		"parameters": []map[string]any{{"title": "Doc", "kind": 3, "value": "%%% not base64"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.router.calls)
}

func TestProcessRateLimited(t *testing.T) {
	f := newFixture(t, fakeLimiter{allow: false})

	rec := f.do(t, http.MethodPost, "/api/process", f.token(t, "u1", true, false), map[string]any{"prompt_id": 1})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["code"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Zero(t, f.router.calls, "rate limited requests never reach the pipeline")
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/users/dashboard", f.token(t, "u1", true, false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 4, data["credits"])
	assert.Len(t, data["history"], 1)
}

func TestFavourites(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(t, "u1", true, false)

	rec := f.do(t, http.MethodPost, "/api/favourites", tok, map[string]any{"prompt_id": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/favourites", tok, map[string]any{"prompt_id": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/favourites", tok, map[string]any{"prompt_id": 42})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/favourites", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	favs := decode(t, rec)["data"].([]any)
	require.Len(t, favs, 1)
	assert.Equal(t, "Haiku", favs[0].(map[string]any)["prompt_title"])

	rec = f.do(t, http.MethodDelete, "/api/favourites/1", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/favourites/1", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/favourites/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReports(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(t, "u1", true, false)

	rec := f.do(t, http.MethodPost, "/api/reports", tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reports", tok, map[string]any{"request_id": "req-1", "report_text": "wrong answer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.store.reports, 1)
	assert.Equal(t, "u1", f.store.reports[0].UserID)

	rec = f.do(t, http.MethodGet, "/api/reports", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reports := decode(t, rec)["data"].([]any)
	require.Len(t, reports, 1)
	assert.Equal(t, "wrong answer", reports[0].(map[string]any)["report_text"])
}

func TestAdminPromptCatalogue(t *testing.T) {
	f := newFixture(t, nil)
	user := f.token(t, "u1", true, false)
	admin := f.token(t, "root", true, true)

	newPrompt := map[string]any{
		"title": "Resumo", "content": "Resuma o documento", "kind": 2,
		"parameters": []map[string]any{{"title": "Documento", "kind": 3}},
	}
	rec := f.do(t, http.MethodPost, "/api/prompts", user, newPrompt)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/prompts", admin, newPrompt)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, f.store.templates, 2)

	rec = f.do(t, http.MethodPost, "/api/prompts", admin, map[string]any{"title": "x", "content": "y", "kind": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/prompts/1", admin, map[string]any{"title": "Haiku 2", "content": "Write", "kind": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/prompts/77", admin, map[string]any{"title": "x", "content": "y", "kind": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/prompts/1/parameters", admin, map[string]any{"title": "Tone", "kind": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/prompts/1/parameters", admin, map[string]any{"title": "Tone", "kind": 42})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/parameters/99", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/prompts/1", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []int64{1, 1, 1, 1}, f.cache.invalidated, "every successful mutation drops the cached template")
}

func TestPromptReads(t *testing.T) {
	f := newFixture(t, nil)
	user := f.token(t, "u1", true, false)

	rec := f.do(t, http.MethodGet, "/api/prompts/1", user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Haiku", data["title"])
	assert.Len(t, data["parameters"], 1)

	rec = f.do(t, http.MethodGet, "/api/prompts/1/parameters", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	params := decode(t, rec)["data"].([]any)
	require.Len(t, params, 1)
	assert.Equal(t, "Topic", params[0].(map[string]any)["title"])

	rec = f.do(t, http.MethodGet, "/api/prompts/77", user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/prompts/77/parameters", user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/prompts/abc", user, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type countingReader struct {
	calls int
	tpl   prompts.Template
}

func (r *countingReader) GetTemplate(context.Context, int64) (prompts.Template, error) {
	r.calls++
	return r.tpl, nil
}

func TestPromptReadsPreferTemplateReader(t *testing.T) {
	v, err := auth.NewVerifier("test-secret", "")
	require.NoError(t, err)
	reader := &countingReader{tpl: prompts.Template{ID: 5, Title: "Cached", Kind: prompts.KindText}}
	h := New(Config{Store: newFakeStore(), Templates: reader, Verifier: v, Logger: zerolog.Nop()}).Handler()

	tok, err := v.Issue("u1", true, false, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/prompts/5", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, "Cached", decode(t, rec)["data"].(map[string]any)["title"])
}

func TestAdminParameterReadUpdate(t *testing.T) {
	f := newFixture(t, nil)
	user := f.token(t, "u1", true, false)
	admin := f.token(t, "root", true, true)

	rec := f.do(t, http.MethodGet, "/api/parameters/99", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/parameters/99", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Topic", decode(t, rec)["data"].(map[string]any)["title"])
	rec = f.do(t, http.MethodGet, "/api/parameters/5", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/parameters/99", admin, map[string]any{"title": "Subject", "description": "what to write about", "kind": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Subject", f.store.params[99].Title)
	assert.Equal(t, int64(1), f.store.params[99].PromptID)
	assert.Equal(t, []int64{1}, f.cache.invalidated, "editing a parameter drops the cached template")

	rec = f.do(t, http.MethodPut, "/api/parameters/99", admin, map[string]any{"title": "Subject", "kind": 42})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/parameters/5", admin, map[string]any{"title": "x", "kind": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []int64{1}, f.cache.invalidated)
}

func TestFilePromptNeedsFileParameter(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.token(t, "root", true, true)

	rec := f.do(t, http.MethodPost, "/api/prompts", admin, map[string]any{
		"title": "Resumo", "content": "Resuma", "kind": 2,
		"parameters": []map[string]any{{"title": "Foco", "kind": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file or image parameter")
	assert.Len(t, f.store.templates, 1)

	rec = f.do(t, http.MethodPost, "/api/prompts", admin, map[string]any{
		"title": "Foto", "content": "Descreva", "kind": 2,
		"parameters": []map[string]any{{"title": "Imagem", "kind": 7}},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/prompts", admin, map[string]any{"title": "Depois", "content": "Parametros depois", "kind": 2})
	assert.Equal(t, http.StatusCreated, rec.Code, "parameters may be attached after creation")
}

func TestAdminGrantCredits(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.token(t, "root", true, true)

	rec := f.do(t, http.MethodPost, "/api/admin/credits", admin, map[string]any{"user_id": "u1", "amount": 6})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, decode(t, rec)["data"].(map[string]any)["credits"])

	rec = f.do(t, http.MethodPost, "/api/admin/credits", admin, map[string]any{"user_id": "u1", "amount": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	v, err := auth.NewVerifier("k", "")
	require.NoError(t, err)
	down := New(Config{Verifier: v, Logger: zerolog.Nop(), Ping: func(context.Context) error { return errors.New("db down") }}).Handler()
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
