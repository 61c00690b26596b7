package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/providers"
	"github.com/alemoreirac/maria-aux-back/internal/queue"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

// memLedger mirrors the storage semantics: deduction is a conditional decrement.
type memLedger struct {
	mu        sync.Mutex
	balances  map[string]int64
	checkErr  error
	checkHook func()
	checks    int
}

func newLedger(balances map[string]int64) *memLedger {
	return &memLedger{balances: balances}
}

func (l *memLedger) Check(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks++
	if l.checkHook != nil {
		l.checkHook()
	}
	if l.checkErr != nil {
		return false, l.checkErr
	}
	return l.balances[userID] > 0, nil
}

func (l *memLedger) Deduct(_ context.Context, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] <= 0 {
		return false
	}
	l.balances[userID]--
	return true
}

func (l *memLedger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

type memTemplates struct {
	mu    sync.Mutex
	byID  map[int64]prompts.Template
	err   error
	loads int
}

func (m *memTemplates) GetTemplate(_ context.Context, id int64) (prompts.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return prompts.Template{}, m.err
	}
	t, ok := m.byID[id]
	if !ok {
		return prompts.Template{}, storage.ErrNotFound
	}
	return t, nil
}

type logEntry struct {
	userID, summary, output string
}

type memLog struct {
	mu      sync.Mutex
	entries []logEntry
	err     error
}

func (m *memLog) LogInteraction(_ context.Context, userID, summary, output string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.entries = append(m.entries, logEntry{userID, summary, output})
	return "req-" + string(rune('a'+len(m.entries)-1)), nil
}

func (m *memLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []queue.Alert
}

func (m *memAlerts) Publish(_ context.Context, a queue.Alert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return "1-0", nil
}

func (m *memAlerts) kinds() []queue.AlertKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]queue.AlertKind, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a.Kind)
	}
	return out
}

// spyAdapter records which capability was invoked. hook, when set, runs
// before every call and its error is returned instead of the canned result.
type spyAdapter struct {
	name string

	mu       sync.Mutex
	calls    map[string]int
	prompts  []string
	lastFile providers.FileRequest

	textErr   error
	fileErr   error
	searchErr error
	hook      func(ctx context.Context) error
}

func newSpy(name string) *spyAdapter {
	return &spyAdapter{name: name, calls: map[string]int{}}
}

func (s *spyAdapter) record(capability, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[capability]++
	s.prompts = append(s.prompts, prompt)
}

func (s *spyAdapter) count(capability string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[capability]
}

func (s *spyAdapter) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *spyAdapter) run(ctx context.Context, capability string, err error) (string, error) {
	if s.hook != nil {
		if herr := s.hook(ctx); herr != nil {
			return "", herr
		}
	}
	if err != nil {
		return "", err
	}
	return s.name + ":" + capability, nil
}

func (s *spyAdapter) Name() string { return s.name }

func (s *spyAdapter) RunText(ctx context.Context, prompt string) (string, error) {
	s.record("text", prompt)
	return s.run(ctx, "text", s.textErr)
}

func (s *spyAdapter) RunFile(ctx context.Context, req providers.FileRequest) (string, error) {
	s.record("file", req.Prompt)
	s.mu.Lock()
	s.lastFile = req
	s.mu.Unlock()
	return s.run(ctx, "file", s.fileErr)
}

func (s *spyAdapter) RunWebSearch(ctx context.Context, prompt string) (string, error) {
	s.record("web_search", prompt)
	return s.run(ctx, "web_search", s.searchErr)
}

// textOnly exposes just the mandatory capability of a spy.
type textOnly struct {
	spy *spyAdapter
}

func (t textOnly) Name() string { return t.spy.Name() }

func (t textOnly) RunText(ctx context.Context, prompt string) (string, error) {
	return t.spy.RunText(ctx, prompt)
}

var errUpstream = &providers.UpstreamError{Provider: "x", Message: "503 overloaded"}

var errTimeout = &providers.UpstreamError{Provider: "x", Message: "deadline", Timeout: true, Err: context.DeadlineExceeded}

var errStoreDown = errors.New("dial tcp: connection refused")
