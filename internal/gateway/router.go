package gateway

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/history"
	"github.com/alemoreirac/maria-aux-back/internal/metrics"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/providers"
	"github.com/alemoreirac/maria-aux-back/internal/queue"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

type Ledger interface {
	Check(ctx context.Context, userID string) (bool, error)
	Deduct(ctx context.Context, userID string) bool
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, id int64) (prompts.Template, error)
}

type InteractionLogger interface {
	LogInteraction(ctx context.Context, userID, inputSummary, output string) (string, error)
}

type AlertPublisher interface {
	Publish(ctx context.Context, a queue.Alert) (string, error)
}

// Config wires the router. OutageAlertInterval is the minimum gap between
// two persistence outage alerts and defaults to one minute.
type Config struct {
	Adapters            map[providers.ID]providers.Adapter
	DefaultTimeout      time.Duration
	Timeouts            map[providers.ID]time.Duration
	Alerts              AlertPublisher
	OutageAlertInterval time.Duration
	Logger              zerolog.Logger
}

// Request is one inbound AI call. A zero ProviderID selects the template's
// preferred provider.
type Request struct {
	PromptID   int64                     `json:"prompt_id"`
	ProviderID providers.ID              `json:"llm_id"`
	Parameters []prompts.FilledParameter `json:"parameters"`
}

type Response struct {
	Text      string    `json:"text"`
	RequestID string    `json:"request_id,omitempty"`
	Charged   bool      `json:"charged"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Router runs the credit-gated pipeline. It holds no per-request state and
// is safe for concurrent use.
type Router struct {
	ledger       Ledger
	templates    TemplateStore
	interactions InteractionLogger
	adapters     map[providers.ID]providers.Adapter
	timeout      time.Duration
	timeouts     map[providers.ID]time.Duration
	alerts       AlertPublisher
	outageEvery  time.Duration
	lastOutage   atomic.Int64
	log          zerolog.Logger
}

func New(ledger Ledger, templates TemplateStore, interactions InteractionLogger, cfg Config) *Router {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 90 * time.Second
	}
	if cfg.OutageAlertInterval <= 0 {
		cfg.OutageAlertInterval = time.Minute
	}
	adapters := make(map[providers.ID]providers.Adapter, len(cfg.Adapters))
	for id, a := range cfg.Adapters {
		if a != nil {
			adapters[id] = a
		}
	}
	return &Router{
		ledger:       ledger,
		templates:    templates,
		interactions: interactions,
		adapters:     adapters,
		timeout:      cfg.DefaultTimeout,
		timeouts:     cfg.Timeouts,
		alerts:       cfg.Alerts,
		outageEvery:  cfg.OutageAlertInterval,
		log:          cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Providers lists the configured provider ids.
func (r *Router) Providers() []providers.ID {
	out := make([]providers.ID, 0, len(r.adapters))
	for _, id := range []providers.ID{providers.GPT, providers.Claude, providers.Gemini} {
		if _, ok := r.adapters[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// dispatch is the payload chosen for one request.
type dispatch struct {
	kind   prompts.Kind
	prompt string
	file   providers.FileRequest
}

func (r *Router) RouteAI(ctx context.Context, req Request, userID string) (resp Response, err error) {
	log := r.log.With().Str("user_id", userID).Int64("prompt_id", req.PromptID).Logger()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
			log.Warn().Err(err).Msg("ai request failed")
		}
		metrics.Global().RoutedRequests.WithLabelValues(outcome).Inc()
	}()

	if ctx.Err() != nil {
		return Response{}, newError(KindCanceled, "request canceled", ctx.Err())
	}

	// CHECK_CREDIT
	ok, err := r.ledger.Check(ctx, userID)
	if err != nil {
		return Response{}, r.storeError(ctx, userID, "credit check failed", err)
	}
	if !ok {
		return Response{}, newError(KindInsufficientCredit, "no credits left", nil)
	}

	// LOAD_TEMPLATE
	tpl, err := r.templates.GetTemplate(ctx, req.PromptID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Response{}, newError(KindPromptNotFound, "prompt not found", err)
		}
		return Response{}, r.storeError(ctx, userID, "template load failed", err)
	}

	// SELECT_PAYLOAD
	d, err := selectPayload(tpl, req.Parameters)
	if err != nil {
		return Response{}, err
	}

	// DISPATCH
	providerID := req.ProviderID
	if providerID == 0 {
		providerID = tpl.PreferredProvider
	}
	adapter, ok := r.adapters[providerID]
	if !ok {
		return Response{}, newError(KindInvalidProvider, "provider "+providerID.String()+" is not available", nil)
	}
	log = log.With().Str("provider", adapter.Name()).Str("kind", d.kind.String()).Logger()

	text, err := r.invoke(ctx, providerID, adapter, d)
	if err != nil {
		return Response{}, err
	}
	if ctx.Err() != nil {
		return Response{}, newError(KindCanceled, "request canceled after provider call", ctx.Err())
	}

	// The result is committed from here on: the caller going away must not
	// leave a served response unlogged or uncharged.
	persistCtx := context.WithoutCancel(ctx)
	resp = Response{Text: text}

	// LOG
	requestID, logErr := r.interactions.LogInteraction(persistCtx, userID, history.Summarize(req.PromptID, adapter.Name(), req.Parameters), text)
	if logErr != nil {
		metrics.Global().LogFailures.Inc()
		log.Error().Err(logErr).Msg("interaction log failed")
		resp.Warnings = append(resp.Warnings, Warning{Kind: KindLoggingFailure, Message: "interaction was not recorded"})
		r.alert(persistCtx, queue.Alert{
			Kind:     queue.AlertLoggingFailure,
			UserID:   userID,
			Provider: adapter.Name(),
			Message:  logErr.Error(),
		})
	}
	resp.RequestID = requestID

	// DEDUCT
	if r.ledger.Deduct(persistCtx, userID) {
		resp.Charged = true
	} else {
		metrics.Global().DeductionAnomalies.Inc()
		log.Error().Str("request_id", requestID).Msg("credit deduction failed after successful provider call")
		resp.Warnings = append(resp.Warnings, Warning{Kind: KindDeductionAnomaly, Message: "credit was not deducted"})
		r.alert(persistCtx, queue.Alert{
			Kind:      queue.AlertDeductionAnomaly,
			UserID:    userID,
			RequestID: requestID,
			Provider:  adapter.Name(),
			Message:   "provider call succeeded but no credit could be deducted",
		})
	}

	log.Info().Str("request_id", requestID).Bool("charged", resp.Charged).Msg("ai request served")
	return resp, nil
}

func selectPayload(tpl prompts.Template, params []prompts.FilledParameter) (dispatch, error) {
	switch tpl.Kind {
	case prompts.KindText, prompts.KindWebSearch:
		return dispatch{kind: tpl.Kind, prompt: prompts.Render(tpl, params)}, nil
	case prompts.KindFile:
		f, ok := prompts.FirstFile(params)
		if !ok {
			return dispatch{}, newError(KindMissingPayload, "file prompt needs a file parameter", nil)
		}
		return dispatch{
			kind: tpl.Kind,
			file: providers.FileRequest{
				Prompt:   prompts.Render(tpl, params),
				Data:     f.Value.Bytes(),
				MIMEType: prompts.MIMEType(f.Kind),
				Filename: prompts.DefaultFilename(f.Kind),
			},
		}, nil
	default:
		return dispatch{}, newError(KindUnsupportedPromptType, "prompt kind "+tpl.Kind.String()+" is not supported", nil)
	}
}

func (r *Router) invoke(ctx context.Context, id providers.ID, adapter providers.Adapter, d dispatch) (string, error) {
	switch d.kind {
	case prompts.KindFile:
		fr, ok := adapter.(providers.FileRunner)
		if !ok {
			return "", newError(KindInvalidProvider, adapter.Name()+" cannot analyse files", providers.ErrUnsupported)
		}
		return r.call(ctx, id, adapter.Name(), "file", func(c context.Context) (string, error) {
			return fr.RunFile(c, d.file)
		})

	case prompts.KindWebSearch:
		ws, ok := adapter.(providers.WebSearcher)
		if !ok {
			return "", newError(KindInvalidProvider, adapter.Name()+" cannot search the web", providers.ErrUnsupported)
		}
		text, err := r.call(ctx, id, adapter.Name(), "web_search", func(c context.Context) (string, error) {
			return ws.RunWebSearch(c, d.prompt)
		})
		if err == nil || IsKind(err, KindCanceled) {
			return text, err
		}
		r.log.Warn().Err(err).Str("provider", adapter.Name()).Msg("web search failed, falling back to text")
		text, fallbackErr := r.call(ctx, id, adapter.Name(), "text", func(c context.Context) (string, error) {
			return adapter.RunText(c, d.prompt)
		})
		if fallbackErr == nil {
			return text, nil
		}
		if IsKind(fallbackErr, KindCanceled) {
			return "", fallbackErr
		}
		return "", err

	default:
		return r.call(ctx, id, adapter.Name(), "text", func(c context.Context) (string, error) {
			return adapter.RunText(c, d.prompt)
		})
	}
}

// call runs one adapter capability under the provider's timeout and maps
// its failure into the taxonomy.
func (r *Router) call(ctx context.Context, id providers.ID, name, capability string, fn func(context.Context) (string, error)) (string, error) {
	timeout := r.timeout
	if t, ok := r.timeouts[id]; ok && t > 0 {
		timeout = t
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	text, err := fn(callCtx)
	metrics.Global().ProviderLatency.WithLabelValues(name, capability).Observe(time.Since(started).Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", newError(KindCanceled, "request canceled during provider call", ctx.Err())
	}

	msg := err.Error()
	var ue *providers.UpstreamError
	if errors.As(err, &ue) {
		msg = ue.Message
	}
	return "", &Error{
		Kind:     KindUpstreamProviderFailure,
		Provider: name,
		Timeout:  providers.IsTimeout(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded),
		Message:  msg,
		Err:      err,
	}
}

func (r *Router) storeError(ctx context.Context, userID, msg string, err error) error {
	if ctx.Err() != nil {
		return newError(KindCanceled, "request canceled", ctx.Err())
	}
	r.outageAlert(ctx, userID, msg, err)
	return newError(KindPersistenceFailure, msg, err)
}

// outageAlert publishes at most one persistence outage alert per
// outageEvery, so a database outage does not flood the operator chat.
func (r *Router) outageAlert(ctx context.Context, userID, msg string, err error) {
	now := time.Now().UnixNano()
	last := r.lastOutage.Load()
	if last != 0 && now-last < int64(r.outageEvery) {
		return
	}
	if !r.lastOutage.CompareAndSwap(last, now) {
		return
	}
	r.alert(context.WithoutCancel(ctx), queue.Alert{
		Kind:    queue.AlertPersistenceOutage,
		UserID:  userID,
		Message: msg + ": " + err.Error(),
	})
}

func (r *Router) alert(ctx context.Context, a queue.Alert) {
	if r.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := r.alerts.Publish(ctx, a); err != nil {
		r.log.Error().Err(err).Str("alert_kind", string(a.Kind)).Msg("alert publish failed")
		return
	}
	metrics.Global().AlertsPublished.Inc()
}
