package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/metrics"
	"github.com/alemoreirac/maria-aux-back/internal/queue"
)

// Queue is the alert stream the worker drains.
type Queue interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, count int64) ([]queue.Message, error)
	Ack(ctx context.Context, messageID string) error
	Publish(ctx context.Context, a queue.Alert) (string, error)
}

// Notifier delivers one alert to an operator.
type Notifier interface {
	Notify(ctx context.Context, a queue.Alert) error
}

type Deduper interface {
	MarkFirst(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Worker struct {
	queue         Queue
	notifier      Notifier
	dedupe        Deduper
	maxRetries    int
	batchSize     int64
	retryInterval time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Queue    Queue
	Notifier Notifier
	// Dedupe is optional. When set, an alert id is delivered at most once
	// while its marker lives.
	Dedupe        Deduper
	MaxRetries    int
	BatchSize     int64
	RetryInterval time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Worker{
		queue:         cfg.Queue,
		notifier:      cfg.Notifier,
		dedupe:        cfg.Dedupe,
		maxRetries:    cfg.MaxRetries,
		batchSize:     cfg.BatchSize,
		retryInterval: cfg.RetryInterval,
		logger:        cfg.Logger.With().Str("component", "alert_worker").Logger(),
		metrics:       m,
	}
}

// Start runs concurrency consumers until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.drain(ctx, log); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read alert stream")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryInterval):
			}
		}
	}
}

// drain reads one batch and settles every message in it. It returns how
// many messages were read.
func (w *Worker) drain(ctx context.Context, log zerolog.Logger) (int, error) {
	messages, err := w.queue.Read(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		w.settle(ctx, log, msg)
	}
	return len(messages), nil
}

func (w *Worker) settle(ctx context.Context, log zerolog.Logger, msg queue.Message) {
	a := msg.Alert
	log = log.With().Str("alert_id", a.ID).Str("alert_kind", string(a.Kind)).Int("attempt", a.Attempts).Logger()

	if w.dedupe != nil {
		first, err := w.dedupe.MarkFirst(ctx, a.ID)
		if err != nil {
			log.Warn().Err(err).Msg("dedupe check failed, delivering anyway")
		} else if !first {
			log.Debug().Msg("duplicate alert skipped")
			w.ack(ctx, log, msg.ID)
			return
		}
	}

	err := w.notifier.Notify(ctx, a)
	if err == nil {
		w.metrics.AlertsSent.Inc()
		w.ack(ctx, log, msg.ID)
		return
	}

	w.metrics.AlertsFailed.Inc()
	log.Error().Err(err).Msg("alert delivery failed")

	if w.dedupe != nil {
		if ferr := w.dedupe.Forget(ctx, a.ID); ferr != nil {
			log.Warn().Err(ferr).Msg("failed to clear dedupe marker")
		}
	}

	if a.Attempts < w.maxRetries && !errors.Is(err, context.Canceled) {
		a.Attempts++
		if _, pubErr := w.queue.Publish(ctx, a); pubErr != nil {
			// Left pending in the group; it will be seen again on restart.
			log.Error().Err(pubErr).Msg("failed to re-publish alert")
			return
		}
	} else {
		log.Error().Str("user_id", a.UserID).Str("request_id", a.RequestID).Str("message", a.Message).Msg("alert dropped after retries")
	}
	w.ack(ctx, log, msg.ID)
}

func (w *Worker) ack(ctx context.Context, log zerolog.Logger, id string) {
	if err := w.queue.Ack(ctx, id); err != nil {
		log.Error().Err(err).Str("msg_id", id).Msg("failed to ack alert")
	}
}

// LogNotifier writes alerts to the log. It is used when no chat is
// configured for operator notifications.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a queue.Alert) error {
	n.Logger.Warn().
		Str("alert_id", a.ID).
		Str("alert_kind", string(a.Kind)).
		Str("user_id", a.UserID).
		Str("request_id", a.RequestID).
		Str("provider", a.Provider).
		Time("created_at", a.CreatedAt).
		Msg(a.Message)
	return nil
}
