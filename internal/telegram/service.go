package telegram

import (
	"context"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/history"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
)

type Credits interface {
	Balance(ctx context.Context, userID string) int64
	Add(ctx context.Context, userID string, amount int64) (int64, error)
}

type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]history.Entry, error)
}

type Templates interface {
	ListTemplates(ctx context.Context) ([]prompts.Template, error)
}

// Service is the operator bot. Every command is restricted to one admin
// Telegram user.
type Service struct {
	credits     Credits
	history     History
	templates   Templates
	logger      zerolog.Logger
	adminUserID int64
	timeout     time.Duration
}

type Config struct {
	Credits     Credits
	History     History
	Templates   Templates
	Logger      zerolog.Logger
	AdminUserID int64
	// Timeout bounds the storage work behind one command.
	Timeout time.Duration
}

func NewService(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Service{
		credits:     cfg.Credits,
		history:     cfg.History,
		templates:   cfg.Templates,
		logger:      cfg.Logger.With().Str("component", "telegram").Logger(),
		adminUserID: cfg.AdminUserID,
		timeout:     cfg.Timeout,
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("start", s.help))
	d.AddHandler(handlers.NewCommand("balance", s.command(s.balanceText)))
	d.AddHandler(handlers.NewCommand("grant", s.command(s.grantText)))
	d.AddHandler(handlers.NewCommand("history", s.command(s.historyText)))
	d.AddHandler(handlers.NewCommand("prompts", s.command(s.promptsText)))
}

// command adapts a text-producing operation into an admin-only handler.
func (s *Service) command(fn func(ctx context.Context, args string) string) handlers.Response {
	return func(b *gotgbot.Bot, ctx *ext.Context) error {
		if !s.isAdmin(ctx) {
			return s.reply(ctx, b, "This bot is restricted to its operator.")
		}
		msg := ctx.EffectiveMessage
		if msg == nil {
			return nil
		}
		c, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.reply(ctx, b, fn(c, commandRemainder(msg.GetText())))
	}
}

func (s *Service) isAdmin(ctx *ext.Context) bool {
	return s.adminUserID > 0 && userID(ctx) == s.adminUserID
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func userID(ctx *ext.Context) int64 {
	if ctx.EffectiveUser == nil {
		return 0
	}
	return ctx.EffectiveUser.Id
}
