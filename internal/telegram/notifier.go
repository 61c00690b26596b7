package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"github.com/alemoreirac/maria-aux-back/internal/queue"
)

type Sender interface {
	SendMessageWithContext(ctx context.Context, chatId int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

// AlertNotifier forwards operator alerts to one Telegram chat.
type AlertNotifier struct {
	sender Sender
	chatID int64
}

func NewAlertNotifier(sender Sender, chatID int64) *AlertNotifier {
	return &AlertNotifier{sender: sender, chatID: chatID}
}

func (n *AlertNotifier) Notify(ctx context.Context, a queue.Alert) error {
	if _, err := n.sender.SendMessageWithContext(ctx, n.chatID, FormatAlert(a), nil); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

func FormatAlert(a queue.Alert) string {
	lines := []string{"ALERT " + strings.ToUpper(string(a.Kind))}
	add := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("user", a.UserID)
	add("request", a.RequestID)
	add("provider", a.Provider)
	add("message", a.Message)
	if !a.CreatedAt.IsZero() {
		add("at", a.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if a.Attempts > 0 {
		add("attempt", fmt.Sprintf("%d", a.Attempts+1))
	}
	return clip(strings.Join(lines, "\n"))
}
