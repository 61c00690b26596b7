package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"github.com/alemoreirac/maria-aux-back/internal/history"
)

// Telegram rejects messages over 4096 characters.
const maxMessageRunes = 4000

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	text := strings.Join([]string{
		"Commands:",
		"/help",
		"/balance <user_id>",
		"/grant <user_id> <amount>",
		"/history <user_id> [limit]",
		"/prompts",
	}, "\n")
	return s.reply(ctx, b, text)
}

func (s *Service) balanceText(ctx context.Context, args string) string {
	uid, _ := splitFirstWord(args)
	if uid == "" {
		return "Usage: /balance <user_id>"
	}
	return fmt.Sprintf("%s has %d credits.", uid, s.credits.Balance(ctx, uid))
}

func (s *Service) grantText(ctx context.Context, args string) string {
	uid, rest := splitFirstWord(args)
	raw, _ := splitFirstWord(rest)
	if uid == "" || raw == "" {
		return "Usage: /grant <user_id> <amount>"
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		return "Amount must be a positive integer."
	}
	balance, err := s.credits.Add(ctx, uid, amount)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", uid).Int64("amount", amount).Msg("grant failed")
		return "Failed to grant credits."
	}
	s.logger.Info().Str("user_id", uid).Int64("amount", amount).Int64("balance", balance).Msg("credits granted")
	return fmt.Sprintf("Granted %d credits to %s. New balance: %d.", amount, uid, balance)
}

func (s *Service) historyText(ctx context.Context, args string) string {
	uid, rest := splitFirstWord(args)
	if uid == "" {
		return "Usage: /history <user_id> [limit]"
	}
	limit := 5
	if raw, _ := splitFirstWord(rest); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "Limit must be a positive integer."
		}
		limit = min(n, history.DefaultRecentLimit)
	}

	entries, err := s.history.Recent(ctx, uid, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", uid).Msg("history lookup failed")
		return "Failed to load history."
	}
	if len(entries) == 0 {
		return "No interactions recorded for " + uid + "."
	}
	lines := []string{"Recent interactions of " + uid + ":"}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s [%s] %s", e.CreatedAt.UTC().Format("2006-01-02 15:04"), shortID(e.RequestID), oneLine(e.Output)))
	}
	return clip(strings.Join(lines, "\n"))
}

func (s *Service) promptsText(ctx context.Context, _ string) string {
	list, err := s.templates.ListTemplates(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list prompts failed")
		return "Failed to load prompts."
	}
	if len(list) == 0 {
		return "No prompts configured."
	}
	lines := []string{"Prompts:"}
	for _, t := range list {
		lines = append(lines, fmt.Sprintf("- #%d %s (%s, %d params)", t.ID, t.Title, t.Kind, len(t.Parameters)))
	}
	return clip(strings.Join(lines, "\n"))
}

func commandRemainder(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func splitFirstWord(s string) (first string, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	return string(r[:maxMessageRunes])
}
