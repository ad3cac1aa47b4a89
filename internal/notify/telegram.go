package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stemforge/stem-forge/internal/domain"
)

// TelegramNotifier mirrors every learner's timer cues into one operator chat.
// Each message names the learner it belongs to.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects to the Bot API with token. Every API call is
// bounded by timeout.
func NewTelegramNotifier(token string, chatID int64, timeout time.Duration) (*TelegramNotifier, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// Username returns the bot's account name.
func (t *TelegramNotifier) Username() string {
	return t.bot.Self.UserName
}

// Notify sends cue notifications as HTML messages. Other kinds are ignored.
func (t *TelegramNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Kind != KindCue || !n.Desktop {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatTelegram(n))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatTelegram renders n as a Telegram HTML message tagged with the learner.
func FormatTelegram(n Notification) string {
	icon := "☕"
	if n.Next == "work" {
		icon = "🎯"
	}
	return fmt.Sprintf("%s <b>%s</b>\n\n%s\n\n<i>%s</i>", icon,
		html.EscapeString(n.Title), html.EscapeString(n.Body),
		html.EscapeString(domain.LearnerName(n.UserID)))
}
