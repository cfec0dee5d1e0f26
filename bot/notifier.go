package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier adapts the Telegram client to the poll engine's alert delivery
// contract. Delivery is best-effort; the engine logs failures and moves on.
type Notifier struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewNotifier creates a Telegram-backed notifier.
func NewNotifier(api *tgbotapi.BotAPI, logger *slog.Logger) *Notifier {
	return &Notifier{api: api, logger: logger}
}

// Send delivers text to the chat identified by chatID.
func (n *Notifier) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.logger.Info("Alert delivered", "chat_id", chatID, "length", len(text))
	return nil
}
