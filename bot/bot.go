// Package bot implements the Telegram command surface: watch-list
// management and on-demand checks for individual chats.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"mandarake-watch/pkg/watch"
	"mandarake-watch/state"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `Mandarake Watch Bot commands:
/add <name> <url> - add new watch item (name can include spaces)
/remove <id_or_name> - remove item
/list - show your watch list
/start - enable alerts for all your items
/stop - disable alerts for all your items
/start <id_or_name> - enable single item
/stop <id_or_name> - disable single item
/check <id_or_name_or_url> - force check item now
/help - show this help`

// Checker runs an on-demand availability check for /check.
type Checker interface {
	Check(ctx context.Context, pageURL string) (*watch.StockResult, error)
}

// Bot handles Telegram updates against the shared state manager.
type Bot struct {
	api          *tgbotapi.BotAPI
	manager      *state.Manager
	checker      Checker
	logger       *slog.Logger
	checkTimeout time.Duration
}

// New creates the command bot.
func New(api *tgbotapi.BotAPI, manager *state.Manager, checker Checker, checkTimeout time.Duration, logger *slog.Logger) *Bot {
	return &Bot{
		api:          api,
		manager:      manager,
		checker:      checker,
		checkTimeout: checkTimeout,
		logger:       logger,
	}
}

// Run consumes updates via long polling until ctx is cancelled. It blocks.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	updates := b.api.GetUpdatesChan(cfg)
	b.logger.Info("Bot update loop starting", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot update loop stopping", "error", ctx.Err())
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	args := strings.TrimSpace(msg.CommandArguments())

	b.logger.Info("Command received", "chat_id", chatID, "command", msg.Command())

	var reply string
	switch msg.Command() {
	case "help":
		reply = helpText
	case "add":
		reply = b.handleAdd(ctx, chatID, args)
	case "remove":
		reply = b.handleRemove(ctx, chatID, args)
	case "list":
		reply = b.handleList(chatID)
	case "start":
		reply = b.handleToggle(ctx, chatID, args, true)
	case "stop":
		reply = b.handleToggle(ctx, chatID, args, false)
	case "check":
		b.handleCheck(ctx, msg.Chat.ID, chatID, args)
		return
	default:
		reply = "Unknown command. Use /help"
	}

	b.reply(msg.Chat.ID, reply)
}

func (b *Bot) handleAdd(ctx context.Context, chatID, args string) string {
	name, rawURL, ok := splitAddArgs(args)
	if !ok {
		return "Usage: /add <name> <url>"
	}
	item, err := b.manager.AddItem(ctx, chatID, name, rawURL)
	if err != nil {
		b.logger.Warn("Add failed", "chat_id", chatID, "error", err)
		return "Usage: /add <name> <url>"
	}
	return fmt.Sprintf("Added item:\n[%s] %s\n%s", item.ID, item.Name, item.URL)
}

func (b *Bot) handleRemove(ctx context.Context, chatID, args string) string {
	if args == "" {
		return "Usage: /remove <id_or_name>"
	}
	removed, err := b.manager.RemoveItem(ctx, chatID, args)
	if err != nil {
		if errors.Is(err, state.ErrItemNotFound) {
			return "Item not found"
		}
		b.logger.Error("Remove failed", "chat_id", chatID, "error", err)
		return "Could not remove item, try again later"
	}
	return fmt.Sprintf("Removed %s", removed.Name)
}

func (b *Bot) handleList(chatID string) string {
	items := b.manager.Items(chatID)
	if len(items) == 0 {
		return "Your watch list is empty. Use /add"
	}
	var sb strings.Builder
	sb.WriteString("Your items:\n")
	for _, it := range items {
		sb.WriteString("\n")
		sb.WriteString(formatItem(&it))
	}
	return sb.String()
}

func (b *Bot) handleToggle(ctx context.Context, chatID, args string, enable bool) string {
	if args == "" {
		var err error
		var reply string
		if enable {
			err = b.manager.EnableAll(ctx, chatID)
			reply = "Alerts enabled for all items."
		} else {
			err = b.manager.DisableAll(ctx, chatID)
			reply = "Alerts disabled for all items."
		}
		if err != nil {
			b.logger.Error("Toggle failed", "chat_id", chatID, "enable", enable, "error", err)
			return "Could not update alerts, try again later"
		}
		return reply
	}

	item, err := b.manager.SetItemEnabled(ctx, chatID, args, enable)
	if err != nil {
		if errors.Is(err, state.ErrItemNotFound) {
			return "Item not found"
		}
		b.logger.Error("Toggle failed", "chat_id", chatID, "enable", enable, "error", err)
		return "Could not update alerts, try again later"
	}
	if enable {
		return fmt.Sprintf("Enabled alerts for %s", item.Name)
	}
	return fmt.Sprintf("Disabled alerts for %s", item.Name)
}

// handleCheck runs a one-off check without touching stored status; it is a
// read-only probe the user asked for explicitly.
func (b *Bot) handleCheck(ctx context.Context, replyTo int64, chatID, args string) {
	if args == "" {
		b.reply(replyTo, "Usage: /check <id_or_name_or_url>")
		return
	}

	pageURL := args
	var label string
	if item, ok := b.manager.FindItem(chatID, args); ok {
		pageURL = item.URL
		label = item.Name
	} else {
		label = args
	}
	if err := state.ValidateURL(pageURL); err != nil {
		b.reply(replyTo, "Provide a valid URL or item id/name")
		return
	}

	b.reply(replyTo, fmt.Sprintf("Checking: %s ...", pageURL))

	checkCtx, cancel := context.WithTimeout(ctx, b.checkTimeout)
	defer cancel()

	res, err := b.checker.Check(checkCtx, pageURL)
	if err != nil {
		b.logger.Warn("Forced check failed", "chat_id", chatID, "url", pageURL, "error", err)
		b.reply(replyTo, "Error checking URL: "+err.Error())
		return
	}

	b.reply(replyTo, formatCheckResult(label, res))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("Failed to send reply", "chat_id", chatID, "error", err)
	}
}

// splitAddArgs parses "/add <name...> <url>": the URL is the last token,
// everything before it is the display name.
func splitAddArgs(args string) (name, rawURL string, ok bool) {
	tokens := strings.Fields(args)
	if len(tokens) < 2 {
		return "", "", false
	}
	rawURL = tokens[len(tokens)-1]
	name = strings.Join(tokens[:len(tokens)-1], " ")
	return name, rawURL, true
}
