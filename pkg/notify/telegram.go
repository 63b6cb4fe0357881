// Package notify posts distribution run updates to Telegram. The notifier is
// optional: when no bot token is configured every method is a no-op, so the
// services never need to care whether notifications are wired up.
package notify

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sigmanauts/ergodist/pkg/service"
)

// sender is the slice of the Telegram bot API the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Config struct {
	Logger   *slog.Logger
	BotToken string
	ChatID   string
	// Separate bot/chat for operator summaries; falls back to the main
	// bot when unset.
	AdminToken  string
	AdminChatID string
}

type Notifier struct {
	log         *slog.Logger
	bot         sender
	chatID      int64
	adminBot    sender
	adminChatID int64
}

// New builds a notifier from config. A missing bot token or chat id
// disables it rather than failing: notifications are best-effort.
func New(cfg Config) (*Notifier, error) {
	n := &Notifier{log: cfg.Logger}
	if cfg.BotToken == "" || cfg.ChatID == "" {
		cfg.Logger.Info("notify: telegram not configured, notifications disabled")
		return n, nil
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse telegram chat id %q: %w", cfg.ChatID, err)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	n.bot = bot
	n.chatID = chatID

	if cfg.AdminToken != "" && cfg.AdminChatID != "" {
		adminChatID, err := strconv.ParseInt(cfg.AdminChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse admin telegram chat id %q: %w", cfg.AdminChatID, err)
		}
		adminBot, err := tgbotapi.NewBotAPI(cfg.AdminToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize admin telegram bot: %w", err)
		}
		n.adminBot = adminBot
		n.adminChatID = adminChatID
	}
	return n, nil
}

// Enabled reports whether run notifications will actually be delivered.
func (n *Notifier) Enabled() bool { return n != nil && n.bot != nil }

// JobStarted announces the beginning of a run.
func (n *Notifier) JobStarted(svc string, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry run"
	}
	n.send(fmt.Sprintf("▶️ %s distribution starting (%s)", svc, mode))
}

// JobResult announces the outcome of a run.
func (n *Notifier) JobResult(result service.Result) {
	var b strings.Builder
	switch result.Status {
	case service.StatusCompleted:
		fmt.Fprintf(&b, "✅ %s distribution completed", result.Service)
	case service.StatusDryRun:
		fmt.Fprintf(&b, "📋 %s dry run completed", result.Service)
	default:
		fmt.Fprintf(&b, "❌ %s distribution FAILED", result.Service)
	}
	fmt.Fprintf(&b, "\nrun: %s", result.RunID)
	if result.RecipientCount > 0 {
		fmt.Fprintf(&b, "\nrecipients: %d", result.RecipientCount)
	}
	if result.TxID != "" {
		fmt.Fprintf(&b, "\ntx: %s", result.ExplorerURL)
	}
	if result.Message != "" {
		fmt.Fprintf(&b, "\n%s", result.Message)
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", result.Error)
	}
	n.send(b.String())

	// Failed runs also page the admin chat when a separate admin bot is
	// configured; the main chat already got the full result above.
	if result.Status == service.StatusFailed && n.adminBot != nil {
		n.AdminSummary(fmt.Sprintf("⚠️ %s run %s failed: %s", result.Service, result.RunID, result.Error))
	}
}

// AdminSummary posts to the admin chat, falling back to the main chat.
func (n *Notifier) AdminSummary(text string) {
	if n == nil {
		return
	}
	if n.adminBot != nil {
		n.deliver(n.adminBot, n.adminChatID, text)
		return
	}
	n.send(text)
}

func (n *Notifier) send(text string) {
	if !n.Enabled() {
		return
	}
	n.deliver(n.bot, n.chatID, text)
}

func (n *Notifier) deliver(bot sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		n.log.Warn("notify: failed to send telegram message", "error", err)
	}
}
