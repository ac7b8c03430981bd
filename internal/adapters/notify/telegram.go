package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const telegramTopWallets = 10

// telegramSender es la parte de *tgbotapi.BotAPI que usamos.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram envía un resumen de cada batch a un chat. Implementa ports.Notifier.
type Telegram struct {
	bot            telegramSender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram crea el notifier contra la API pública de Telegram.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	return NewTelegramWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint)
}

// NewTelegramWithEndpoint permite apuntar a otro endpoint (tests, proxies).
// endpoint sigue el formato de tgbotapi.APIEndpoint.
func NewTelegramWithEndpoint(botToken, chatID, endpoint string) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: invalid chat id: %w", err)
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: id, maxRetries: 3, retryDelayBase: time.Second}, nil
}

// Notify envía el resumen; reintenta con backoff lineal.
func (t *Telegram) Notify(ctx context.Context, report domain.BatchReport) error {
	if len(report.Wallets) == 0 {
		return nil
	}
	return t.sendMarkdownV2(ctx, formatTelegram(report))
}

func (t *Telegram) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		case <-ctx.Done():
			return fmt.Errorf("notify.Telegram: %w", ctx.Err())
		}
	}
	return fmt.Errorf("notify.Telegram: failed after %d retries: %w", t.maxRetries, lastErr)
}

// formatTelegram construye el mensaje MarkdownV2: cabecera + top wallets visibles.
func formatTelegram(report domain.BatchReport) string {
	rows := report.Sorted()
	counts := countByCohort(rows)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *PnL batch* `%s`\n", escapeMarkdownV2(shortID(report.RunID)))
	fmt.Fprintf(&b, "%d wallets, %d failed\n", len(rows), report.Failed())
	fmt.Fprintf(&b, "SAFE %d · MOD %d · RISKY %d · SUSPECT %d\n\n",
		counts[domain.CohortSafe], counts[domain.CohortModerate],
		counts[domain.CohortRisky], counts[domain.CohortSuspect])

	shown := 0
	for _, w := range rows {
		if !w.Display.ShouldDisplay {
			continue
		}
		shown++
		fmt.Fprintf(&b, "%d\\. `%s` %s *%s* \\(%s\\)\n",
			shown,
			escapeMarkdownV2(shortWallet(w.Wallet)),
			escapeMarkdownV2(string(w.Display.Cohort)),
			escapeMarkdownV2(money(w.Display.DisplayPnL)),
			escapeMarkdownV2(w.Display.DisplayLabel),
		)
		if shown == telegramTopWallets {
			break
		}
	}
	if shown == 0 {
		b.WriteString("_no wallet passed the display policy_\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// escapeMarkdownV2 escapa los caracteres especiales de MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
