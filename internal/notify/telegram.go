package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/arlenko/marketsentry/internal/models"
)

// Telegram delivers alerts through the Telegram Bot API.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(t.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// SendSignal sends a trade recommendation.
func (t *Telegram) SendSignal(sig models.Signal) error {
	return t.sendMarkdownV2(formatSignalMarkdown(sig))
}

// SendBuyDecision sends the outcome of a dip evaluation.
func (t *Telegram) SendBuyDecision(dec models.BuyDecision, state models.LadderState) error {
	return t.sendMarkdownV2(formatDecisionMarkdown(dec, state))
}

// SendError sends a cycle error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (t *Telegram) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Cycle error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return t.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (t *Telegram) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Recovered* after %d consecutive failure\\(s\\)", failureCount)
	return t.sendMarkdownV2(text)
}

func formatSignalMarkdown(sig models.Signal) string {
	dateStr := escapeMarkdownV2(sig.Indicators.AsOf.Format("2006-01-02"))

	if sig.Direction == models.DirectionNone {
		return fmt.Sprintf("🔍 *Market check*\n📅 %s\n\nNo signal\\. %s",
			dateStr, escapeMarkdownV2(summarizeIndicators(sig.Indicators)))
	}

	emoji := "📈"
	if sig.Direction == models.DirectionShort {
		emoji = "📉"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *TRADE ALERT: %s %s*\n", sig.Direction, escapeMarkdownV2(sig.Symbol))
	fmt.Fprintf(&b, "📅 %s\n\n", dateStr)
	fmt.Fprintf(&b, "%s Entry %s \\| Stop %s \\| Target %s\n",
		emoji,
		escapeMarkdownV2(fmt.Sprintf("$%.2f", sig.Entry)),
		escapeMarkdownV2(fmt.Sprintf("$%.2f", sig.StopLoss)),
		escapeMarkdownV2(fmt.Sprintf("$%.2f", sig.Target)))
	fmt.Fprintf(&b, "💼 Size: %s of portfolio\n\n",
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", sig.PositionSizePct)))
	fmt.Fprintf(&b, "%s\n\n", escapeMarkdownV2(summarizeIndicators(sig.Indicators)))
	fmt.Fprintf(&b, "_%s_", escapeMarkdownV2(sig.Rationale))
	return b.String()
}

func formatDecisionMarkdown(dec models.BuyDecision, state models.LadderState) string {
	dateStr := escapeMarkdownV2(dec.AsOf.Format("2006-01-02"))

	if !dec.Triggered {
		return fmt.Sprintf("🔍 *Dip check*\n📅 %s\n\nNo buy: %s\nDrawdown: %s",
			dateStr,
			escapeMarkdownV2(dec.Reason),
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", dec.DrawdownPct*100)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 *DIP ALERT: buy %s*\n", escapeMarkdownV2(fmt.Sprintf("$%.0f", dec.Amount)))
	fmt.Fprintf(&b, "📅 %s\n\n", dateStr)
	fmt.Fprintf(&b, "Price: %s\n", escapeMarkdownV2(fmt.Sprintf("$%.2f", dec.Price)))
	fmt.Fprintf(&b, "Drawdown: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", dec.DrawdownPct*100)))
	fmt.Fprintf(&b, "Trigger: %s\n\n", escapeMarkdownV2(dec.Reason))
	fmt.Fprintf(&b, "Ladder: rung %d, %s deployed in %d",
		state.NextBuyIndex,
		escapeMarkdownV2(fmt.Sprintf("$%.0f", state.CumulativeDeployed)),
		state.Year)
	return b.String()
}

func summarizeIndicators(snap models.IndicatorSnapshot) string {
	return fmt.Sprintf("Fractal %.3f | P/C %.2f | VIX %.1f | Regime %s",
		snap.FractalDimension, snap.SentimentProxy, snap.VolatilityIndex, snap.Regime)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
