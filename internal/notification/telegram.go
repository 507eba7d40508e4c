package notification

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiRoot  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiRoot:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", emoji, escapeMarkdown(alert.Title))
	if alert.Symbol != "" {
		fmt.Fprintf(&b, " `%s`", escapeMarkdown(alert.Symbol))
	}
	fmt.Fprintf(&b, "\n\n%s", escapeMarkdown(alert.Message))
	if alert.CycleID != "" {
		fmt.Fprintf(&b, "\n_%s_", escapeMarkdown(alert.CycleID))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiRoot, t.botToken)
	err := postJSON(ctx, t.client, url, map[string]any{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	slog.Debug("telegram alert sent", "title", alert.Title)
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(specials, s[i]) >= 0 {
			buf.WriteByte('\\')
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
