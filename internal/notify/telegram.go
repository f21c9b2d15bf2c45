package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	telegramMaxMessageLen = 4096
	defaultTelegramAPI    = "https://api.telegram.org"
)

// TelegramChannel posts notices to a fixed Telegram chat, typically a
// mentor or cohort group.
type TelegramChannel struct {
	chatID  string
	baseURL string
	client  *http.Client
}

// TelegramOption configures a TelegramChannel.
type TelegramOption func(*TelegramChannel)

// WithAPIURL sets the Bot API root, for tests.
func WithAPIURL(apiURL string) TelegramOption {
	return func(t *TelegramChannel) {
		t.baseURL = apiURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(t *TelegramChannel) {
		t.client = client
	}
}

// NewTelegramChannel creates an outbound Telegram channel.
func NewTelegramChannel(token, chatID string, opts ...TelegramOption) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (LEARN_TELEGRAM_BOT_TOKEN)")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat id is required (LEARN_TELEGRAM_CHAT_ID)")
	}
	t := &TelegramChannel{
		chatID:  chatID,
		baseURL: defaultTelegramAPI,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.baseURL = strings.TrimRight(t.baseURL, "/") + "/bot" + token
	return t, nil
}

func (t *TelegramChannel) Send(ctx context.Context, n Notice) error {
	for _, part := range SplitMessage(formatNotice(n), telegramMaxMessageLen) {
		params := url.Values{
			"chat_id": {t.chatID},
			"text":    {part},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sendMessage", strings.NewReader(params.Encode()))
		if err != nil {
			return fmt.Errorf("building Telegram request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("sending Telegram message: %w", err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram API error %d", resp.StatusCode)
		}
	}
	slog.Debug("telegram notice sent", "kind", n.Kind, "session_id", n.SessionID)
	return nil
}

func formatNotice(n Notice) string {
	var b strings.Builder
	if n.Level == LevelError {
		b.WriteString("[error] ")
	}
	b.WriteString(n.Text)
	if n.UserID != "" {
		b.WriteString("\nuser: " + n.UserID)
	}
	if n.UnitKey != "" {
		b.WriteString("\nunit: " + n.UnitKey)
	}
	return b.String()
}

// SplitMessage splits text into chunks that fit Telegram's max message length.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Prefer breaking on a newline, then on a space.
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		} else {
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				_, cutAt = utf8.DecodeRuneInString(text)
			}
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}
