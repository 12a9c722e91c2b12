package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig holds bot configuration.
type TelegramConfig struct {
	BotToken    string        `yaml:"bot_token"`
	APIEndpoint string        `yaml:"api_endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telegram sends alerts through the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger
}

// NewTelegram connects the bot. It calls getMe to validate the token.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to init bot: %w", err)
	}

	t := &Telegram{bot: bot, log: slog.Default().With("component", "telegram")}
	t.log.Info("telegram bot ready", "username", bot.Self.UserName)
	return t, nil
}

// Username returns the bot's username.
func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

// Send posts msg to channel, a numeric chat id or an @username.
func (t *Telegram) Send(ctx context.Context, channel string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg, err := newMessageConfig(channel, msg.Text)
	if err != nil {
		return err
	}
	cfg.ParseMode = msg.ParseMode
	cfg.DisableWebPagePreview = true

	if len(msg.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		}
		cfg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	if _, err := t.bot.Send(cfg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return fmt.Errorf("telegram: rate limited, retry after %ds: %w", apiErr.RetryAfter, err)
		}
		return fmt.Errorf("telegram: send to %s: %w", channel, err)
	}
	return nil
}

func newMessageConfig(channel, text string) (tgbotapi.MessageConfig, error) {
	channel = strings.TrimSpace(channel)
	if strings.HasPrefix(channel, "@") {
		return tgbotapi.NewMessageToChannel(channel, text), nil
	}
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram: invalid channel %q", channel)
	}
	return tgbotapi.NewMessage(id, text), nil
}
