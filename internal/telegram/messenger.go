package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
)

// API is the subset of *tgbotapi.BotAPI used by camwatch.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger sends HTML messages through the Bot API.
type Messenger struct {
	api API
}

var _ notify.Messenger = (*Messenger)(nil)

// NewMessenger creates a messenger on top of the Bot API client.
func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

// Notify sends the message to the chat. Chats that blocked the bot or no longer
// exist yield notify.ErrRecipientGone.
func (m *Messenger) Notify(ctx context.Context, chatID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := m.api.Send(msg); err != nil {
		return classify(err)
	}

	return nil
}

// Connect authenticates the bot token and routes the library log through zap.
func Connect(ctx context.Context, token string) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(botLogger{ctx: logger.WithName(ctx, "telegram")}); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", classify(err))
	}

	logger.InfoKV(ctx, "Authorized on Telegram", "bot", api.Self.UserName)

	return api, nil
}

// classify marks errors that mean the chat is unreachable for good.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %w", notify.ErrRecipientGone, err)
	}

	if apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "chat not found") {
		return fmt.Errorf("%w: %w", notify.ErrRecipientGone, err)
	}

	return err
}

// botLogger adapts the library logger to zap.
type botLogger struct {
	ctx context.Context //nolint:containedctx // The library logger has no context parameter.
}

func (l botLogger) Println(v ...any) {
	logger.Warn(l.ctx, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l botLogger) Printf(format string, v ...any) {
	logger.Warnf(l.ctx, format, v...)
}
