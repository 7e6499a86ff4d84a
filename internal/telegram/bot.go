package telegram

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// DefaultPingFrame is the pause between frames of the ping animation.
const DefaultPingFrame = 600 * time.Millisecond

// pollTimeoutSeconds is the long polling timeout of getUpdates.
const pollTimeoutSeconds = 30

// Monitor exposes the monitored devices to chat commands.
type Monitor interface {
	Devices() []liveness.Device
	Snapshot() liveness.MonitorState
	ProbeDevice(ctx context.Context, key string) (liveness.Device, bool, error)
}

// Broadcaster sends a free-form message to subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string, subscribers []liveness.Subscriber) notify.Report
}

// Options configure a Bot.
type Options struct {
	API      API
	Registry subscriber.Registry
	Monitor  Monitor
	Notifier Broadcaster
	// Admins may approve requests, list pending requests and send test alerts.
	Admins []int64
	// PingFrame is the pause between animation frames of /ping. Defaults to DefaultPingFrame.
	PingFrame time.Duration
}

// Bot handles chat commands and button callbacks.
type Bot struct {
	api       API
	registry  subscriber.Registry
	monitor   Monitor
	notifier  Broadcaster
	admins    []int64
	pingFrame time.Duration

	// handlers tracks in-flight update handlers.
	handlers sync.WaitGroup
}

var errIncompleteOptions = errors.New("telegram bot requires api, registry, monitor and notifier")

// NewBot creates a bot.
func NewBot(opts Options) (*Bot, error) {
	if opts.API == nil || opts.Registry == nil || opts.Monitor == nil || opts.Notifier == nil {
		return nil, errIncompleteOptions
	}

	if opts.PingFrame <= 0 {
		opts.PingFrame = DefaultPingFrame
	}

	return &Bot{
		api:       opts.API,
		registry:  opts.Registry,
		monitor:   opts.Monitor,
		notifier:  opts.Notifier,
		admins:    slices.Clone(opts.Admins),
		pingFrame: opts.PingFrame,
	}, nil
}

// Listen starts long polling and stops it when ctx is done.
func Listen(ctx context.Context, api *tgbotapi.BotAPI) tgbotapi.UpdatesChannel {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = pollTimeoutSeconds

	updates := api.GetUpdatesChan(config)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	return updates
}

// Run handles updates until ctx is done or the channel is closed, then waits
// for the handlers in flight.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	ctx = logger.WithName(ctx, "telegram")
	defer b.handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			b.handlers.Go(func() {
				b.Handle(ctx, update)
			})
		}
	}
}

// Handle processes one update.
func (b *Bot) Handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "update handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(chatID int64) bool {
	return slices.Contains(b.admins, chatID)
}

// isAuthorized reports whether the chat may query devices.
func (b *Bot) isAuthorized(ctx context.Context, chatID int64) bool {
	if b.isAdmin(chatID) {
		return true
	}

	subscribers, err := b.registry.List(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "failed to read subscribers", "error", err)
		return false
	}

	return slices.ContainsFunc(subscribers, func(s liveness.Subscriber) bool {
		return s.ChatID == chatID
	})
}

// reply sends an HTML message, optionally with an inline keyboard.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		logger.WarnKV(ctx, "failed to send reply", "chat_id", chatID, "error", err)
		return 0, classify(err)
	}

	return sent.MessageID, nil
}

// say sends an HTML message. Failures are logged by reply.
func (b *Bot) say(ctx context.Context, chatID int64, text string) {
	_, _ = b.reply(ctx, chatID, text, nil)
}

// edit replaces the text of a sent message. Failures such as "message is not
// modified" are logged and ignored.
func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string) {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := b.api.Send(msg); err != nil {
		logger.DebugKV(ctx, "failed to edit message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		logger.DebugKV(ctx, "failed to answer callback", "error", err)
	}
}

// sleep pauses for d unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
