package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

const (
	adminID = int64(1)
	guestID = int64(42)
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

type editedMessage struct {
	chatID    int64
	messageID int
	text      string
}

// fakeAPI records outgoing Bot API calls.
type fakeAPI struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMessage
	edits     []editedMessage
	callbacks []string
	sendErr   error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		if f.sendErr != nil {
			return tgbotapi.Message{}, f.sendErr
		}

		sent := sentMessage{chatID: msg.ChatID, text: msg.Text}
		if keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			sent.keyboard = &keyboard
		}

		f.sent = append(f.sent, sent)
		f.nextID++

		return tgbotapi.Message{MessageID: f.nextID}, nil
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, editedMessage{chatID: msg.ChatID, messageID: msg.MessageID, text: msg.Text})
		return tgbotapi.Message{MessageID: msg.MessageID}, nil
	default:
		return tgbotapi.Message{}, nil
	}
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if callback, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, callback.CallbackQueryID)
	}

	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) messagesTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []sentMessage

	for _, msg := range f.sent {
		if msg.chatID == chatID {
			result = append(result, msg)
		}
	}

	return result
}

func (f *fakeAPI) lastEdit() editedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.edits) == 0 {
		return editedMessage{}
	}

	return f.edits[len(f.edits)-1]
}

// fakeMonitor serves a fixed inventory and probe outcome.
type fakeMonitor struct {
	devices   []liveness.Device
	state     liveness.MonitorState
	reachable bool
	probed    []string
}

func (m *fakeMonitor) Devices() []liveness.Device      { return m.devices }
func (m *fakeMonitor) Snapshot() liveness.MonitorState { return m.state }

func (m *fakeMonitor) ProbeDevice(_ context.Context, key string) (liveness.Device, bool, error) {
	m.probed = append(m.probed, key)

	device, ok := liveness.FindDevice(m.devices, key)
	if !ok {
		return liveness.Device{}, false, liveness.ErrUnknownDevice
	}

	return device, m.reachable, nil
}

// fakeBroadcaster records broadcasts.
type fakeBroadcaster struct {
	messages []string
	targets  [][]liveness.Subscriber
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, message string, subscribers []liveness.Subscriber) notify.Report {
	b.messages = append(b.messages, message)
	b.targets = append(b.targets, subscribers)

	return notify.Report{Sent: len(subscribers)}
}

type fixture struct {
	bot         *Bot
	api         *fakeAPI
	registry    *subscriber.FileRegistry
	monitor     *fakeMonitor
	broadcaster *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry, err := subscriber.NewFileRegistry(filepath.Join(t.TempDir(), "subscribers.json"))
	require.NoError(t, err)

	f := &fixture{
		api:      new(fakeAPI),
		registry: registry,
		monitor: &fakeMonitor{
			devices: []liveness.Device{
				{ID: "gate", Name: "Gate", Address: "10.0.0.2"},
				{ID: "yard", Name: "Back Yard", Address: "10.0.0.3"},
				{ID: "lobby", Name: "Lobby", Address: "10.0.0.4"},
			},
			state: liveness.MonitorState{
				"gate": {DeviceID: "gate", Status: liveness.StatusDown},
			},
			reachable: true,
		},
		broadcaster: new(fakeBroadcaster),
	}

	f.bot, err = NewBot(Options{
		API:       f.api,
		Registry:  registry,
		Monitor:   f.monitor,
		Notifier:  f.broadcaster,
		Admins:    []int64{adminID},
		PingFrame: time.Nanosecond,
	})
	require.NoError(t, err)

	return f
}

func command(chatID int64, text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")

	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID},
			From: &tgbotapi.User{ID: chatID, FirstName: "Budi"},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(name)},
			},
		},
	}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-" + data,
			From: &tgbotapi.User{ID: userID},
			Message: &tgbotapi.Message{
				MessageID: 77,
				Chat:      &tgbotapi.Chat{ID: userID},
			},
			Data: data,
		},
	}
}

// TestNewBot_Validation ensures required collaborators are checked.
func TestNewBot_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewBot(Options{})
	require.ErrorIs(t, err, errIncompleteOptions)
}

// TestBot_AccessRequestFlow walks a guest through request, approval and unsubscribe.
func TestBot_AccessRequestFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	// A guest cannot query devices.
	f.bot.Handle(ctx, command(guestID, "/status"))
	require.Equal(t, textAccessDenied, f.api.messagesTo(guestID)[0].text)

	// Request access: admins receive approve and deny buttons.
	f.bot.Handle(ctx, command(guestID, "/start"))

	adminMessages := f.api.messagesTo(adminID)
	require.Len(t, adminMessages, 1)
	require.Contains(t, adminMessages[0].text, "<code>42</code>")
	require.Contains(t, adminMessages[0].text, "Budi")
	require.NotNil(t, adminMessages[0].keyboard)
	require.Equal(t, "approve:42", *adminMessages[0].keyboard.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "deny:42", *adminMessages[0].keyboard.InlineKeyboard[0][1].CallbackData)

	pending, err := f.registry.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// A second /start does not notify the admins again.
	f.bot.Handle(ctx, command(guestID, "/start"))
	require.Len(t, f.api.messagesTo(adminID), 1)

	// The guest cannot approve itself.
	f.bot.Handle(ctx, callback(guestID, "approve:42"))
	require.Contains(t, f.api.lastEdit().text, "Only admins")

	// The admin approves.
	f.bot.Handle(ctx, callback(adminID, "approve:42"))
	require.Equal(t, "✅ Approved: 42", f.api.lastEdit().text)

	subscribers, err := f.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, subscribers, 1)
	require.Equal(t, guestID, subscribers[0].ChatID)

	guestMessages := f.api.messagesTo(guestID)
	require.Contains(t, guestMessages[len(guestMessages)-1].text, "Access approved")

	// Approving twice finds nothing.
	f.bot.Handle(ctx, callback(adminID, "approve:42"))
	require.Equal(t, textNoMatch, f.api.lastEdit().text)

	// The subscriber now sees the status.
	f.bot.Handle(ctx, command(guestID, "/status"))
	guestMessages = f.api.messagesTo(guestID)
	require.Contains(t, guestMessages[len(guestMessages)-1].text, "<b>Gate</b> — DOWN")

	// And can unsubscribe.
	f.bot.Handle(ctx, command(guestID, "/stop"))

	subscribers, err = f.registry.List(ctx)
	require.NoError(t, err)
	require.Empty(t, subscribers)
}

// TestBot_Deny removes the pending request and tells the requester.
func TestBot_Deny(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	f.bot.Handle(ctx, command(guestID, "/start"))
	f.bot.Handle(ctx, callback(adminID, "deny:42"))

	require.Equal(t, "❌ Denied: 42", f.api.lastEdit().text)

	pending, err := f.registry.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	guestMessages := f.api.messagesTo(guestID)
	require.Contains(t, guestMessages[len(guestMessages)-1].text, "denied")
}

// TestBot_BadCallbackData rejects malformed buttons.
func TestBot_BadCallbackData(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.bot.Handle(t.Context(), callback(adminID, "approve:abc"))
	require.Equal(t, textBadCallback, f.api.lastEdit().text)

	f.bot.Handle(t.Context(), callback(adminID, "garbage"))
	require.Equal(t, textBadCallback, f.api.lastEdit().text)
	require.Len(t, f.api.callbacks, 2)
}

// TestBot_AdminCommands covers /pending, /testalert and their access control.
func TestBot_AdminCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	f.bot.Handle(ctx, command(adminID, "/pending"))
	require.Equal(t, "✅ No pending requests.", f.api.messagesTo(adminID)[0].text)

	f.bot.Handle(ctx, command(guestID, "/start"))
	f.bot.Handle(ctx, command(adminID, "/pending"))

	adminMessages := f.api.messagesTo(adminID)
	require.Contains(t, adminMessages[len(adminMessages)-1].text, "- <code>42</code> Budi")

	f.bot.Handle(ctx, command(guestID, "/testalert"))
	require.Empty(t, f.broadcaster.messages)

	guestMessages := f.api.messagesTo(guestID)
	require.Equal(t, textAdminOnly, guestMessages[len(guestMessages)-1].text)

	_, err := f.registry.Add(ctx, 7)
	require.NoError(t, err)

	f.bot.Handle(ctx, command(adminID, "/testalert"))
	require.Equal(t, []string{textTestAlert}, f.broadcaster.messages)
	require.Len(t, f.broadcaster.targets[0], 1)
}

// TestBot_PingByName pings a device matched case-insensitively and animates the reply.
func TestBot_PingByName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.bot.Handle(t.Context(), command(adminID, "/ping back yard"))

	require.Equal(t, []string{"yard"}, f.monitor.probed)
	require.Equal(t, "✅ <b>Back Yard</b> — UP", f.api.lastEdit().text)
	require.Len(t, f.api.edits, 4)

	f.monitor.reachable = false
	f.bot.Handle(t.Context(), command(adminID, "/ping gate"))
	require.Equal(t, "❌ <b>Gate</b> — DOWN", f.api.lastEdit().text)

	f.bot.Handle(t.Context(), command(adminID, "/ping garage"))

	adminMessages := f.api.messagesTo(adminID)
	require.Contains(t, adminMessages[len(adminMessages)-1].text, "Camera not found")
}

// TestBot_PingPicker shows a keyboard and pings from the callback.
func TestBot_PingPicker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.bot.Handle(t.Context(), command(adminID, "/ping"))

	picker := f.api.messagesTo(adminID)[0]
	require.NotNil(t, picker.keyboard)
	require.Len(t, picker.keyboard.InlineKeyboard, 2)
	require.Len(t, picker.keyboard.InlineKeyboard[0], 2)
	require.Len(t, picker.keyboard.InlineKeyboard[1], 1)
	require.Equal(t, "ping:lobby", *picker.keyboard.InlineKeyboard[1][0].CallbackData)

	f.bot.Handle(t.Context(), callback(adminID, "ping:lobby"))
	require.Equal(t, "✅ <b>Lobby</b> — UP", f.api.lastEdit().text)

	f.bot.Handle(t.Context(), callback(guestID, "ping:lobby"))
	require.Equal(t, textAccessDenied, f.api.lastEdit().text)
}

// TestBot_Help tailors the command list to the chat role.
func TestBot_Help(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.bot.Handle(t.Context(), command(adminID, "/help"))
	f.bot.Handle(t.Context(), command(guestID, "/help"))

	require.Equal(t, helpAdmin, f.api.messagesTo(adminID)[0].text)
	require.Equal(t, helpGuest, f.api.messagesTo(guestID)[0].text)
}

// TestBot_RunStopsOnClosedChannel drains updates and returns when the channel closes.
func TestBot_RunStopsOnClosedChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	updates := make(chan tgbotapi.Update, 2)
	updates <- command(adminID, "/help")
	updates <- command(guestID, "/help")
	close(updates)

	require.NoError(t, f.bot.Run(t.Context(), updates))
	require.Len(t, f.api.messagesTo(adminID), 1)
	require.Len(t, f.api.messagesTo(guestID), 1)
}
