package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// Callback data prefixes of inline keyboard buttons.
const (
	callbackApprove = "approve"
	callbackDeny    = "deny"
	callbackPing    = "ping"
)

// pingButtonsPerRow is the width of the /ping device picker.
const pingButtonsPerRow = 2

const (
	textAccessDenied  = "🚫 Access denied. Send /start to request access."
	textAdminOnly     = "🚫 Admins only."
	textBadCallback   = "Invalid button data."
	textNoMatch       = "ℹ️ No matching request."
	textStorageFailed = "⚠️ Storage error, please try again later."
	textTestAlert     = "🔔 Test alert from the bot. Telegram delivery works."
)

const helpAdmin = `👑 <b>Commands (admin)</b>

/start - Activate the bot
/status - Show the status of every camera
/ping [name] - Ping one camera; without a name a picker is shown
/testalert - Send a test message to every subscriber
/pending - List pending access requests
/stop - Stop receiving notifications
/help - Show this help`

const helpSubscriber = `✅ <b>Commands (approved user)</b>

/status - Show the status of every camera
/ping [name] - Ping one camera; without a name a picker is shown
/stop - Stop receiving notifications
/help - Show this help`

const helpGuest = `ℹ️ <b>Commands (not approved yet)</b>

/start - Ask an admin for access
/help - Show this help

⚠️ An admin has to approve you before other commands work.`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	ctx = logger.WithKV(ctx, "chat_id", chatID, "command", msg.Command())

	logger.Debug(ctx, "Command received")

	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, chatID, msg.From)
	case "stop":
		b.cmdStop(ctx, chatID)
	case "status":
		b.cmdStatus(ctx, chatID)
	case "ping":
		b.cmdPing(ctx, chatID, strings.TrimSpace(msg.CommandArguments()))
	case "pending":
		b.cmdPending(ctx, chatID)
	case "testalert":
		b.cmdTestAlert(ctx, chatID)
	case "help":
		b.cmdHelp(ctx, chatID)
	}
}

func (b *Bot) cmdStart(ctx context.Context, chatID int64, from *tgbotapi.User) {
	if b.isAdmin(chatID) {
		b.say(ctx, chatID, "👑 You are an admin. Full access granted. Send /help.")
		return
	}

	displayName := from.String()

	result, err := b.registry.Request(ctx, chatID, displayName)
	if err != nil {
		logger.ErrorKV(ctx, "failed to record access request", "error", err)
		b.say(ctx, chatID, textStorageFailed)

		return
	}

	switch result {
	case subscriber.AlreadySubscribed:
		b.say(ctx, chatID, "✅ You are already approved. Send /help.")
	case subscriber.AlreadyPending:
		b.say(ctx, chatID, "⏳ Your request is still waiting for an admin.")
	case subscriber.RequestCreated:
		logger.InfoKV(ctx, "Access requested", "display_name", displayName)
		b.say(ctx, chatID, "📨 Access request sent to the admins. Please wait for approval.")
		b.notifyAdmins(ctx, chatID, displayName)
	}
}

// notifyAdmins asks every admin to approve or deny the request.
func (b *Bot) notifyAdmins(ctx context.Context, chatID int64, displayName string) {
	id := strconv.FormatInt(chatID, 10)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Approve", callbackApprove+":"+id),
		tgbotapi.NewInlineKeyboardButtonData("❌ Deny", callbackDeny+":"+id),
	))

	text := fmt.Sprintf("🆕 Access request from <code>%d</code> (%s).", chatID, html.EscapeString(displayName))

	for _, admin := range b.admins {
		if _, err := b.reply(ctx, admin, text, &keyboard); err != nil {
			logger.WarnKV(ctx, "failed to notify admin", "admin", admin, "error", err)
		}
	}
}

func (b *Bot) cmdStop(ctx context.Context, chatID int64) {
	result, err := b.registry.Remove(ctx, chatID)
	if err != nil {
		logger.ErrorKV(ctx, "failed to remove subscriber", "error", err)
		b.say(ctx, chatID, textStorageFailed)

		return
	}

	if result == subscriber.NotPresent {
		b.say(ctx, chatID, "ℹ️ You are not registered.")
		return
	}

	logger.Info(ctx, "Chat unsubscribed")
	b.say(ctx, chatID, "⏹️ You will no longer receive notifications.")
}

func (b *Bot) cmdStatus(ctx context.Context, chatID int64) {
	if !b.isAuthorized(ctx, chatID) {
		b.say(ctx, chatID, textAccessDenied)
		return
	}

	text := notify.FormatStatus(b.monitor.Devices(), b.monitor.Snapshot())
	b.say(ctx, chatID, text)
}

func (b *Bot) cmdPing(ctx context.Context, chatID int64, name string) {
	if !b.isAuthorized(ctx, chatID) {
		b.say(ctx, chatID, textAccessDenied)
		return
	}

	devices := b.monitor.Devices()

	if name == "" {
		keyboard := pingKeyboard(devices)
		if keyboard == nil {
			b.say(ctx, chatID, "No cameras configured.")
			return
		}

		_, _ = b.reply(ctx, chatID, "Pick a camera to ping:", keyboard)

		return
	}

	device, ok := lookupDevice(devices, name)
	if !ok {
		b.say(ctx, chatID, "❌ Camera not found. Send /ping without a name to pick one.")
		return
	}

	messageID, err := b.reply(ctx, chatID, pingingText(device), nil)
	if err != nil {
		return
	}

	b.animatePing(ctx, chatID, messageID, device)
}

func (b *Bot) cmdPending(ctx context.Context, chatID int64) {
	if !b.isAdmin(chatID) {
		b.say(ctx, chatID, textAdminOnly)
		return
	}

	pending, err := b.registry.Pending(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "failed to read pending requests", "error", err)
		b.say(ctx, chatID, textStorageFailed)

		return
	}

	if len(pending) == 0 {
		b.say(ctx, chatID, "✅ No pending requests.")
		return
	}

	lines := make([]string, 0, len(pending)+1)
	lines = append(lines, "⏳ Pending:")

	for _, request := range pending {
		line := fmt.Sprintf("- <code>%d</code>", request.ChatID)
		if request.DisplayName != "" {
			line += " " + html.EscapeString(request.DisplayName)
		}

		lines = append(lines, line)
	}

	b.say(ctx, chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdTestAlert(ctx context.Context, chatID int64) {
	if !b.isAdmin(chatID) {
		b.say(ctx, chatID, textAdminOnly)
		return
	}

	subscribers, err := b.registry.List(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "failed to read subscribers", "error", err)
		b.say(ctx, chatID, textStorageFailed)

		return
	}

	report := b.notifier.Broadcast(ctx, textTestAlert, subscribers)
	logger.InfoKV(ctx, "Test alert sent", "sent", report.Sent, "failed", len(report.Failed))
}

func (b *Bot) cmdHelp(ctx context.Context, chatID int64) {
	text := helpGuest

	switch {
	case b.isAdmin(chatID):
		text = helpAdmin
	case b.isAuthorized(ctx, chatID):
		text = helpSubscriber
	}

	b.say(ctx, chatID, text)
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	b.answer(ctx, query.ID)

	if query.Message == nil || query.From == nil {
		return
	}

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	ctx = logger.WithKV(ctx, "chat_id", chatID, "callback", query.Data)

	action, argument, found := strings.Cut(query.Data, ":")
	if !found {
		b.edit(ctx, chatID, messageID, textBadCallback)
		return
	}

	switch action {
	case callbackApprove, callbackDeny:
		b.decide(ctx, query.From.ID, chatID, messageID, action, argument)
	case callbackPing:
		b.pingCallback(ctx, query.From.ID, chatID, messageID, argument)
	default:
		b.edit(ctx, chatID, messageID, textBadCallback)
	}
}

// decide applies an admin decision to a pending request.
func (b *Bot) decide(ctx context.Context, userID, chatID int64, messageID int, action, argument string) {
	if !b.isAdmin(userID) {
		b.edit(ctx, chatID, messageID, "🚫 Only admins can do this.")
		return
	}

	target, err := strconv.ParseInt(argument, 10, 64)
	if err != nil || target == 0 {
		b.edit(ctx, chatID, messageID, textBadCallback)
		return
	}

	var found bool

	if action == callbackApprove {
		found, err = b.registry.Approve(ctx, target)
	} else {
		found, err = b.registry.Deny(ctx, target)
	}

	if err != nil {
		logger.ErrorKV(ctx, "failed to apply decision", "target", target, "error", err)
		b.edit(ctx, chatID, messageID, textStorageFailed)

		return
	}

	if !found {
		b.edit(ctx, chatID, messageID, textNoMatch)
		return
	}

	logger.InfoKV(ctx, "Access request decided", "target", target, "decision", action)

	if action == callbackApprove {
		b.edit(ctx, chatID, messageID, fmt.Sprintf("✅ Approved: %d", target))
		b.say(ctx, target, "✅ Access approved. You can now use /status, /ping and receive alerts.")

		return
	}

	b.edit(ctx, chatID, messageID, fmt.Sprintf("❌ Denied: %d", target))
	b.say(ctx, target, "❌ Sorry, an admin denied your access request.")
}

func (b *Bot) pingCallback(ctx context.Context, userID, chatID int64, messageID int, deviceID string) {
	if !b.isAuthorized(ctx, userID) {
		b.edit(ctx, chatID, messageID, textAccessDenied)
		return
	}

	device, ok := liveness.FindDevice(b.monitor.Devices(), deviceID)
	if !ok {
		b.edit(ctx, chatID, messageID, "❌ Camera not found.")
		return
	}

	b.edit(ctx, chatID, messageID, pingingText(device))
	b.animatePing(ctx, chatID, messageID, device)
}

// animatePing shows a short progress animation, probes the device and edits
// the message with the result.
func (b *Bot) animatePing(ctx context.Context, chatID int64, messageID int, device liveness.Device) {
	base := pingingText(device)

	for _, dots := range []string{".", "..", "..."} {
		sleep(ctx, b.pingFrame)
		b.edit(ctx, chatID, messageID, base+dots)
	}

	_, reachable, err := b.monitor.ProbeDevice(ctx, device.ID)
	if err != nil {
		if errors.Is(err, liveness.ErrUnknownDevice) {
			b.edit(ctx, chatID, messageID, "❌ Camera not found.")
			return
		}

		logger.WarnKV(ctx, "manual ping failed", "device", device.ID, "error", err)
	}

	status := liveness.StatusDown
	if reachable {
		status = liveness.StatusUp
	}

	b.edit(ctx, chatID, messageID, fmt.Sprintf("%s <b>%s</b> — %s",
		status.Emoji(),
		html.EscapeString(deviceLabel(device)),
		status,
	))
}

// lookupDevice matches a device by ID or name, ignoring case.
func lookupDevice(devices []liveness.Device, key string) (liveness.Device, bool) {
	if device, ok := liveness.FindDevice(devices, key); ok {
		return device, true
	}

	for _, device := range devices {
		if strings.EqualFold(device.ID, key) || strings.EqualFold(device.Name, key) {
			return device, true
		}
	}

	return liveness.Device{}, false
}

// pingKeyboard lays the devices out as buttons, two per row.
func pingKeyboard(devices []liveness.Device) *tgbotapi.InlineKeyboardMarkup {
	if len(devices) == 0 {
		return nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(devices)+1)/pingButtonsPerRow)
	row := make([]tgbotapi.InlineKeyboardButton, 0, pingButtonsPerRow)

	for _, device := range devices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(deviceLabel(device), callbackPing+":"+device.ID))

		if len(row) == pingButtonsPerRow {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, pingButtonsPerRow)
		}
	}

	if len(row) > 0 {
		rows = append(rows, row)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)

	return &keyboard
}

func pingingText(device liveness.Device) string {
	return fmt.Sprintf("🔍 Pinging <b>%s</b>", html.EscapeString(deviceLabel(device)))
}

func deviceLabel(device liveness.Device) string {
	if device.Name != "" {
		return device.Name
	}

	return device.ID
}
