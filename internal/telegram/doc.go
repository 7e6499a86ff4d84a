// Package telegram connects camwatch to the Telegram Bot API.
//
// Messenger delivers notifications to chats. Bot answers the chat commands
// that manage access requests, subscriptions, status queries and manual pings.
package telegram
