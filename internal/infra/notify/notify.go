// Package notify delivers formatted alerts to chat channels.
package notify

import "context"

// Parse modes understood by Telegram. Plain text uses ParseModeNone.
const (
	ParseModeNone = ""
	ParseModeHTML = "HTML"
)

// Button is an inline link button rendered under a message.
type Button struct {
	Text string
	URL  string
}

// Message is one alert ready to send.
type Message struct {
	Text      string
	ParseMode string
	Buttons   []Button
}

// Notifier sends a message to a channel. Channel ids are chat platform
// identifiers such as "-1001234567890" or "@mychannel".
type Notifier interface {
	Send(ctx context.Context, channel string, msg Message) error
}
