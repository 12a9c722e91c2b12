package notify

import (
	"context"
	"log/slog"
)

// Log writes alerts to the logger instead of sending them. Used for dry runs.
type Log struct {
	log *slog.Logger
}

func NewLog() *Log {
	return &Log{log: slog.Default().With("component", "notify")}
}

func (l *Log) Send(ctx context.Context, channel string, msg Message) error {
	l.log.Info("alert", "channel", channel, "parse_mode", msg.ParseMode, "buttons", len(msg.Buttons), "text", msg.Text)
	return nil
}
