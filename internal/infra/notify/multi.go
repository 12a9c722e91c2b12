package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Multi fans a message out to several notifiers. It fails only when every
// notifier failed.
type Multi struct {
	notifiers []Notifier
	log       *slog.Logger
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		log:       slog.Default().With("component", "multi_notifier"),
	}
}

func (m *Multi) Send(ctx context.Context, channel string, msg Message) error {
	if len(m.notifiers) == 0 {
		return errors.New("no notifiers configured")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(m.notifiers))
	for i, n := range m.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.Send(ctx, channel, msg); err != nil {
				m.log.Warn("notifier failed", "index", i, "channel", channel, "error", err)
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Count() int {
	return len(m.notifiers)
}
