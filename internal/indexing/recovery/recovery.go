// Package recovery decides how the poller reacts to failures.
package recovery

import (
	"context"
	"errors"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/rpc/routing"
)

// FailureCategory groups errors by the reaction they call for.
type FailureCategory int

const (
	// CategoryTransient errors go away on their own: timeouts, 5xx, dropped connections.
	CategoryTransient FailureCategory = iota
	// CategoryPermanent errors will fail the same way on every retry.
	CategoryPermanent
	// CategoryShutdown means the caller is stopping.
	CategoryShutdown
)

func (c FailureCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Classifier maps an error to a category.
type Classifier func(err error) FailureCategory

// Classify is the default classifier for adapter and storage errors.
func Classify(err error) FailureCategory {
	if errors.Is(err, context.Canceled) {
		return CategoryShutdown
	}

	var connErr *domain.AdapterConnectionError
	if errors.As(err, &connErr) {
		return CategoryTransient
	}
	var decodeErr *domain.DecodeError
	if errors.As(err, &decodeErr) {
		return CategoryPermanent
	}
	var persistErr *domain.PersistenceError
	if errors.As(err, &persistErr) {
		return CategoryTransient
	}

	if routing.ClassifyError(err) == routing.ActionFatal {
		return CategoryPermanent
	}
	return CategoryTransient
}
