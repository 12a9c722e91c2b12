package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress is returned when an address does not parse for its chain.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrUnknownChain is returned for chains outside the supported set.
	ErrUnknownChain = errors.New("unknown chain")
)

// AdapterConnectionError means no RPC endpoint of a chain could serve a call.
type AdapterConnectionError struct {
	Chain Chain
	Op    string
	Err   error
}

func (e *AdapterConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: connection failed: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterConnectionError) Unwrap() error { return e.Err }

// DecodeError marks one malformed transaction or log. The block keeps processing.
type DecodeError struct {
	Chain  Chain
	TxID   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.TxID == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: decode: %s: %v", e.Chain, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s: decode: %s", e.Chain, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: decode tx %s: %s: %v", e.Chain, e.TxID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: decode tx %s: %s", e.Chain, e.TxID, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PriceLookupError is returned by price sources. Callers fall back to cached prices.
type PriceLookupError struct {
	Chain  Chain
	Source string
	Err    error
}

func (e *PriceLookupError) Error() string {
	return fmt.Sprintf("price lookup %s via %s: %v", e.Chain, e.Source, e.Err)
}

func (e *PriceLookupError) Unwrap() error { return e.Err }

// DeliveryError reports that one channel could not be notified, fallback included.
type DeliveryError struct {
	Channel  string
	TxID     string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s failed after %d attempts: %v", e.TxID, e.Channel, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// PersistenceError means a durable write failed. In-memory state is still in effect.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
