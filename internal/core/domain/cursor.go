package domain

import "time"

// ChainCursor is the last fully processed height of a chain.
// It only moves forward, except through an explicit operator reset.
type ChainCursor struct {
	Chain     Chain     `json:"chain"      db:"chain"`
	Height    uint64    `json:"height"     db:"height"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
