package domain

import "github.com/shopspring/decimal"

// Confidence says which classifier rule produced a candidate.
type Confidence string

const (
	// ConfidenceRouter: known router call with a transfer from the router to the buyer.
	ConfidenceRouter Confidence = "router"
	// ConfidenceCalldata: the token address only appears in the call data.
	ConfidenceCalldata Confidence = "calldata"
)

// Candidate is a detected buy of a tracked token, before threshold checks.
type Candidate struct {
	Chain        Chain
	TxID         string
	Token        TrackedToken
	TokenAmount  decimal.Decimal
	NativeAmount decimal.Decimal
	Buyer        string
	Router       string
	Venue        string
	Method       string
	Height       uint64
	Confidence   Confidence
	Test         bool
}

// Key returns the dedupe key of this candidate for channel.
func (c Candidate) Key(channel string) AlertKey {
	return AlertKey{TxID: c.TxID, Token: c.Token.Address, Channel: channel}
}

// AlertKey identifies one delivered alert.
type AlertKey struct {
	TxID    string
	Token   string
	Channel string
}

func (k AlertKey) String() string {
	return k.TxID + "|" + k.Token + "|" + k.Channel
}
