package events

import (
	"littercoin/core/types"
	"littercoin/crypto"
)

const (
	// TypeLedgerPaused is emitted when the administrator halts coin
	// operations.
	TypeLedgerPaused = "ledger.paused"
	// TypeLedgerResumed is emitted when coin operations are re-enabled.
	TypeLedgerResumed = "ledger.resumed"
)

// LedgerPaused captures the pause flag being raised.
type LedgerPaused struct {
	Caller [20]byte
}

func (LedgerPaused) EventType() string { return TypeLedgerPaused }

func (e LedgerPaused) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerPaused,
		Attributes: map[string]string{
			"caller": crypto.NewAddress(e.Caller).String(),
		},
	}
}

// LedgerResumed captures the pause flag being cleared.
type LedgerResumed struct {
	Caller [20]byte
}

func (LedgerResumed) EventType() string { return TypeLedgerResumed }

func (e LedgerResumed) Event() *types.Event {
	return &types.Event{
		Type: TypeLedgerResumed,
		Attributes: map[string]string{
			"caller": crypto.NewAddress(e.Caller).String(),
		},
	}
}
