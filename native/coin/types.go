package coin

import (
	"fmt"
	"math"
	"math/big"
)

// Status tracks how far a coin has advanced through its lifecycle. The
// sequence only ever moves forward: Minted, TransferredOnce, Burned.
type Status uint8

const (
	// StatusMinted marks a freshly created coin still held by its minter.
	StatusMinted Status = iota + 1
	// StatusTransferredOnce marks a coin that consumed a custody transfer.
	StatusTransferredOnce
	// StatusBurned marks a destroyed coin. The record is retained as a
	// tombstone so ids are never reused or resurrected.
	StatusBurned
)

// String renders the status for logs and RPC payloads.
func (s Status) String() string {
	switch s {
	case StatusMinted:
		return "minted"
	case StatusTransferredOnce:
		return "transferred"
	case StatusBurned:
		return "burned"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Coin is a uniquely identified redeemable unit. IDs are assigned
// monotonically and never reused; ownership is exclusive.
type Coin struct {
	ID            uint64
	Owner         [20]byte
	Status        Status
	Transfers     uint64
	Nonce         string
	MintedAt      int64
	TransferredAt int64
	BurnedAt      int64
}

// Copy returns a deep copy to avoid callers mutating ledger-owned records.
func (c *Coin) Copy() *Coin {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

type storedCoin struct {
	ID            uint64
	Owner         [20]byte
	Status        uint8
	Transfers     uint64
	Nonce         string
	MintedAt      uint64
	TransferredAt uint64
	BurnedAt      uint64
}

func toStoredCoin(c *Coin) storedCoin {
	stored := storedCoin{}
	if c == nil {
		return stored
	}
	stored.ID = c.ID
	stored.Owner = c.Owner
	stored.Status = uint8(c.Status)
	stored.Transfers = c.Transfers
	stored.Nonce = c.Nonce
	stored.MintedAt = clampUnix(c.MintedAt)
	stored.TransferredAt = clampUnix(c.TransferredAt)
	stored.BurnedAt = clampUnix(c.BurnedAt)
	return stored
}

func fromStoredCoin(stored *storedCoin) (*Coin, error) {
	if stored == nil {
		return nil, fmt.Errorf("coin: nil stored record")
	}
	mintedAt, err := uint64ToInt64(stored.MintedAt)
	if err != nil {
		return nil, fmt.Errorf("coin: minted at overflow: %w", err)
	}
	transferredAt, err := uint64ToInt64(stored.TransferredAt)
	if err != nil {
		return nil, fmt.Errorf("coin: transferred at overflow: %w", err)
	}
	burnedAt, err := uint64ToInt64(stored.BurnedAt)
	if err != nil {
		return nil, fmt.Errorf("coin: burned at overflow: %w", err)
	}
	return &Coin{
		ID:            stored.ID,
		Owner:         stored.Owner,
		Status:        Status(stored.Status),
		Transfers:     stored.Transfers,
		Nonce:         stored.Nonce,
		MintedAt:      mintedAt,
		TransferredAt: transferredAt,
		BurnedAt:      burnedAt,
	}, nil
}

// DepositResult reports the effects of a settled value deposit.
type DepositResult struct {
	Depositor [20]byte
	Value     *big.Int
	Price     *big.Int
	Decimals  uint8
	Reward    *big.Int
	Pool      *big.Int
}

// MintResult reports the coin batch created by a voucher-backed mint.
type MintResult struct {
	Beneficiary [20]byte
	FirstID     uint64
	LastID      uint64
	CoinIDs     []uint64
	Nonce       string
	VoucherHash string
}

func clampUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func uint64ToInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds int64 range", value)
	}
	return int64(value), nil
}
