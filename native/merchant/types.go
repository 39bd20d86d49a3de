package merchant

import (
	"fmt"
	"math"
)

// CredentialStatus distinguishes live credentials from burned tombstones.
// Expiry is not a status: a lapsed credential stays Active and simply fails
// validity checks until renewed.
type CredentialStatus uint8

const (
	// CredentialActive marks a live credential, valid until its expiry.
	CredentialActive CredentialStatus = iota + 1
	// CredentialBurned marks a destroyed credential. The record is kept as a
	// tombstone so ids stay unique.
	CredentialBurned
)

// String renders the status for logs and RPC payloads.
func (s CredentialStatus) String() string {
	switch s {
	case CredentialActive:
		return "active"
	case CredentialBurned:
		return "burned"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Credential is the time-limited eligibility marker required to receive and
// redeem coins. At most one per holder; never transferable.
type Credential struct {
	ID        uint64
	Holder    [20]byte
	Status    CredentialStatus
	IssuedAt  int64
	ExpiresAt int64
}

// Copy returns a deep copy to avoid callers mutating registry-owned records.
func (c *Credential) Copy() *Credential {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

type storedCredential struct {
	ID        uint64
	Holder    [20]byte
	Status    uint8
	IssuedAt  uint64
	ExpiresAt uint64
}

func toStoredCredential(c *Credential) storedCredential {
	stored := storedCredential{}
	if c == nil {
		return stored
	}
	stored.ID = c.ID
	stored.Holder = c.Holder
	stored.Status = uint8(c.Status)
	stored.IssuedAt = clampUnix(c.IssuedAt)
	stored.ExpiresAt = clampUnix(c.ExpiresAt)
	return stored
}

func fromStoredCredential(stored *storedCredential) (*Credential, error) {
	if stored == nil {
		return nil, fmt.Errorf("merchant: nil stored credential")
	}
	issuedAt, err := uint64ToInt64(stored.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("merchant: issued at overflow: %w", err)
	}
	expiresAt, err := uint64ToInt64(stored.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("merchant: expires at overflow: %w", err)
	}
	return &Credential{
		ID:        stored.ID,
		Holder:    stored.Holder,
		Status:    CredentialStatus(stored.Status),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
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
