package events

import (
	"strconv"

	"littercoin/core/types"
	"littercoin/crypto"
)

const (
	// TypeMerchantMinted is emitted when an eligibility credential is issued.
	TypeMerchantMinted = "merchant.minted"
	// TypeMerchantRenewed is emitted when a credential's expiry is extended.
	TypeMerchantRenewed = "merchant.renewed"
	// TypeMerchantInvalidated is emitted when a credential is expired early.
	TypeMerchantInvalidated = "merchant.invalidated"
	// TypeMerchantBurned is emitted when a credential is destroyed.
	TypeMerchantBurned = "merchant.burned"
	// TypeMerchantTransferRejected is emitted when a custody change of a
	// credential is refused. Credentials are soulbound.
	TypeMerchantTransferRejected = "merchant.transfer_rejected"
)

// MerchantMinted captures a newly issued merchant credential.
type MerchantMinted struct {
	TokenID   uint64
	Holder    [20]byte
	ExpiresAt uint64
}

func (MerchantMinted) EventType() string { return TypeMerchantMinted }

func (e MerchantMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantMinted,
		Attributes: map[string]string{
			"tokenId":   strconv.FormatUint(e.TokenID, 10),
			"holder":    crypto.NewAddress(e.Holder).String(),
			"expiresAt": strconv.FormatUint(e.ExpiresAt, 10),
		},
	}
}

// MerchantRenewed captures an expiry extension.
type MerchantRenewed struct {
	TokenID   uint64
	Holder    [20]byte
	ExpiresAt uint64
}

func (MerchantRenewed) EventType() string { return TypeMerchantRenewed }

func (e MerchantRenewed) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantRenewed,
		Attributes: map[string]string{
			"tokenId":   strconv.FormatUint(e.TokenID, 10),
			"holder":    crypto.NewAddress(e.Holder).String(),
			"expiresAt": strconv.FormatUint(e.ExpiresAt, 10),
		},
	}
}

// MerchantInvalidated captures an administrative early expiry.
type MerchantInvalidated struct {
	TokenID uint64
	Holder  [20]byte
}

func (MerchantInvalidated) EventType() string { return TypeMerchantInvalidated }

func (e MerchantInvalidated) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantInvalidated,
		Attributes: map[string]string{
			"tokenId": strconv.FormatUint(e.TokenID, 10),
			"holder":  crypto.NewAddress(e.Holder).String(),
		},
	}
}

// MerchantBurned captures the destruction of a credential.
type MerchantBurned struct {
	TokenID uint64
	Holder  [20]byte
}

func (MerchantBurned) EventType() string { return TypeMerchantBurned }

func (e MerchantBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantBurned,
		Attributes: map[string]string{
			"tokenId": strconv.FormatUint(e.TokenID, 10),
			"holder":  crypto.NewAddress(e.Holder).String(),
		},
	}
}

// MerchantTransferRejected captures a refused custody change, kept as an
// event so indexers can audit attempted moves.
type MerchantTransferRejected struct {
	TokenID uint64
	Holder  [20]byte
	To      [20]byte
}

func (MerchantTransferRejected) EventType() string { return TypeMerchantTransferRejected }

func (e MerchantTransferRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantTransferRejected,
		Attributes: map[string]string{
			"tokenId": strconv.FormatUint(e.TokenID, 10),
			"holder":  crypto.NewAddress(e.Holder).String(),
			"to":      crypto.NewAddress(e.To).String(),
		},
	}
}
