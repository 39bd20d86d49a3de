package events

import (
	"math/big"
	"strconv"
	"strings"

	"littercoin/core/types"
	"littercoin/crypto"
)

const (
	// TypeCoinMinted is emitted whenever a voucher-backed mint completes.
	TypeCoinMinted = "coin.minted"
	// TypeCoinTransferred is emitted when a coin moves to a merchant holder.
	TypeCoinTransferred = "coin.transferred"
	// TypeCoinRedeemed is emitted when a merchant burns coins for a payout.
	TypeCoinRedeemed = "coin.redeemed"
	// TypeDepositSettled is emitted when a deposit credits the payout pool.
	TypeDepositSettled = "coin.deposit"
	// TypeRewardMinted is emitted when deposit rewards are issued.
	TypeRewardMinted = "reward.minted"
)

// CoinMinted captures a batch of freshly issued coins. Coin IDs are assigned
// contiguously per mint, so the range [FirstID, LastID] identifies the batch.
type CoinMinted struct {
	Beneficiary [20]byte
	Amount      uint64
	FirstID     uint64
	LastID      uint64
	Nonce       string
	VoucherHash string
}

func (CoinMinted) EventType() string { return TypeCoinMinted }

func (e CoinMinted) Event() *types.Event {
	voucherHash := strings.TrimSpace(e.VoucherHash)
	if voucherHash != "" && !strings.HasPrefix(voucherHash, "0x") {
		voucherHash = "0x" + voucherHash
	}
	return &types.Event{
		Type: TypeCoinMinted,
		Attributes: map[string]string{
			"beneficiary": crypto.NewAddress(e.Beneficiary).String(),
			"amount":      strconv.FormatUint(e.Amount, 10),
			"firstId":     strconv.FormatUint(e.FirstID, 10),
			"lastId":      strconv.FormatUint(e.LastID, 10),
			"nonce":       e.Nonce,
			"voucherHash": voucherHash,
		},
	}
}

// CoinTransferred captures a permitted custody change of a single coin.
type CoinTransferred struct {
	CoinID    uint64
	From      [20]byte
	To        [20]byte
	Transfers uint64
}

func (CoinTransferred) EventType() string { return TypeCoinTransferred }

func (e CoinTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeCoinTransferred,
		Attributes: map[string]string{
			"coinId":    strconv.FormatUint(e.CoinID, 10),
			"from":      crypto.NewAddress(e.From).String(),
			"to":        crypto.NewAddress(e.To).String(),
			"transfers": strconv.FormatUint(e.Transfers, 10),
		},
	}
}

// CoinRedeemed captures a pooled redemption: the burned coins and the payout
// released against them.
type CoinRedeemed struct {
	Redeemer  [20]byte
	CoinIDs   []uint64
	Payout    *big.Int
	ReceiptID string
}

func (CoinRedeemed) EventType() string { return TypeCoinRedeemed }

func (e CoinRedeemed) Event() *types.Event {
	if e.Payout == nil {
		e.Payout = big.NewInt(0)
	}
	return &types.Event{
		Type: TypeCoinRedeemed,
		Attributes: map[string]string{
			"redeemer":  crypto.NewAddress(e.Redeemer).String(),
			"coinIds":   joinIDs(e.CoinIDs),
			"coins":     strconv.Itoa(len(e.CoinIDs)),
			"payout":    e.Payout.String(),
			"receiptId": e.ReceiptID,
		},
	}
}

// DepositSettled captures an inbound deposit and the oracle price it was
// rewarded at.
type DepositSettled struct {
	From   [20]byte
	Value  *big.Int
	Price  *big.Int
	Reward *big.Int
	Pool   *big.Int
}

func (DepositSettled) EventType() string { return TypeDepositSettled }

func (e DepositSettled) Event() *types.Event {
	if e.Value == nil {
		e.Value = big.NewInt(0)
	}
	if e.Price == nil {
		e.Price = big.NewInt(0)
	}
	if e.Reward == nil {
		e.Reward = big.NewInt(0)
	}
	if e.Pool == nil {
		e.Pool = big.NewInt(0)
	}
	return &types.Event{
		Type: TypeDepositSettled,
		Attributes: map[string]string{
			"from":   crypto.NewAddress(e.From).String(),
			"value":  e.Value.String(),
			"price":  e.Price.String(),
			"reward": e.Reward.String(),
			"pool":   e.Pool.String(),
		},
	}
}

// RewardMinted captures incentive tokens credited to a depositor.
type RewardMinted struct {
	To     [20]byte
	Amount *big.Int
}

func (RewardMinted) EventType() string { return TypeRewardMinted }

func (e RewardMinted) Event() *types.Event {
	if e.Amount == nil {
		e.Amount = big.NewInt(0)
	}
	return &types.Event{
		Type: TypeRewardMinted,
		Attributes: map[string]string{
			"to":     crypto.NewAddress(e.To).String(),
			"amount": e.Amount.String(),
		},
	}
}

func joinIDs(ids []uint64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
