package coin

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// RedemptionReceipt records a settled pooled redemption: which coins were
// destroyed, what fraction of the pool was paid out, and the supply and pool
// totals on both sides of the burn.
type RedemptionReceipt struct {
	ID           string
	Redeemer     [20]byte
	CoinIDs      []uint64
	Payout       *big.Int
	PoolBefore   *big.Int
	PoolAfter    *big.Int
	SupplyBefore uint64
	SupplyAfter  uint64
	CreatedAt    int64
}

// Copy returns a deep copy of the receipt for defensive use by callers.
func (r *RedemptionReceipt) Copy() *RedemptionReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Payout != nil {
		clone.Payout = new(big.Int).Set(r.Payout)
	}
	if r.PoolBefore != nil {
		clone.PoolBefore = new(big.Int).Set(r.PoolBefore)
	}
	if r.PoolAfter != nil {
		clone.PoolAfter = new(big.Int).Set(r.PoolAfter)
	}
	clone.CoinIDs = append([]uint64{}, r.CoinIDs...)
	return &clone
}

type storedRedemptionReceipt struct {
	ID           string
	Redeemer     [20]byte
	CoinIDs      []uint64
	Payout       string
	PoolBefore   string
	PoolAfter    string
	SupplyBefore uint64
	SupplyAfter  uint64
	CreatedAt    uint64
}

type receiptIndexEntry struct {
	ID      string
	Created uint64
}

func toStoredReceipt(receipt *RedemptionReceipt) storedRedemptionReceipt {
	stored := storedRedemptionReceipt{}
	if receipt == nil {
		return stored
	}
	stored.ID = strings.TrimSpace(receipt.ID)
	stored.Redeemer = receipt.Redeemer
	stored.CoinIDs = append([]uint64{}, receipt.CoinIDs...)
	if receipt.Payout != nil {
		stored.Payout = receipt.Payout.String()
	}
	if receipt.PoolBefore != nil {
		stored.PoolBefore = receipt.PoolBefore.String()
	}
	if receipt.PoolAfter != nil {
		stored.PoolAfter = receipt.PoolAfter.String()
	}
	stored.SupplyBefore = receipt.SupplyBefore
	stored.SupplyAfter = receipt.SupplyAfter
	stored.CreatedAt = clampUnix(receipt.CreatedAt)
	return stored
}

func fromStoredReceipt(stored *storedRedemptionReceipt) (*RedemptionReceipt, error) {
	if stored == nil {
		return nil, fmt.Errorf("coin: nil stored receipt")
	}
	createdAt, err := uint64ToInt64(stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("coin: receipt createdAt overflow: %w", err)
	}
	receipt := &RedemptionReceipt{
		ID:           stored.ID,
		Redeemer:     stored.Redeemer,
		CoinIDs:      append([]uint64{}, stored.CoinIDs...),
		SupplyBefore: stored.SupplyBefore,
		SupplyAfter:  stored.SupplyAfter,
		CreatedAt:    createdAt,
	}
	receipt.Payout, err = parseStoredAmount(stored.Payout)
	if err != nil {
		return nil, fmt.Errorf("coin: receipt payout: %w", err)
	}
	receipt.PoolBefore, err = parseStoredAmount(stored.PoolBefore)
	if err != nil {
		return nil, fmt.Errorf("coin: receipt pool before: %w", err)
	}
	receipt.PoolAfter, err = parseStoredAmount(stored.PoolAfter)
	if err != nil {
		return nil, fmt.Errorf("coin: receipt pool after: %w", err)
	}
	return receipt, nil
}

func parseStoredAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func (e *Engine) recordReceipt(receipt *RedemptionReceipt) error {
	if receipt == nil {
		return fmt.Errorf("coin: nil receipt")
	}
	stored := toStoredReceipt(receipt)
	if stored.ID == "" {
		return fmt.Errorf("coin: receipt id required")
	}
	if err := e.state.KVPut(receiptKey(stored.ID), stored); err != nil {
		return err
	}
	entry := receiptIndexEntry{ID: stored.ID, Created: stored.CreatedAt}
	encoded, err := rlp.EncodeToBytes(entry)
	if err != nil {
		return err
	}
	if err := e.state.KVAppend([]byte(receiptIndexKey), encoded); err != nil {
		return err
	}
	return e.state.KVAppend(receiptRedeemerKey(receipt.Redeemer), []byte(stored.ID))
}

// Receipt retrieves a redemption receipt by identifier.
func (e *Engine) Receipt(id string) (*RedemptionReceipt, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, false, fmt.Errorf("coin: receipt id required")
	}
	var stored storedRedemptionReceipt
	ok, err := e.state.KVGet(receiptKey(trimmed), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	receipt, err := fromStoredReceipt(&stored)
	if err != nil {
		return nil, false, err
	}
	return receipt, true, nil
}

// Receipts pages through all recorded redemptions in settlement order. The
// returned cursor is the last receipt id of the page and is empty once the
// listing is exhausted.
func (e *Engine) Receipts(cursor string, limit int) ([]*RedemptionReceipt, string, error) {
	if e == nil || e.state == nil {
		return nil, "", errNilState
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := e.loadReceiptIndex()
	if err != nil {
		return nil, "", err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Created == entries[j].Created {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Created < entries[j].Created
	})
	startIdx := 0
	trimmedCursor := strings.TrimSpace(cursor)
	if trimmedCursor != "" {
		for i, entry := range entries {
			if entry.ID == trimmedCursor {
				startIdx = i + 1
				break
			}
		}
	}
	receipts := make([]*RedemptionReceipt, 0, minInt(limit, len(entries)-startIdx))
	nextCursor := ""
	for i := startIdx; i < len(entries) && len(receipts) < limit; i++ {
		receipt, ok, err := e.Receipt(entries[i].ID)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			continue
		}
		receipts = append(receipts, receipt)
		nextCursor = entries[i].ID
	}
	if startIdx+len(receipts) >= len(entries) {
		nextCursor = ""
	}
	return receipts, nextCursor, nil
}

// ReceiptsByRedeemer returns every redemption settled by the supplied account.
func (e *Engine) ReceiptsByRedeemer(redeemer [20]byte) ([]*RedemptionReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := e.state.KVGetList(receiptRedeemerKey(redeemer), &raw); err != nil {
		return nil, err
	}
	receipts := make([]*RedemptionReceipt, 0, len(raw))
	for _, entry := range raw {
		receipt, ok, err := e.Receipt(string(entry))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		receipts = append(receipts, receipt)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		if receipts[i].CreatedAt == receipts[j].CreatedAt {
			return receipts[i].ID < receipts[j].ID
		}
		return receipts[i].CreatedAt < receipts[j].CreatedAt
	})
	return receipts, nil
}

func (e *Engine) loadReceiptIndex() ([]receiptIndexEntry, error) {
	var raw [][]byte
	if err := e.state.KVGetList([]byte(receiptIndexKey), &raw); err != nil {
		return nil, err
	}
	entries := make([]receiptIndexEntry, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var entry receiptIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, err
		}
		if strings.TrimSpace(entry.ID) == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
