package coin

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"

	"littercoin/core/events"
)

// Redeem destroys a set of fully transferred coins owned by the caller and
// pays out the matching fraction of the pool: floor(pool * K / supply) for K
// redeemed of supply outstanding. The payout is computed before any mutation
// and the whole operation settles atomically; a failing payout sink rolls
// everything back.
func (e *Engine) Redeem(caller [20]byte, coinIDs []uint64) (*RedemptionReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.credentials == nil {
		return nil, errNilCredentials
	}
	paused, err := e.state.Paused()
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrPaused
	}
	eligible, err := e.credentials.IsValidHolder(caller)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrIneligibleRedeemer
	}
	if len(coinIDs) == 0 {
		return nil, ErrEmptyRedemptionSet
	}
	supply, err := e.supply()
	if err != nil {
		return nil, err
	}
	if supply == 0 {
		return nil, ErrNoSupply
	}
	pool, err := e.pool()
	if err != nil {
		return nil, err
	}
	if pool.Sign() <= 0 {
		return nil, ErrInsufficientPool
	}

	seen := make(map[uint64]struct{}, len(coinIDs))
	records := make([]*Coin, 0, len(coinIDs))
	for _, id := range coinIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrCoinNotRedeemable
		}
		seen[id] = struct{}{}
		record, err := e.loadCoin(id)
		if err != nil {
			return nil, err
		}
		if record.Owner != caller {
			return nil, ErrNotOwner
		}
		if record.Status == StatusBurned || record.Transfers != e.params.MaxTransfers {
			return nil, ErrCoinNotRedeemable
		}
		records = append(records, record)
	}

	count := uint64(len(records))
	payout := new(big.Int).Mul(pool, new(big.Int).SetUint64(count))
	payout.Quo(payout, new(big.Int).SetUint64(supply))

	now := e.now()
	for _, record := range records {
		if err := e.state.KVRemove(ownerIndexKey(caller), idBytes(record.ID)); err != nil {
			return nil, err
		}
		record.Owner = [20]byte{}
		record.Status = StatusBurned
		record.BurnedAt = now
		if err := e.storeCoin(record); err != nil {
			return nil, err
		}
	}
	if err := e.setSupply(supply - count); err != nil {
		return nil, err
	}
	poolAfter := new(big.Int).Sub(pool, payout)
	if err := e.setPool(poolAfter); err != nil {
		return nil, err
	}
	account, err := e.state.GetAccount(caller[:])
	if err != nil {
		return nil, err
	}
	account.Balance = new(big.Int).Add(account.Balance, payout)
	if err := e.state.PutAccount(caller[:], account); err != nil {
		return nil, err
	}

	ids := append([]uint64{}, coinIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	receipt := &RedemptionReceipt{
		ID:           uuid.NewString(),
		Redeemer:     caller,
		CoinIDs:      ids,
		Payout:       new(big.Int).Set(payout),
		PoolBefore:   new(big.Int).Set(pool),
		PoolAfter:    new(big.Int).Set(poolAfter),
		SupplyBefore: supply,
		SupplyAfter:  supply - count,
		CreatedAt:    now,
	}
	if err := e.recordReceipt(receipt); err != nil {
		return nil, err
	}

	if e.payouts != nil && payout.Sign() > 0 {
		if err := e.payouts.PayOut(caller, new(big.Int).Set(payout)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayoutTransferFailed, err)
		}
	}

	e.emit(&events.CoinRedeemed{
		Redeemer:  caller,
		CoinIDs:   ids,
		Payout:    new(big.Int).Set(payout),
		ReceiptID: receipt.ID,
	})
	return receipt.Copy(), nil
}

// Deposit settles an incoming value deposit: the oracle prices the deposit, a
// proportional reward is minted to the depositor, and the deposited value
// joins the pool backing outstanding coins.
func (e *Engine) Deposit(caller [20]byte, value *big.Int) (*DepositResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.rewards == nil {
		return nil, errNilRewards
	}
	if e.oracle == nil {
		return nil, errNilOracle
	}
	paused, err := e.state.Paused()
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrPaused
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	quote, err := e.oracle.LatestPrice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOraclePriceInvalid, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, ErrOraclePriceInvalid
	}
	if quote.Decimals != e.params.OracleDecimals {
		return nil, ErrOraclePriceInvalid
	}
	if e.params.MaxQuoteAge > 0 && !quote.Timestamp.IsZero() {
		age := e.now() - quote.Timestamp.Unix()
		if age > int64(e.params.MaxQuoteAge/time.Second) {
			return nil, ErrOraclePriceInvalid
		}
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quote.Decimals)), nil)
	reward := new(big.Int).Mul(value, quote.Price)
	reward.Quo(reward, scale)
	if reward.Sign() > 0 {
		if err := e.rewards.Mint(caller, reward); err != nil {
			return nil, err
		}
	}
	pool, err := e.pool()
	if err != nil {
		return nil, err
	}
	poolAfter := new(big.Int).Add(pool, value)
	if err := e.setPool(poolAfter); err != nil {
		return nil, err
	}

	e.emit(&events.DepositSettled{
		From:   caller,
		Value:  new(big.Int).Set(value),
		Price:  new(big.Int).Set(quote.Price),
		Reward: new(big.Int).Set(reward),
		Pool:   new(big.Int).Set(poolAfter),
	})
	if reward.Sign() > 0 {
		e.emit(&events.RewardMinted{To: caller, Amount: new(big.Int).Set(reward)})
	}
	return &DepositResult{
		Depositor: caller,
		Value:     new(big.Int).Set(value),
		Price:     new(big.Int).Set(quote.Price),
		Decimals:  quote.Decimals,
		Reward:    reward,
		Pool:      poolAfter,
	}, nil
}
