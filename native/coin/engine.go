package coin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"littercoin/core/events"
	"littercoin/core/types"
)

var (
	errNilState       = errors.New("coin engine: state not configured")
	errNilCredentials = errors.New("coin engine: credential registry not configured")
	errNilRewards     = errors.New("coin engine: reward ledger not configured")
	errNilOracle      = errors.New("coin engine: price oracle not configured")
	errNoAdmin        = errors.New("coin engine: admin identity not configured")
)

type engineState interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Admin() ([20]byte, bool, error)
	Paused() (bool, error)
}

// CredentialChecker reports whether an account currently holds a valid
// eligibility credential. The merchant registry satisfies this.
type CredentialChecker interface {
	IsValidHolder(addr [20]byte) (bool, error)
}

// RewardMinter credits deposit rewards. Only the coin engine calls it.
type RewardMinter interface {
	Mint(to [20]byte, amount *big.Int) error
}

// PayoutSink receives the redemption payout once all ledger mutations have
// been applied. Implementations must not call back into the ledger; a
// re-entrant call is rejected while the redemption is in flight.
type PayoutSink interface {
	PayOut(redeemer [20]byte, amount *big.Int) error
}

// Engine owns the coin lifecycle: voucher-backed minting, bounded transfers,
// pooled redemption and deposit rewards. It is not safe for concurrent use;
// the ledger serialises operations and hands the engine a speculative state
// copy per operation.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	credentials CredentialChecker
	rewards     RewardMinter
	payouts     PayoutSink
	oracle      PriceOracle
	params      Params
	nowFn       func() int64
}

// NewEngine creates a coin engine with default params and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCredentialChecker configures the eligibility oracle consulted on mint,
// transfer and redeem.
func (e *Engine) SetCredentialChecker(checker CredentialChecker) { e.credentials = checker }

// SetRewardMinter configures the reward ledger credited on deposits.
func (e *Engine) SetRewardMinter(minter RewardMinter) { e.rewards = minter }

// SetPayoutSink configures the optional outbound transfer hook invoked after
// a redemption settles. A nil sink leaves payouts as account credits only.
func (e *Engine) SetPayoutSink(sink PayoutSink) { e.payouts = sink }

// SetOracle configures the price oracle consulted on deposits.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetParams replaces the engine thresholds.
func (e *Engine) SetParams(params Params) { e.params = params.Normalise() }

// Params returns the active thresholds.
func (e *Engine) Params() Params { return e.params }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Mint validates an admin-signed voucher and creates voucher.Amount new coins
// owned by the caller. The voucher nonce is consumed atomically with coin
// creation; a failed precondition leaves no trace.
func (e *Engine) Mint(caller [20]byte, voucher *MintVoucher, sig []byte) (*MintResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.credentials == nil {
		return nil, errNilCredentials
	}
	if voucher == nil {
		return nil, fmt.Errorf("coin: voucher required")
	}
	paused, err := e.state.Paused()
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrPaused
	}
	amount := voucher.Amount
	if amount < 1 || amount > e.params.MaxMintAmount {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if now > voucher.Expiry {
		return nil, ErrAuthorizationExpired
	}
	nonce := strings.TrimSpace(voucher.Nonce)
	if nonce == "" {
		return nil, fmt.Errorf("coin: voucher nonce required")
	}
	used, err := e.nonceUsed(nonce)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrNonceReplay
	}
	holdsCredential, err := e.credentials.IsValidHolder(caller)
	if err != nil {
		return nil, err
	}
	if holdsCredential {
		return nil, ErrIneligibleMinter
	}
	admin, ok, err := e.state.Admin()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoAdmin
	}
	if !strings.EqualFold(strings.TrimSpace(voucher.Domain), MintVoucherDomainV1) {
		return nil, ErrInvalidSignature
	}
	if voucher.ChainID != e.params.ChainID {
		return nil, ErrInvalidSignature
	}
	if voucher.Beneficiary != caller {
		return nil, ErrInvalidSignature
	}
	signer, err := voucher.RecoverSigner(sig)
	if err != nil {
		return nil, err
	}
	if signer != admin {
		return nil, ErrInvalidSignature
	}

	if err := e.markNonceUsed(nonce, now); err != nil {
		return nil, err
	}
	firstID, lastID, err := e.allocateIDs(amount)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, amount)
	for id := firstID; id <= lastID; id++ {
		record := &Coin{
			ID:       id,
			Owner:    caller,
			Status:   StatusMinted,
			Nonce:    nonce,
			MintedAt: now,
		}
		if err := e.storeCoin(record); err != nil {
			return nil, err
		}
		if err := e.state.KVAppend(ownerIndexKey(caller), idBytes(id)); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	supply, err := e.supply()
	if err != nil {
		return nil, err
	}
	if err := e.setSupply(supply + amount); err != nil {
		return nil, err
	}

	voucherHash := "0x" + hex.EncodeToString(voucher.Hash())
	e.emit(&events.CoinMinted{
		Beneficiary: caller,
		Amount:      amount,
		FirstID:     firstID,
		LastID:      lastID,
		Nonce:       nonce,
		VoucherHash: voucherHash,
	})
	return &MintResult{
		Beneficiary: caller,
		FirstID:     firstID,
		LastID:      lastID,
		CoinIDs:     ids,
		Nonce:       nonce,
		VoucherHash: voucherHash,
	}, nil
}

// Transfer moves a coin from its current owner to a credential holder,
// consuming one of the coin's bounded custody hops.
func (e *Engine) Transfer(caller [20]byte, coinID uint64, from, to [20]byte) (*Coin, error) {
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
	record, err := e.loadCoin(coinID)
	if err != nil {
		return nil, err
	}
	if caller != from || record.Owner != caller {
		return nil, ErrNotOwner
	}
	if record.Status == StatusBurned || record.Transfers >= e.params.MaxTransfers {
		return nil, ErrTransferLimitExceeded
	}
	if to == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	eligible, err := e.credentials.IsValidHolder(to)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrRecipientNotEligible
	}

	if err := e.state.KVRemove(ownerIndexKey(from), idBytes(coinID)); err != nil {
		return nil, err
	}
	record.Owner = to
	record.Transfers++
	record.Status = StatusTransferredOnce
	record.TransferredAt = e.now()
	if err := e.storeCoin(record); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(ownerIndexKey(to), idBytes(coinID)); err != nil {
		return nil, err
	}

	e.emit(&events.CoinTransferred{
		CoinID:    coinID,
		From:      from,
		To:        to,
		Transfers: record.Transfers,
	})
	return record.Copy(), nil
}

// Coin returns the record for the supplied id, tombstones included.
func (e *Engine) Coin(id uint64) (*Coin, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.loadCoin(id)
	if err != nil {
		return nil, err
	}
	return record.Copy(), nil
}

// CoinsByOwner returns the live coins held by the supplied account, ordered
// by id.
func (e *Engine) CoinsByOwner(owner [20]byte) ([]*Coin, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := e.state.KVGetList(ownerIndexKey(owner), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		id, err := decodeIDBytes(entry)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	coins := make([]*Coin, 0, len(ids))
	for _, id := range ids {
		record, err := e.loadCoin(id)
		if err != nil {
			return nil, err
		}
		coins = append(coins, record.Copy())
	}
	return coins, nil
}

// Supply returns the number of outstanding coins.
func (e *Engine) Supply() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.supply()
}

// PoolBalance returns the shared collateral backing outstanding coins.
func (e *Engine) PoolBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.pool()
}

// NonceUsed reports whether a mint authorization nonce has been consumed.
func (e *Engine) NonceUsed(nonce string) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	trimmed := strings.TrimSpace(nonce)
	if trimmed == "" {
		return false, fmt.Errorf("coin: nonce required")
	}
	return e.nonceUsed(trimmed)
}

// LoadStoredParams reads the thresholds persisted at bootstrap, reporting
// whether any were found.
func (e *Engine) LoadStoredParams() (Params, bool, error) {
	if e == nil || e.state == nil {
		return Params{}, false, errNilState
	}
	var stored storedParams
	ok, err := e.state.KVGet([]byte(coinParamsKey), &stored)
	if err != nil {
		return Params{}, false, err
	}
	if !ok {
		return Params{}, false, nil
	}
	return fromStoredParams(stored), true, nil
}

// PersistParams writes the active thresholds to state.
func (e *Engine) PersistParams() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.KVPut([]byte(coinParamsKey), toStoredParams(e.params))
}

func (e *Engine) loadCoin(id uint64) (*Coin, error) {
	var stored storedCoin
	ok, err := e.state.KVGet(coinKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCoinNotFound
	}
	return fromStoredCoin(&stored)
}

func (e *Engine) storeCoin(record *Coin) error {
	if record == nil {
		return fmt.Errorf("coin: nil record")
	}
	return e.state.KVPut(coinKey(record.ID), toStoredCoin(record))
}

func (e *Engine) allocateIDs(count uint64) (uint64, uint64, error) {
	var last uint64
	if _, err := e.state.KVGet([]byte(coinCounterKey), &last); err != nil {
		return 0, 0, err
	}
	first := last + 1
	last += count
	if err := e.state.KVPut([]byte(coinCounterKey), last); err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

func (e *Engine) supply() (uint64, error) {
	var supply uint64
	if _, err := e.state.KVGet([]byte(coinSupplyKey), &supply); err != nil {
		return 0, err
	}
	return supply, nil
}

func (e *Engine) setSupply(supply uint64) error {
	return e.state.KVPut([]byte(coinSupplyKey), supply)
}

func (e *Engine) pool() (*big.Int, error) {
	balance := new(big.Int)
	if _, err := e.state.KVGet([]byte(coinPoolKey), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (e *Engine) setPool(balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return fmt.Errorf("coin: pool balance must be non-negative")
	}
	return e.state.KVPut([]byte(coinPoolKey), balance)
}

func (e *Engine) nonceUsed(nonce string) (bool, error) {
	var usedAt uint64
	return e.state.KVGet(nonceKey(nonce), &usedAt)
}

func (e *Engine) markNonceUsed(nonce string, now int64) error {
	return e.state.KVPut(nonceKey(nonce), clampUnix(now))
}
