package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"littercoin/core/events"
	"littercoin/core/state"
	"littercoin/core/types"
	"littercoin/crypto"
	"littercoin/native/coin"
	"littercoin/native/merchant"
	"littercoin/native/rewards"
	"littercoin/observability"
	"littercoin/storage"
)

var (
	// ErrInvalidCaller is returned when an operation names the zero address
	// as its caller.
	ErrInvalidCaller = errors.New("ledger: caller must not be the zero address")
	// ErrUnauthorized is returned when a non-administrator invokes an
	// admin-only ledger operation.
	ErrUnauthorized = errors.New("ledger: caller is not the administrator")
	// ErrOperationInFlight is returned when a value-moving operation is
	// attempted while a redemption or deposit is still settling. Callers
	// retry; the ledger never queues.
	ErrOperationInFlight = errors.New("ledger: value-moving operation already in flight")
)

// Ledger is the central controller: it owns the backing store, serializes all
// operations, and wires the coin engine, merchant registry and reward ledger
// over a copy-on-write state view per operation. A failed operation discards
// its view whole; events surface only after commit.
type Ledger struct {
	db   storage.Database
	base *state.Manager

	oracle  coin.PriceOracle
	payouts coin.PayoutSink
	params  coin.Params
	nowFn   func() int64
	log     *slog.Logger

	mu       sync.RWMutex
	settling atomic.Bool

	streamMu      sync.Mutex
	streamSeq     uint64
	streamNextID  uint64
	streamSubs    map[uint64]chan EventUpdate
	streamHistory []EventUpdate
}

// NewLedger creates a ledger over the provided database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{
		db:     db,
		base:   state.NewManager(db),
		params: coin.DefaultParams(),
		log:    slog.Default(),
	}
}

// SetOracle wires the price source consulted by the deposit path.
func (l *Ledger) SetOracle(oracle coin.PriceOracle) { l.oracle = oracle }

// SetPayoutSink wires the outbound transfer hook invoked after redemptions.
func (l *Ledger) SetPayoutSink(sink coin.PayoutSink) { l.payouts = sink }

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (l *Ledger) SetNowFunc(now func() int64) { l.nowFn = now }

// SetLogger replaces the ledger's structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.log = logger
	}
}

// Params returns the active ledger parameters.
func (l *Ledger) Params() coin.Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params
}

// Bootstrap persists the administrator identity and the ledger parameters on
// first run. On restart the stored values win: a differing configuration is
// logged and ignored so that a config edit cannot silently change thresholds
// or rotate the admin.
func (l *Ledger) Bootstrap(admin [20]byte, params coin.Params) error {
	if admin == ([20]byte{}) {
		return fmt.Errorf("ledger: admin address must not be zero")
	}
	normalised := params.Normalise()
	if err := normalised.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	view := l.base.Copy()
	stored, ok, err := view.Admin()
	if err != nil {
		return err
	}
	if !ok {
		if err := view.SetAdmin(admin); err != nil {
			return err
		}
	} else if stored != admin {
		l.log.Warn("configured admin differs from stored admin; stored identity wins",
			"stored", crypto.NewAddress(stored).String(),
			"configured", crypto.NewAddress(admin).String())
	}

	engine := coin.NewEngine()
	engine.SetState(view)
	engine.SetParams(normalised)
	storedParams, found, err := engine.LoadStoredParams()
	if err != nil {
		return err
	}
	switch {
	case !found:
		if err := engine.PersistParams(); err != nil {
			return err
		}
		l.params = engine.Params()
	case storedParams != normalised:
		l.log.Warn("configured ledger params differ from stored params; stored values win")
		l.params = storedParams
	default:
		l.params = storedParams
	}

	if err := view.Commit(); err != nil {
		return err
	}
	l.refreshGauges()
	return nil
}

// eventBuffer collects engine events during an operation so they can be
// published after the state view commits.
type eventBuffer struct {
	buffered []events.Event
}

func (b *eventBuffer) Emit(event events.Event) {
	if event == nil {
		return
	}
	b.buffered = append(b.buffered, event)
}

type eventPayload interface {
	Event() *types.Event
}

func (l *Ledger) publishBuffered(buffer *eventBuffer) {
	if buffer == nil {
		return
	}
	for _, evt := range buffer.buffered {
		payload, ok := evt.(eventPayload)
		if !ok {
			continue
		}
		event := payload.Event()
		if event == nil {
			continue
		}
		l.publishEvent(event)
	}
}

// write runs fn against a copy-on-write view under the ledger lock. On
// success the view commits and buffered events publish; on error the view is
// discarded whole. Rejected merchant transfers are the one errored path whose
// events still publish: nothing was written, and observers audit the attempt.
func (l *Ledger) write(fn func(view *state.Manager, emitter events.Emitter) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	view := l.base.Copy()
	buffer := &eventBuffer{}
	if err := fn(view, buffer); err != nil {
		if errors.Is(err, merchant.ErrTransfersDisabled) {
			l.publishBuffered(buffer)
		}
		return err
	}
	if err := view.Commit(); err != nil {
		return err
	}
	l.publishBuffered(buffer)
	l.refreshGauges()
	return nil
}

func (l *Ledger) coinEngine(view *state.Manager, emitter events.Emitter) *coin.Engine {
	registry := merchant.NewRegistry(view)
	if l.nowFn != nil {
		registry.SetNowFunc(l.nowFn)
	}
	engine := coin.NewEngine()
	engine.SetState(view)
	engine.SetEmitter(emitter)
	engine.SetParams(l.params)
	engine.SetOracle(l.oracle)
	engine.SetPayoutSink(l.payouts)
	engine.SetCredentialChecker(registry)
	engine.SetRewardMinter(rewards.NewLedger(view))
	if l.nowFn != nil {
		engine.SetNowFunc(l.nowFn)
	}
	return engine
}

func (l *Ledger) merchantRegistry(view *state.Manager, emitter events.Emitter) *merchant.Registry {
	registry := merchant.NewRegistry(view)
	registry.SetEmitter(emitter)
	if l.nowFn != nil {
		registry.SetNowFunc(l.nowFn)
	}
	return registry
}

func (l *Ledger) queryEngine() *coin.Engine {
	engine := coin.NewEngine()
	engine.SetState(l.base)
	engine.SetParams(l.params)
	if l.nowFn != nil {
		engine.SetNowFunc(l.nowFn)
	}
	return engine
}

func (l *Ledger) observe(operation string, started time.Time, err *error) {
	observability.Ledger().Observe(operation, time.Since(started), *err)
}

// refreshGauges republishes the accounting gauges from committed state.
// Callers hold the ledger lock.
func (l *Ledger) refreshGauges() {
	metrics := observability.Ledger()
	engine := coin.NewEngine()
	engine.SetState(l.base)
	if supply, err := engine.Supply(); err == nil {
		metrics.SetSupply(supply)
	}
	if pool, err := engine.PoolBalance(); err == nil {
		metrics.SetPool(pool)
	}
	if paused, err := l.base.Paused(); err == nil {
		metrics.SetPaused(paused)
	}
}

// Mint validates the signed voucher and creates coins for the caller.
func (l *Ledger) Mint(caller [20]byte, voucher *coin.MintVoucher, sig []byte) (result *coin.MintResult, err error) {
	defer l.observe("coin_mint", time.Now(), &err)
	if l.settling.Load() {
		err = ErrOperationInFlight
		return nil, err
	}
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		minted, opErr := l.coinEngine(view, emitter).Mint(caller, voucher, sig)
		if opErr != nil {
			return opErr
		}
		result = minted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Transfer moves a coin to a merchant credential holder. The caller must be
// the current owner.
func (l *Ledger) Transfer(caller [20]byte, coinID uint64, from, to [20]byte) (result *coin.Coin, err error) {
	defer l.observe("coin_transfer", time.Now(), &err)
	if l.settling.Load() {
		err = ErrOperationInFlight
		return nil, err
	}
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		moved, opErr := l.coinEngine(view, emitter).Transfer(caller, coinID, from, to)
		if opErr != nil {
			return opErr
		}
		result = moved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Redeem burns the caller's coins against the pool and credits the
// proportional payout. The in-flight guard spans the whole operation: an
// overlapping value-moving call is rejected, never queued.
func (l *Ledger) Redeem(caller [20]byte, coinIDs []uint64) (receipt *coin.RedemptionReceipt, err error) {
	defer l.observe("coin_redeem", time.Now(), &err)
	if !l.settling.CompareAndSwap(false, true) {
		err = ErrOperationInFlight
		return nil, err
	}
	defer l.settling.Store(false)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		redeemed, opErr := l.coinEngine(view, emitter).Redeem(caller, coinIDs)
		if opErr != nil {
			return opErr
		}
		receipt = redeemed
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Ledger().ObservePayout(receipt.Payout)
	return receipt, nil
}

// Deposit settles inbound value: the pool grows by the deposited amount and
// the depositor earns oracle-priced rewards. Holds the in-flight guard for
// its full duration.
func (l *Ledger) Deposit(caller [20]byte, value *big.Int) (result *coin.DepositResult, err error) {
	defer l.observe("coin_deposit", time.Now(), &err)
	if !l.settling.CompareAndSwap(false, true) {
		err = ErrOperationInFlight
		return nil, err
	}
	defer l.settling.Store(false)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		settled, opErr := l.coinEngine(view, emitter).Deposit(caller, value)
		if opErr != nil {
			return opErr
		}
		result = settled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Pause halts coin operations. Admin only; merchant registry writes and all
// queries keep working.
func (l *Ledger) Pause(caller [20]byte) error {
	return l.setPaused(caller, true, "ledger_pause")
}

// Resume re-enables coin operations. Admin only.
func (l *Ledger) Resume(caller [20]byte) error {
	return l.setPaused(caller, false, "ledger_resume")
}

func (l *Ledger) setPaused(caller [20]byte, paused bool, operation string) (err error) {
	defer l.observe(operation, time.Now(), &err)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		admin, ok, adminErr := view.Admin()
		if adminErr != nil {
			return adminErr
		}
		if !ok || caller != admin {
			return ErrUnauthorized
		}
		current, stateErr := view.Paused()
		if stateErr != nil {
			return stateErr
		}
		if current == paused {
			return nil
		}
		if err := view.SetPaused(paused); err != nil {
			return err
		}
		if paused {
			emitter.Emit(&events.LedgerPaused{Caller: caller})
		} else {
			emitter.Emit(&events.LedgerResumed{Caller: caller})
		}
		return nil
	})
	return err
}

// MerchantMint issues an eligibility credential. Admin only; works while
// paused.
func (l *Ledger) MerchantMint(caller, holder [20]byte, expiresAt int64) (credential *merchant.Credential, err error) {
	defer l.observe("merchant_mint", time.Now(), &err)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		minted, opErr := l.merchantRegistry(view, emitter).Mint(caller, holder, expiresAt)
		if opErr != nil {
			return opErr
		}
		credential = minted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// MerchantAddExpiration extends a credential's validity window. Admin only.
func (l *Ledger) MerchantAddExpiration(caller [20]byte, id uint64, additionalSeconds int64) (credential *merchant.Credential, err error) {
	defer l.observe("merchant_add_expiration", time.Now(), &err)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		renewed, opErr := l.merchantRegistry(view, emitter).AddExpiration(caller, id, additionalSeconds)
		if opErr != nil {
			return opErr
		}
		credential = renewed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// MerchantInvalidate forces a credential out of validity immediately. Admin
// only.
func (l *Ledger) MerchantInvalidate(caller [20]byte, id uint64) (credential *merchant.Credential, err error) {
	defer l.observe("merchant_invalidate", time.Now(), &err)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return nil, err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		invalidated, opErr := l.merchantRegistry(view, emitter).Invalidate(caller, id)
		if opErr != nil {
			return opErr
		}
		credential = invalidated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// MerchantBurn lets a holder destroy their own credential.
func (l *Ledger) MerchantBurn(caller [20]byte, id uint64) (err error) {
	defer l.observe("merchant_burn", time.Now(), &err)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		return l.merchantRegistry(view, emitter).Burn(caller, id)
	})
	return err
}

// MerchantTransfer rejects the attempted credential transfer. The rejection
// event still reaches observers.
func (l *Ledger) MerchantTransfer(caller [20]byte, id uint64, to [20]byte) (err error) {
	defer l.observe("merchant_transfer", time.Now(), &err)
	if caller == ([20]byte{}) {
		err = ErrInvalidCaller
		return err
	}
	err = l.write(func(view *state.Manager, emitter events.Emitter) error {
		return l.merchantRegistry(view, emitter).Transfer(caller, id, to)
	})
	return err
}

// Coin returns the coin record with the supplied id.
func (l *Ledger) Coin(id uint64) (*coin.Coin, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().Coin(id)
}

// CoinsByOwner returns all coins currently owned by the address.
func (l *Ledger) CoinsByOwner(owner [20]byte) ([]*coin.Coin, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().CoinsByOwner(owner)
}

// Supply returns the number of coins currently outstanding.
func (l *Ledger) Supply() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().Supply()
}

// PoolBalance returns the collateral pool backing outstanding coins.
func (l *Ledger) PoolBalance() (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().PoolBalance()
}

// NonceUsed reports whether a mint authorization nonce has been consumed.
func (l *Ledger) NonceUsed(nonce string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().NonceUsed(nonce)
}

// Receipt returns the redemption receipt with the supplied id.
func (l *Ledger) Receipt(id string) (*coin.RedemptionReceipt, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().Receipt(id)
}

// Receipts pages through redemption receipts in commit order.
func (l *Ledger) Receipts(cursor string, limit int) ([]*coin.RedemptionReceipt, string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().Receipts(cursor, limit)
}

// ReceiptsByRedeemer returns all receipts recorded for the redeemer.
func (l *Ledger) ReceiptsByRedeemer(redeemer [20]byte) ([]*coin.RedemptionReceipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEngine().ReceiptsByRedeemer(redeemer)
}

// Account returns a copy of the fungible balances held by the address.
func (l *Ledger) Account(addr [20]byte) (*types.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, err := l.base.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// RewardBalance returns the reward total accrued by the address.
func (l *Ledger) RewardBalance(addr [20]byte) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return rewards.NewLedger(l.base).Balance(addr)
}

// MerchantCredential returns the live credential with the supplied id.
func (l *Ledger) MerchantCredential(id uint64) (*merchant.Credential, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.merchantRegistry(l.base, nil).Get(id)
}

// MerchantCredentialByHolder returns the credential linked to the holder.
func (l *Ledger) MerchantCredentialByHolder(holder [20]byte) (*merchant.Credential, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.merchantRegistry(l.base, nil).HolderCredential(holder)
}

// MerchantIsValid reports whether the holder carries a live, unexpired
// credential.
func (l *Ledger) MerchantIsValid(holder [20]byte) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.merchantRegistry(l.base, nil).IsValidHolder(holder)
}

// MerchantIsExpired reports whether the credential with the supplied id has
// lapsed.
func (l *Ledger) MerchantIsExpired(id uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.merchantRegistry(l.base, nil).IsExpired(id)
}

// Paused reports whether coin operations are halted.
func (l *Ledger) Paused() (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base.Paused()
}

// Admin returns the configured administrator identity.
func (l *Ledger) Admin() ([20]byte, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base.Admin()
}
