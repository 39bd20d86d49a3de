package coin

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"littercoin/core/events"
	"littercoin/core/state"
	"littercoin/crypto"
	"littercoin/storage"
)

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) typesSeen() []string {
	seen := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		seen = append(seen, evt.EventType())
	}
	return seen
}

type stubCredentials struct {
	valid map[[20]byte]bool
}

func (s *stubCredentials) IsValidHolder(addr [20]byte) (bool, error) {
	return s.valid[addr], nil
}

type stubRewards struct {
	minted map[[20]byte]*big.Int
}

func (s *stubRewards) Mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("stub rewards: invalid amount")
	}
	if s.minted == nil {
		s.minted = make(map[[20]byte]*big.Int)
	}
	total, ok := s.minted[to]
	if !ok {
		total = big.NewInt(0)
	}
	s.minted[to] = new(big.Int).Add(total, amount)
	return nil
}

type sinkFunc func(redeemer [20]byte, amount *big.Int) error

func (f sinkFunc) PayOut(redeemer [20]byte, amount *big.Int) error {
	return f(redeemer, amount)
}

type engineFixture struct {
	engine   *Engine
	manager  *state.Manager
	adminKey *crypto.PrivateKey
	admin    [20]byte
	creds    *stubCredentials
	rewards  *stubRewards
	oracle   *ManualOracle
	emitter  *capturingEmitter
	now      int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)
	adminKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate admin key: %v", err)
	}
	admin := adminKey.PubKey().Address().Bytes()
	if err := manager.SetAdmin(admin); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	fix := &engineFixture{
		engine:   NewEngine(),
		manager:  manager,
		adminKey: adminKey,
		admin:    admin,
		creds:    &stubCredentials{valid: make(map[[20]byte]bool)},
		rewards:  &stubRewards{minted: make(map[[20]byte]*big.Int)},
		oracle:   NewManualOracle(),
		emitter:  &capturingEmitter{},
		now:      1_700_000_000,
	}
	fix.engine.SetState(manager)
	fix.engine.SetCredentialChecker(fix.creds)
	fix.engine.SetRewardMinter(fix.rewards)
	fix.engine.SetOracle(fix.oracle)
	fix.engine.SetEmitter(fix.emitter)
	fix.engine.SetNowFunc(func() int64 { return fix.now })
	return fix
}

func (f *engineFixture) signedVoucher(t *testing.T, beneficiary [20]byte, amount uint64, nonce string) (*MintVoucher, []byte) {
	t.Helper()
	voucher := &MintVoucher{
		Domain:      MintVoucherDomainV1,
		ChainID:     f.engine.Params().ChainID,
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       nonce,
		Expiry:      f.now + 3600,
	}
	sig, err := voucher.Sign(f.adminKey)
	if err != nil {
		t.Fatalf("sign voucher: %v", err)
	}
	return voucher, sig
}

func (f *engineFixture) mintCoins(t *testing.T, owner [20]byte, amount uint64, nonce string) []uint64 {
	t.Helper()
	voucher, sig := f.signedVoucher(t, owner, amount, nonce)
	result, err := f.engine.Mint(owner, voucher, sig)
	if err != nil {
		t.Fatalf("mint %d coins: %v", amount, err)
	}
	return result.CoinIDs
}

func (f *engineFixture) setPrice(t *testing.T, price string) {
	t.Helper()
	if err := f.oracle.SetDecimal(price, f.engine.Params().OracleDecimals, unixTime(f.now)); err != nil {
		t.Fatalf("set oracle price: %v", err)
	}
}

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

func TestMintCreatesCoinsForCaller(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)

	voucher, sig := fix.signedVoucher(t, citizen, 10, "nonce-1")
	result, err := fix.engine.Mint(citizen, voucher, sig)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if result.FirstID != 1 || result.LastID != 10 {
		t.Fatalf("unexpected id range [%d, %d]", result.FirstID, result.LastID)
	}
	coins, err := fix.engine.CoinsByOwner(citizen)
	if err != nil {
		t.Fatalf("coins by owner: %v", err)
	}
	if len(coins) != 10 {
		t.Fatalf("expected 10 coins, got %d", len(coins))
	}
	for i, record := range coins {
		if record.Owner != citizen {
			t.Fatalf("coin %d not owned by minter", record.ID)
		}
		if record.Status != StatusMinted || record.Transfers != 0 {
			t.Fatalf("coin %d not in minted state", record.ID)
		}
		if record.ID != uint64(i+1) {
			t.Fatalf("coins not ordered by id: got %d at %d", record.ID, i)
		}
	}
	supply, err := fix.engine.Supply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 10 {
		t.Fatalf("expected supply 10, got %d", supply)
	}
	used, err := fix.engine.NonceUsed("nonce-1")
	if err != nil {
		t.Fatalf("nonce used: %v", err)
	}
	if !used {
		t.Fatalf("nonce not marked used")
	}
	if got := fix.emitter.typesSeen(); len(got) != 1 || got[0] != events.TypeCoinMinted {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestMintRejectsReplayedNonce(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	voucher, sig := fix.signedVoucher(t, citizen, 10, "nonce-1")
	if _, err := fix.engine.Mint(citizen, voucher, sig); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrNonceReplay) {
		t.Fatalf("expected ErrNonceReplay, got %v", err)
	}
	supply, err := fix.engine.Supply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 10 {
		t.Fatalf("replayed mint changed supply to %d", supply)
	}
}

func TestMintAmountBounds(t *testing.T) {
	fix := newEngineFixture(t)
	params := fix.engine.Params()
	params.MaxMintAmount = 10
	fix.engine.SetParams(params)
	citizen := testAddr(0xA1)

	voucher, sig := fix.signedVoucher(t, citizen, 11, "nonce-over")
	if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for amount 11, got %v", err)
	}
	voucher, sig = fix.signedVoucher(t, citizen, 0, "nonce-zero")
	if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for amount 0, got %v", err)
	}
}

func TestMintPreconditions(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)

	t.Run("paused", func(t *testing.T) {
		if err := fix.manager.SetPaused(true); err != nil {
			t.Fatalf("pause: %v", err)
		}
		defer func() {
			if err := fix.manager.SetPaused(false); err != nil {
				t.Fatalf("resume: %v", err)
			}
		}()
		voucher, sig := fix.signedVoucher(t, citizen, 1, "nonce-paused")
		if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrPaused) {
			t.Fatalf("expected ErrPaused, got %v", err)
		}
	})

	t.Run("expired authorization", func(t *testing.T) {
		voucher, _ := fix.signedVoucher(t, citizen, 1, "nonce-expired")
		voucher.Expiry = fix.now - 1
		sig, err := voucher.Sign(fix.adminKey)
		if err != nil {
			t.Fatalf("re-sign: %v", err)
		}
		if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrAuthorizationExpired) {
			t.Fatalf("expected ErrAuthorizationExpired, got %v", err)
		}
	})

	t.Run("credential holder cannot mint", func(t *testing.T) {
		merchant := testAddr(0xB1)
		fix.creds.valid[merchant] = true
		voucher, sig := fix.signedVoucher(t, merchant, 1, "nonce-merchant")
		if _, err := fix.engine.Mint(merchant, voucher, sig); !errors.Is(err, ErrIneligibleMinter) {
			t.Fatalf("expected ErrIneligibleMinter, got %v", err)
		}
	})

	t.Run("foreign signer", func(t *testing.T) {
		rogue, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate rogue key: %v", err)
		}
		voucher, _ := fix.signedVoucher(t, citizen, 1, "nonce-rogue")
		sig, err := voucher.Sign(rogue)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("wrong chain", func(t *testing.T) {
		voucher, _ := fix.signedVoucher(t, citizen, 1, "nonce-chain")
		voucher.ChainID = voucher.ChainID + 1
		sig, err := voucher.Sign(fix.adminKey)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature for foreign chain, got %v", err)
		}
	})

	t.Run("beneficiary mismatch", func(t *testing.T) {
		other := testAddr(0xC1)
		voucher, sig := fix.signedVoucher(t, other, 1, "nonce-beneficiary")
		if _, err := fix.engine.Mint(citizen, voucher, sig); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature for beneficiary mismatch, got %v", err)
		}
	})
}

func TestTransferSingleHop(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	other := testAddr(0xB2)
	fix.creds.valid[merchant] = true
	fix.creds.valid[other] = true

	ids := fix.mintCoins(t, citizen, 1, "nonce-1")
	coinID := ids[0]

	moved, err := fix.engine.Transfer(citizen, coinID, citizen, merchant)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved.Owner != merchant || moved.Status != StatusTransferredOnce || moved.Transfers != 1 {
		t.Fatalf("unexpected coin after transfer: %+v", moved)
	}
	fromCoins, err := fix.engine.CoinsByOwner(citizen)
	if err != nil {
		t.Fatalf("coins by owner: %v", err)
	}
	if len(fromCoins) != 0 {
		t.Fatalf("sender still indexed for %d coins", len(fromCoins))
	}
	toCoins, err := fix.engine.CoinsByOwner(merchant)
	if err != nil {
		t.Fatalf("coins by owner: %v", err)
	}
	if len(toCoins) != 1 || toCoins[0].ID != coinID {
		t.Fatalf("recipient index not updated: %+v", toCoins)
	}

	if _, err := fix.engine.Transfer(merchant, coinID, merchant, other); !errors.Is(err, ErrTransferLimitExceeded) {
		t.Fatalf("expected ErrTransferLimitExceeded on second hop, got %v", err)
	}
}

func TestTransferPreconditions(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	stranger := testAddr(0xC1)
	fix.creds.valid[merchant] = true

	ids := fix.mintCoins(t, citizen, 2, "nonce-1")

	if _, err := fix.engine.Transfer(citizen, 99, citizen, merchant); !errors.Is(err, ErrCoinNotFound) {
		t.Fatalf("expected ErrCoinNotFound, got %v", err)
	}
	if _, err := fix.engine.Transfer(stranger, ids[0], stranger, merchant); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for stranger, got %v", err)
	}
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, [20]byte{}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, stranger); !errors.Is(err, ErrRecipientNotEligible) {
		t.Fatalf("expected ErrRecipientNotEligible, got %v", err)
	}
	if err := fix.manager.SetPaused(true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, merchant); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
}

func TestRedeemPaysProportionalShare(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	fix.creds.valid[merchant] = true
	fix.setPrice(t, "1.0")

	ids := fix.mintCoins(t, citizen, 10, "nonce-1")
	for _, id := range ids[:4] {
		if _, err := fix.engine.Transfer(citizen, id, citizen, merchant); err != nil {
			t.Fatalf("transfer coin %d: %v", id, err)
		}
	}
	if _, err := fix.engine.Deposit(testAddr(0xD1), big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	receipt, err := fix.engine.Redeem(merchant, ids[:4])
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if receipt.Payout.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected payout 400, got %s", receipt.Payout)
	}
	if receipt.SupplyBefore != 10 || receipt.SupplyAfter != 6 {
		t.Fatalf("unexpected supply accounting: %+v", receipt)
	}
	if receipt.PoolBefore.Cmp(big.NewInt(1000)) != 0 || receipt.PoolAfter.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("unexpected pool accounting: before %s after %s", receipt.PoolBefore, receipt.PoolAfter)
	}

	supply, err := fix.engine.Supply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 6 {
		t.Fatalf("expected supply 6, got %d", supply)
	}
	pool, err := fix.engine.PoolBalance()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected pool 600, got %s", pool)
	}
	for _, id := range ids[:4] {
		record, err := fix.engine.Coin(id)
		if err != nil {
			t.Fatalf("coin %d: %v", id, err)
		}
		if record.Status != StatusBurned || record.Owner != ([20]byte{}) {
			t.Fatalf("coin %d not burned: %+v", id, record)
		}
	}
	account, err := fix.manager.GetAccount(merchant[:])
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected balance credit 400, got %s", account.Balance)
	}

	stored, ok, err := fix.engine.Receipt(receipt.ID)
	if err != nil || !ok {
		t.Fatalf("receipt lookup: ok=%v err=%v", ok, err)
	}
	if len(stored.CoinIDs) != 4 {
		t.Fatalf("expected 4 coin ids on receipt, got %d", len(stored.CoinIDs))
	}
	byRedeemer, err := fix.engine.ReceiptsByRedeemer(merchant)
	if err != nil {
		t.Fatalf("receipts by redeemer: %v", err)
	}
	if len(byRedeemer) != 1 || byRedeemer[0].ID != receipt.ID {
		t.Fatalf("redeemer index mismatch: %+v", byRedeemer)
	}
}

func TestRedeemPreconditionOrder(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	stranger := testAddr(0xC1)
	fix.creds.valid[merchant] = true
	fix.setPrice(t, "1.0")

	// Eligibility is checked before the set is inspected.
	if _, err := fix.engine.Redeem(stranger, nil); !errors.Is(err, ErrIneligibleRedeemer) {
		t.Fatalf("expected ErrIneligibleRedeemer, got %v", err)
	}
	if _, err := fix.engine.Redeem(merchant, nil); !errors.Is(err, ErrEmptyRedemptionSet) {
		t.Fatalf("expected ErrEmptyRedemptionSet, got %v", err)
	}
	if _, err := fix.engine.Redeem(merchant, []uint64{1}); !errors.Is(err, ErrNoSupply) {
		t.Fatalf("expected ErrNoSupply, got %v", err)
	}

	ids := fix.mintCoins(t, citizen, 2, "nonce-1")
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := fix.engine.Redeem(merchant, []uint64{ids[0]}); !errors.Is(err, ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}

	if _, err := fix.engine.Deposit(testAddr(0xD1), big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Redeem(merchant, []uint64{ids[1]}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for unowned coin, got %v", err)
	}
	if _, err := fix.engine.Redeem(merchant, []uint64{ids[0], ids[0]}); !errors.Is(err, ErrCoinNotRedeemable) {
		t.Fatalf("expected ErrCoinNotRedeemable for duplicates, got %v", err)
	}

	// A coin still in minted state is not redeemable even by its owner.
	fix.creds.valid[citizen] = true
	if _, err := fix.engine.Redeem(citizen, []uint64{ids[1]}); !errors.Is(err, ErrCoinNotRedeemable) {
		t.Fatalf("expected ErrCoinNotRedeemable for minted coin, got %v", err)
	}
}

func TestRedeemWholePoolWhenLastCoinBurns(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	fix.creds.valid[merchant] = true
	fix.setPrice(t, "0.75")

	ids := fix.mintCoins(t, citizen, 1, "nonce-1")
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if _, err := fix.engine.Redeem(merchant, ids); !errors.Is(err, ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool with empty pool, got %v", err)
	}

	result, err := fix.engine.Deposit(testAddr(0xD1), big.NewInt(1_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if result.Reward.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected reward 750, got %s", result.Reward)
	}

	receipt, err := fix.engine.Redeem(merchant, ids)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if receipt.Payout.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("last redeemer should drain the pool, got %s", receipt.Payout)
	}
	pool, err := fix.engine.PoolBalance()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Sign() != 0 {
		t.Fatalf("expected empty pool, got %s", pool)
	}
	supply, err := fix.engine.Supply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 0 {
		t.Fatalf("expected supply 0, got %d", supply)
	}
}

func TestRedeemSinkFailureLeavesBaseStateUntouched(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	fix.creds.valid[merchant] = true
	fix.setPrice(t, "1.0")

	ids := fix.mintCoins(t, citizen, 2, "nonce-1")
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := fix.engine.Deposit(testAddr(0xD1), big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Run the redemption against a speculative copy, the way the ledger does,
	// with a sink that refuses the payout.
	speculative := fix.manager.Copy()
	fix.engine.SetState(speculative)
	fix.engine.SetPayoutSink(sinkFunc(func([20]byte, *big.Int) error {
		return fmt.Errorf("wire unavailable")
	}))
	_, err := fix.engine.Redeem(merchant, []uint64{ids[0]})
	if !errors.Is(err, ErrPayoutTransferFailed) {
		t.Fatalf("expected ErrPayoutTransferFailed, got %v", err)
	}

	// The overlay is discarded; the base manager must still see the coin.
	fix.engine.SetState(fix.manager)
	record, err := fix.engine.Coin(ids[0])
	if err != nil {
		t.Fatalf("coin: %v", err)
	}
	if record.Status == StatusBurned || record.Owner != merchant {
		t.Fatalf("base state mutated despite sink failure: %+v", record)
	}
	supply, err := fix.engine.Supply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 2 {
		t.Fatalf("expected supply 2, got %d", supply)
	}
	pool, err := fix.engine.PoolBalance()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected pool 500, got %s", pool)
	}
}

func TestDepositMintsRewardAndGrowsPool(t *testing.T) {
	fix := newEngineFixture(t)
	depositor := testAddr(0xD1)
	fix.setPrice(t, "0.75")

	result, err := fix.engine.Deposit(depositor, big.NewInt(1_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if result.Reward.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected reward 750, got %s", result.Reward)
	}
	if result.Pool.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected pool 1000, got %s", result.Pool)
	}
	minted := fix.rewards.minted[depositor]
	if minted == nil || minted.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("reward ledger credited %v", minted)
	}
	types := fix.emitter.typesSeen()
	if len(types) != 2 || types[0] != events.TypeDepositSettled || types[1] != events.TypeRewardMinted {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestDepositValidation(t *testing.T) {
	fix := newEngineFixture(t)
	depositor := testAddr(0xD1)
	fix.setPrice(t, "0.75")

	if _, err := fix.engine.Deposit(depositor, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero value, got %v", err)
	}
	if _, err := fix.engine.Deposit(depositor, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil value, got %v", err)
	}

	t.Run("stale quote", func(t *testing.T) {
		maxAge := int64(fix.engine.Params().MaxQuoteAge.Seconds())
		if err := fix.oracle.SetDecimal("0.75", fix.engine.Params().OracleDecimals, unixTime(fix.now-maxAge-1)); err != nil {
			t.Fatalf("set price: %v", err)
		}
		if _, err := fix.engine.Deposit(depositor, big.NewInt(100)); !errors.Is(err, ErrOraclePriceInvalid) {
			t.Fatalf("expected ErrOraclePriceInvalid for stale quote, got %v", err)
		}
	})

	t.Run("decimal mismatch", func(t *testing.T) {
		if err := fix.oracle.SetDecimal("0.75", 6, unixTime(fix.now)); err != nil {
			t.Fatalf("set price: %v", err)
		}
		if _, err := fix.engine.Deposit(depositor, big.NewInt(100)); !errors.Is(err, ErrOraclePriceInvalid) {
			t.Fatalf("expected ErrOraclePriceInvalid for decimal mismatch, got %v", err)
		}
	})

	t.Run("non-positive price", func(t *testing.T) {
		fix.engine.SetOracle(oracleFunc(func() (PriceQuote, error) {
			return PriceQuote{Price: big.NewInt(0), Decimals: fix.engine.Params().OracleDecimals, Timestamp: unixTime(fix.now)}, nil
		}))
		defer fix.engine.SetOracle(fix.oracle)
		if _, err := fix.engine.Deposit(depositor, big.NewInt(100)); !errors.Is(err, ErrOraclePriceInvalid) {
			t.Fatalf("expected ErrOraclePriceInvalid for zero price, got %v", err)
		}
	})

	t.Run("paused", func(t *testing.T) {
		fix.setPrice(t, "0.75")
		if err := fix.manager.SetPaused(true); err != nil {
			t.Fatalf("pause: %v", err)
		}
		defer func() {
			if err := fix.manager.SetPaused(false); err != nil {
				t.Fatalf("resume: %v", err)
			}
		}()
		if _, err := fix.engine.Deposit(depositor, big.NewInt(100)); !errors.Is(err, ErrPaused) {
			t.Fatalf("expected ErrPaused, got %v", err)
		}
	})
}

func TestReceiptListingPagination(t *testing.T) {
	fix := newEngineFixture(t)
	citizen := testAddr(0xA1)
	merchant := testAddr(0xB1)
	fix.creds.valid[merchant] = true
	fix.setPrice(t, "1.0")

	ids := fix.mintCoins(t, citizen, 3, "nonce-1")
	for _, id := range ids {
		if _, err := fix.engine.Transfer(citizen, id, citizen, merchant); err != nil {
			t.Fatalf("transfer: %v", err)
		}
	}
	if _, err := fix.engine.Deposit(testAddr(0xD1), big.NewInt(900)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	first, err := fix.engine.Redeem(merchant, []uint64{ids[0]})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	fix.now++
	second, err := fix.engine.Redeem(merchant, []uint64{ids[1]})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	page, cursor, err := fix.engine.Receipts("", 1)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(page) != 1 || page[0].ID != first.ID {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if cursor != first.ID {
		t.Fatalf("expected cursor %s, got %s", first.ID, cursor)
	}
	page, cursor, err = fix.engine.Receipts(cursor, 10)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(page) != 1 || page[0].ID != second.ID {
		t.Fatalf("unexpected second page: %+v", page)
	}
	if cursor != "" {
		t.Fatalf("expected exhausted cursor, got %s", cursor)
	}
}

func TestParamsPersistence(t *testing.T) {
	fix := newEngineFixture(t)
	params := fix.engine.Params()
	params.MaxMintAmount = 25
	params.MaxTransfers = 2
	fix.engine.SetParams(params)
	if err := fix.engine.PersistParams(); err != nil {
		t.Fatalf("persist params: %v", err)
	}
	stored, ok, err := fix.engine.LoadStoredParams()
	if err != nil {
		t.Fatalf("load params: %v", err)
	}
	if !ok {
		t.Fatalf("expected stored params")
	}
	if stored.MaxMintAmount != 25 || stored.MaxTransfers != 2 {
		t.Fatalf("round trip mismatch: %+v", stored)
	}
	if stored.MaxQuoteAge != fix.engine.Params().MaxQuoteAge {
		t.Fatalf("quote age not preserved: %v", stored.MaxQuoteAge)
	}
}

func TestConfigurableTransferBound(t *testing.T) {
	fix := newEngineFixture(t)
	params := fix.engine.Params()
	params.MaxTransfers = 2
	fix.engine.SetParams(params)
	citizen := testAddr(0xA1)
	first := testAddr(0xB1)
	second := testAddr(0xB2)
	fix.creds.valid[first] = true
	fix.creds.valid[second] = true
	fix.setPrice(t, "1.0")

	ids := fix.mintCoins(t, citizen, 1, "nonce-1")
	if _, err := fix.engine.Transfer(citizen, ids[0], citizen, first); err != nil {
		t.Fatalf("first hop: %v", err)
	}

	// One hop in, the coin is not yet redeemable under a two-transfer bound.
	if _, err := fix.engine.Deposit(testAddr(0xD1), big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Redeem(first, ids); !errors.Is(err, ErrCoinNotRedeemable) {
		t.Fatalf("expected ErrCoinNotRedeemable after one hop, got %v", err)
	}

	if _, err := fix.engine.Transfer(first, ids[0], first, second); err != nil {
		t.Fatalf("second hop: %v", err)
	}
	if _, err := fix.engine.Transfer(second, ids[0], second, first); !errors.Is(err, ErrTransferLimitExceeded) {
		t.Fatalf("expected ErrTransferLimitExceeded on third hop, got %v", err)
	}
	if _, err := fix.engine.Redeem(second, ids); err != nil {
		t.Fatalf("redeem after full transfer path: %v", err)
	}
}
