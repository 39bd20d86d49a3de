package state

import (
	"math/big"
	"testing"

	"littercoin/core/types"
	"littercoin/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestKVRoundTrip(t *testing.T) {
	mgr := newTestManager(t)

	type record struct {
		Label string
		Count uint64
	}
	if err := mgr.KVPut([]byte("coin/1"), &record{Label: "first", Count: 7}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got record
	ok, err := mgr.KVGet([]byte("coin/1"), &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if got.Label != "first" || got.Count != 7 {
		t.Fatalf("unexpected record: %+v", got)
	}

	ok, err = mgr.KVGet([]byte("coin/2"), &got)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("expected missing key")
	}
}

func TestKVListAppendRemove(t *testing.T) {
	mgr := newTestManager(t)
	key := []byte("owner/index")

	if err := mgr.KVAppend(key, []byte{0x01}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mgr.KVAppend(key, []byte{0x02}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mgr.KVAppend(key, []byte{0x01}); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}

	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}

	if err := mgr.KVRemove(key, []byte{0x01}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := mgr.KVRemove(key, []byte{0x09}); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 1 || list[0][0] != 0x02 {
		t.Fatalf("unexpected list after removal: %v", list)
	}

	var empty [][]byte
	if err := mgr.KVGetList([]byte("never/written"), &empty); err != nil {
		t.Fatalf("get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected initialised empty list, got %v", empty)
	}
}

func TestAccountsDefaultWhenAbsent(t *testing.T) {
	mgr := newTestManager(t)
	addr := []byte{0xaa, 0xbb, 0xcc}

	account, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Sign() != 0 || account.Rewards.Sign() != 0 {
		t.Fatalf("expected zeroed account, got %+v", account)
	}

	account.Balance = big.NewInt(1500)
	account.Rewards = nil
	if err := mgr.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reloaded, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.Balance.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("unexpected balance: %s", reloaded.Balance)
	}
	if reloaded.Rewards == nil || reloaded.Rewards.Sign() != 0 {
		t.Fatalf("expected defaulted rewards, got %v", reloaded.Rewards)
	}

	if err := mgr.PutAccount(nil, &types.Account{}); err == nil {
		t.Fatal("expected empty address rejection")
	}
}

func TestCopyCommitIsAllOrNothing(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("k"), "base"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	speculative := mgr.Copy()
	if err := speculative.KVPut([]byte("k"), "changed"); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := speculative.KVPut([]byte("new"), "value"); err != nil {
		t.Fatalf("overlay put: %v", err)
	}

	// The copy observes its own writes.
	var got string
	if ok, err := speculative.KVGet([]byte("k"), &got); err != nil || !ok {
		t.Fatalf("overlay get: ok=%v err=%v", ok, err)
	}
	if got != "changed" {
		t.Fatalf("overlay read got %q", got)
	}

	// The base does not, until Commit.
	if ok, err := mgr.KVGet([]byte("k"), &got); err != nil || !ok {
		t.Fatalf("base get: ok=%v err=%v", ok, err)
	}
	if got != "base" {
		t.Fatalf("base read got %q before commit", got)
	}
	if ok, _ := mgr.KVGet([]byte("new"), nil); ok {
		t.Fatal("uncommitted key visible in base")
	}

	if err := speculative.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, err := mgr.KVGet([]byte("k"), &got); err != nil || !ok {
		t.Fatalf("base get after commit: ok=%v err=%v", ok, err)
	}
	if got != "changed" {
		t.Fatalf("base read got %q after commit", got)
	}

	// A discarded copy leaves no trace.
	abandoned := mgr.Copy()
	if err := abandoned.KVPut([]byte("k"), "discarded"); err != nil {
		t.Fatalf("abandoned put: %v", err)
	}
	if ok, err := mgr.KVGet([]byte("k"), &got); err != nil || !ok {
		t.Fatalf("base get after discard: ok=%v err=%v", ok, err)
	}
	if got != "changed" {
		t.Fatalf("discarded overlay leaked: %q", got)
	}
}

func TestAdminAndPauseFlags(t *testing.T) {
	mgr := newTestManager(t)

	if _, ok, err := mgr.Admin(); err != nil || ok {
		t.Fatalf("expected unset admin, ok=%v err=%v", ok, err)
	}

	admin := [20]byte{0x01, 0x02}
	if err := mgr.SetAdmin(admin); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	got, ok, err := mgr.Admin()
	if err != nil || !ok {
		t.Fatalf("admin: ok=%v err=%v", ok, err)
	}
	if got != admin {
		t.Fatalf("unexpected admin: %x", got)
	}

	if paused, err := mgr.Paused(); err != nil || paused {
		t.Fatalf("expected running ledger, paused=%v err=%v", paused, err)
	}
	if err := mgr.SetPaused(true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	if paused, err := mgr.Paused(); err != nil || !paused {
		t.Fatalf("expected paused ledger, paused=%v err=%v", paused, err)
	}
}
