package coin

import (
	"bytes"
	"errors"
	"testing"

	"littercoin/crypto"
)

func testVoucher() MintVoucher {
	var beneficiary [20]byte
	beneficiary[19] = 0x42
	return MintVoucher{
		Domain:      MintVoucherDomainV1,
		ChainID:     421001,
		Beneficiary: beneficiary,
		Amount:      10,
		Nonce:       "order-1001",
		Expiry:      1_900_000_000,
	}
}

func TestVoucherHashBindsEveryField(t *testing.T) {
	base := testVoucher()
	baseHash := base.Hash()
	if !bytes.Equal(baseHash, base.Hash()) {
		t.Fatalf("hash is not deterministic")
	}

	mutations := []MintVoucher{base, base, base, base, base}
	mutations[0].Domain = "LITTERCOIN_MINT_V2"
	mutations[1].ChainID = 421002
	mutations[2].Amount = 11
	mutations[3].Nonce = "order-1002"
	mutations[4].Expiry = base.Expiry + 1
	for i, mutated := range mutations {
		if bytes.Equal(baseHash, mutated.Hash()) {
			t.Fatalf("mutation %d did not change the digest", i)
		}
	}
}

func TestVoucherSignAndRecover(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	voucher := testVoucher()
	sig, err := voucher.Sign(key)
	if err != nil {
		t.Fatalf("sign voucher: %v", err)
	}
	signer, err := voucher.RecoverSigner(sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if want := key.PubKey().Address().Bytes(); signer != want {
		t.Fatalf("recovered %x, want %x", signer, want)
	}

	legacy := make([]byte, len(sig))
	copy(legacy, sig)
	legacy[64] += 27
	signer, err = voucher.RecoverSigner(legacy)
	if err != nil {
		t.Fatalf("recover legacy signer: %v", err)
	}
	if want := key.PubKey().Address().Bytes(); signer != want {
		t.Fatalf("legacy recovery mismatch: got %x, want %x", signer, want)
	}
}

func TestVoucherSignatureForOtherPayloadRejected(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	voucher := testVoucher()
	sig, err := voucher.Sign(key)
	if err != nil {
		t.Fatalf("sign voucher: %v", err)
	}
	tampered := voucher
	tampered.Amount = voucher.Amount + 1
	signer, err := tampered.RecoverSigner(sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if signer == key.PubKey().Address().Bytes() {
		t.Fatalf("signature over a different payload must not recover the admin")
	}
}

func TestRecoverSignerRejectsMalformedSignature(t *testing.T) {
	voucher := testVoucher()
	if _, err := voucher.RecoverSigner(make([]byte, 64)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for short signature, got %v", err)
	}
	if _, err := voucher.RecoverSigner(nil); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for nil signature, got %v", err)
	}
}
