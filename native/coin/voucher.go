package coin

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"littercoin/crypto"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MintVoucherDomainV1 scopes mint signatures to the first voucher version so
// a signature can never be replayed against a future payload layout.
const MintVoucherDomainV1 = "LITTERCOIN_MINT_V1"

// MintVoucher is the admin-signed authorisation backing a coin mint. The
// nonce is single use; the expiry bounds how long a signed voucher stays
// submittable.
type MintVoucher struct {
	Domain      string
	ChainID     uint64
	Beneficiary [20]byte
	Amount      uint64
	Nonce       string
	Expiry      int64
}

type mintVoucherJSON struct {
	Domain      string `json:"domain"`
	ChainID     uint64 `json:"chainId"`
	Beneficiary string `json:"beneficiary"`
	Amount      uint64 `json:"amount"`
	Nonce       string `json:"nonce"`
	Expiry      int64  `json:"expiry"`
}

// MarshalJSON encodes the voucher into the representation consumed by RPC
// clients.
func (v MintVoucher) MarshalJSON() ([]byte, error) {
	beneficiary := ""
	if v.Beneficiary != ([20]byte{}) {
		beneficiary = crypto.NewAddress(v.Beneficiary).String()
	}
	payload := mintVoucherJSON{
		Domain:      strings.TrimSpace(v.Domain),
		ChainID:     v.ChainID,
		Beneficiary: beneficiary,
		Amount:      v.Amount,
		Nonce:       strings.TrimSpace(v.Nonce),
		Expiry:      v.Expiry,
	}
	return json.Marshal(payload)
}

// UnmarshalJSON decodes the on-wire representation into the canonical struct.
func (v *MintVoucher) UnmarshalJSON(data []byte) error {
	if v == nil {
		return fmt.Errorf("voucher: nil receiver")
	}
	var payload mintVoucherJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	domain := strings.TrimSpace(payload.Domain)
	if domain == "" {
		return fmt.Errorf("voucher: domain required")
	}
	beneficiaryStr := strings.TrimSpace(payload.Beneficiary)
	if beneficiaryStr == "" {
		return fmt.Errorf("voucher: beneficiary required")
	}
	addr, err := crypto.DecodeAddress(beneficiaryStr)
	if err != nil {
		return fmt.Errorf("voucher: beneficiary: %w", err)
	}
	nonce := strings.TrimSpace(payload.Nonce)
	if nonce == "" {
		return fmt.Errorf("voucher: nonce required")
	}
	*v = MintVoucher{
		Domain:      domain,
		ChainID:     payload.ChainID,
		Beneficiary: addr.Bytes(),
		Amount:      payload.Amount,
		Nonce:       nonce,
		Expiry:      payload.Expiry,
	}
	return nil
}

// Hash reconstructs the canonical digest signed by the ledger admin.
func (v MintVoucher) Hash() []byte {
	payload := fmt.Sprintf("%s|chain=%d|to=%s|amount=%d|nonce=%s|exp=%d",
		strings.TrimSpace(v.Domain),
		v.ChainID,
		hex.EncodeToString(v.Beneficiary[:]),
		v.Amount,
		strings.TrimSpace(v.Nonce),
		v.Expiry,
	)
	return ethcrypto.Keccak256([]byte(payload))
}

// Sign produces the 65-byte recoverable signature over the voucher digest.
func (v MintVoucher) Sign(key *crypto.PrivateKey) ([]byte, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, fmt.Errorf("voucher: signing key required")
	}
	sig, err := ethcrypto.Sign(v.Hash(), key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("voucher: sign: %w", err)
	}
	return sig, nil
}

// RecoverSigner returns the address that produced the supplied signature.
// Both raw {0,1} and legacy {27,28} recovery ids are accepted.
func (v MintVoucher) RecoverSigner(sig []byte) ([20]byte, error) {
	var signer [20]byte
	if len(sig) != 65 {
		return signer, ErrInvalidSignature
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(v.Hash(), normalized)
	if err != nil {
		return signer, ErrInvalidSignature
	}
	copy(signer[:], ethcrypto.PubkeyToAddress(*pubKey).Bytes())
	return signer, nil
}
