package coin

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	coinRecordPrefix    = "coin/record/"
	coinOwnerPrefix     = "coin/owner/"
	coinNoncePrefix     = "coin/nonce/"
	receiptRecordPrefix = "coin/receipt/"
	receiptByRedeemer   = "coin/receipt/redeemer/"

	coinCounterKey  = "coin/counter"
	coinSupplyKey   = "coin/supply"
	coinPoolKey     = "coin/pool"
	coinParamsKey   = "coin/params"
	receiptIndexKey = "coin/receipt/index"
)

func coinKey(id uint64) []byte {
	return []byte(coinRecordPrefix + encodeID(id))
}

func ownerIndexKey(owner [20]byte) []byte {
	return []byte(coinOwnerPrefix + hex.EncodeToString(owner[:]))
}

func nonceKey(nonce string) []byte {
	return []byte(coinNoncePrefix + nonce)
}

func receiptKey(id string) []byte {
	return []byte(receiptRecordPrefix + id)
}

func receiptRedeemerKey(redeemer [20]byte) []byte {
	return []byte(receiptByRedeemer + hex.EncodeToString(redeemer[:]))
}

func encodeID(id uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return hex.EncodeToString(buf[:])
}

func idBytes(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func decodeIDBytes(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("coin: malformed id bytes of length %d", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}
