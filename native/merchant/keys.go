package merchant

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	tokenRecordPrefix = "merchant/token/"
	holderIndexPrefix = "merchant/holder/"

	tokenCounterKey = "merchant/counter"
)

func tokenKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return []byte(tokenRecordPrefix + hex.EncodeToString(buf[:]))
}

func holderKey(holder [20]byte) []byte {
	return []byte(holderIndexPrefix + hex.EncodeToString(holder[:]))
}
