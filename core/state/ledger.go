package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	adminKey  = ethcrypto.Keccak256([]byte("ledger-admin"))
	pausedKey = ethcrypto.Keccak256([]byte("ledger-paused"))
)

// SetAdmin records the single administrative identity for the ledger.
func (m *Manager) SetAdmin(addr [20]byte) error {
	encoded, err := rlp.EncodeToBytes(addr[:])
	if err != nil {
		return err
	}
	return m.put(adminKey, encoded)
}

// Admin returns the configured administrative identity. The boolean is false
// when no admin has been set yet.
func (m *Manager) Admin() ([20]byte, bool, error) {
	var admin [20]byte
	data, err := m.get(adminKey)
	if err != nil {
		return admin, false, err
	}
	if len(data) == 0 {
		return admin, false, nil
	}
	var raw []byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return admin, false, err
	}
	if len(raw) != len(admin) {
		return admin, false, fmt.Errorf("state: malformed admin record")
	}
	copy(admin[:], raw)
	return admin, true, nil
}

// SetPaused stores the coin-ledger pause flag.
func (m *Manager) SetPaused(paused bool) error {
	encoded, err := rlp.EncodeToBytes(paused)
	if err != nil {
		return err
	}
	return m.put(pausedKey, encoded)
}

// Paused reports whether coin operations are halted. Absent state means
// running.
func (m *Manager) Paused() (bool, error) {
	data, err := m.get(pausedKey)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	var paused bool
	if err := rlp.DecodeBytes(data, &paused); err != nil {
		return false, err
	}
	return paused, nil
}
