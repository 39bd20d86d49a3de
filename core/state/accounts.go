package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"littercoin/core/types"
)

var accountPrefix = []byte("account:")

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func ensureAccountDefaults(account *types.Account) {
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	if account.Rewards == nil {
		account.Rewards = big.NewInt(0)
	}
}

// GetAccount reconstructs the account stored under the provided address.
// Unknown addresses yield a zeroed account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	account := &types.Account{
		Balance: big.NewInt(0),
		Rewards: big.NewInt(0),
	}
	data, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, account); err != nil {
			return nil, err
		}
	}
	ensureAccountDefaults(account)
	return account, nil
}

// PutAccount persists the provided account state under the supplied address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("nil account")
	}
	ensureAccountDefaults(account)
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return m.put(accountKey(addr), encoded)
}
