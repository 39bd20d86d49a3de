// Package rewards tracks the incentive tokens minted against deposits. The
// ledger keeps a per-account running total; it has no notion of transfers or
// burns because reward tokens only ever accrue.
package rewards

import (
	"errors"
	"math/big"

	"littercoin/core/types"
)

var (
	errNilState = errors.New("rewards ledger: state not configured")

	// ErrInvalidRecipient is returned when minting to the zero address.
	ErrInvalidRecipient = errors.New("rewards: recipient must not be the zero address")
	// ErrInvalidAmount is returned when the mint amount is nil or not positive.
	ErrInvalidAmount = errors.New("rewards: amount must be positive")
)

type ledgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Ledger accrues reward balances in account state.
type Ledger struct {
	st ledgerState
}

// NewLedger creates a reward ledger backed by the provided state manager.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{st: st}
}

// Mint credits the recipient with freshly created reward tokens.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilState
	}
	if to == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	account, err := l.st.GetAccount(to[:])
	if err != nil {
		return err
	}
	account.Rewards = new(big.Int).Add(account.Rewards, amount)
	return l.st.PutAccount(to[:], account)
}

// Balance returns the reward total accrued by the address.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilState
	}
	account, err := l.st.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Rewards), nil
}
