package types

import "math/big"

// Account tracks the fungible holdings of a single ledger address. Balance
// accrues redemption payouts owed to the holder; Rewards accrues the
// incentive tokens minted against pool deposits. Discrete littercoins are
// records in the coin ledger, not account fields.
type Account struct {
	Balance *big.Int `json:"balance"`
	Rewards *big.Int `json:"rewards"`
}

// Clone returns a deep copy so callers can hand accounts across API
// boundaries without exposing ledger-owned big.Ints.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Balance: big.NewInt(0),
		Rewards: big.NewInt(0),
	}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	if a.Rewards != nil {
		clone.Rewards = new(big.Int).Set(a.Rewards)
	}
	return clone
}
