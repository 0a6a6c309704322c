package types

import "math/big"

// Account tracks the fungible balances held by an address. Balances are keyed
// by token symbol and denominated in the token's smallest unit.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// Balance returns the balance for the given token, treating missing entries
// as zero. The returned value is the stored pointer; callers that mutate it
// must go through SetBalance.
func (a *Account) Balance(token string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[token]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

// SetBalance records the balance for the given token, allocating the balance
// map on first use.
func (a *Account) SetBalance(token string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[token] = new(big.Int).Set(amount)
}
