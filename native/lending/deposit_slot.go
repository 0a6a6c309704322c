package lending

import "math/big"

// DepositResult reports the outcome of minting shares into a deposit slot.
type DepositResult struct {
	MintedShares *big.Int
	SlotShares   *big.Int
	// PositionPctBps is the lender's share of the pool after the deposit.
	PositionPctBps uint64
	NewDeposit     bool
}

// WithdrawResult reports the outcome of burning shares out of a deposit slot.
type WithdrawResult struct {
	BurnedShares    *big.Int
	WithdrawalValue *big.Int
	// PositionPctBps is the lender's share of the pool after the
	// withdrawal; zero when fully withdrawn.
	PositionPctBps uint64
	FullyWithdrawn bool
}

// Deposit mints shares into the slot against the authoritative pool totals
// supplied by the caller. The share rule mirrors the pool's own calculation
// deliberately: the slot validates independently rather than trusting a
// precomputed share amount.
func (s *DepositSlot) Deposit(amount, poolLiquidity, poolShares *big.Int, now int64) (*DepositResult, error) {
	if s == nil || !s.Active {
		return nil, ErrNotActive
	}
	s.EnsureDefaults()
	minted, err := sharesForDeposit(amount, poolShares, poolLiquidity)
	if err != nil {
		return nil, err
	}
	isNew := s.Share.Sign() == 0 && s.AccumulatedDeposits.Sign() == 0
	s.Share = new(big.Int).Add(s.Share, minted)
	s.AccumulatedDeposits = new(big.Int).Add(s.AccumulatedDeposits, amount)
	s.LastDeposit = now

	sharesAfter := new(big.Int).Add(cloneBigInt(poolShares), minted)
	return &DepositResult{
		MintedShares:   minted,
		SlotShares:     cloneBigInt(s.Share),
		PositionPctBps: positionPercentBps(s.Share, sharesAfter),
		NewDeposit:     isNew,
	}, nil
}

// Withdraw burns the shares backing the requested liquidity amount. The slot
// transitions to its terminal inactive state when the share balance reaches
// zero; it can never be reactivated.
func (s *DepositSlot) Withdraw(amount, poolLiquidity, poolShares *big.Int, now int64) (*WithdrawResult, error) {
	if s == nil || !s.Active {
		return nil, ErrNotActive
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	s.EnsureDefaults()

	burned := sharesToBurn(amount, poolShares, poolLiquidity)
	if burned.Cmp(s.Share) > 0 {
		return nil, ErrInsufficientBalance
	}
	value := cloneBigInt(amount)
	if poolShares != nil && poolShares.Sign() > 0 && poolLiquidity != nil && poolLiquidity.Sign() > 0 {
		value = mulDiv(burned, poolLiquidity, poolShares)
	}

	s.Share = new(big.Int).Sub(s.Share, burned)
	s.AccumulatedDeposits = subFloorZero(s.AccumulatedDeposits, value)
	s.LastWithdraw = now

	fully := s.Share.Sign() == 0
	if fully {
		s.Active = false
	}
	sharesAfter := subFloorZero(cloneBigInt(poolShares), burned)
	pct := uint64(0)
	if !fully {
		pct = positionPercentBps(s.Share, sharesAfter)
	}
	return &WithdrawResult{
		BurnedShares:    burned,
		WithdrawalValue: value,
		PositionPctBps:  pct,
		FullyWithdrawn:  fully,
	}, nil
}
