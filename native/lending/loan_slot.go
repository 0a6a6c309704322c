package lending

import "math/big"

// RepayResult reports the split of a repayment between principal and
// interest. AmountApplied is the portion of the tendered amount the debt
// actually required; any excess is absorbed by the pool, not refunded.
type RepayResult struct {
	PrincipalPortion   *big.Int
	InterestPortion    *big.Int
	AmountApplied      *big.Int
	RemainingPrincipal *big.Int
	Closed             bool
}

// LoanWithdrawResult extends a repayment with the proportional release of the
// prepaid interest reserve.
type LoanWithdrawResult struct {
	RepayResult
	ReserveReleased *big.Int
}

func zeroRepayResult(s *LoanSlot) *RepayResult {
	remaining := big.NewInt(0)
	if s != nil && s.Principal != nil {
		remaining = cloneBigInt(s.Principal)
	}
	return &RepayResult{
		PrincipalPortion:   big.NewInt(0),
		InterestPortion:    big.NewInt(0),
		AmountApplied:      big.NewInt(0),
		RemainingPrincipal: remaining,
		Closed:             s != nil && !s.Active,
	}
}

// OutstandingDebt scales the remaining principal by the index growth since
// origination. The pool index is never mutated per slot; each slot re-derives
// its owed amount by ratio against its snapshot, which is what lets one
// global accrual serve every open loan. Principal is kept in origination-time
// units, so the same ratio stays valid across partial repayments.
func (s *LoanSlot) OutstandingDebt(currentIdx *big.Int) *big.Int {
	if s == nil || s.Principal == nil || s.Principal.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(s.Principal, currentIdx, s.DebtIndexAtBorrow)
}

// Repay applies a payment against the slot at the supplied pool index. An
// inactive slot or zero amount is a no-op returning zeros rather than an
// error, so retried repayments stay idempotent-safe. Partial payments are
// converted back to origination-time units before reducing the principal;
// the origination snapshot and original principal are never mutated.
func (s *LoanSlot) Repay(currentIdx, amount *big.Int, now int64) (*RepayResult, error) {
	if s == nil || !s.Active || amount == nil || amount.Sign() == 0 {
		return zeroRepayResult(s), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	s.EnsureDefaults()
	if currentIdx == nil || currentIdx.Cmp(s.DebtIndexAtBorrow) < 0 {
		return nil, ErrInvalidDebtIndex
	}

	principalScaled := s.OutstandingDebt(currentIdx)
	var principalPortion, interestPortion, applied *big.Int
	if amount.Cmp(principalScaled) >= 0 {
		principalPortion = cloneBigInt(s.Principal)
		interestPortion = subFloorZero(principalScaled, s.Principal)
		applied = principalScaled
	} else {
		principalPortion = mulDiv(amount, s.DebtIndexAtBorrow, currentIdx)
		if principalPortion.Cmp(s.Principal) > 0 {
			principalPortion = cloneBigInt(s.Principal)
		}
		interestPortion = new(big.Int).Sub(amount, principalPortion)
		applied = cloneBigInt(amount)
	}

	s.Principal = subFloorZero(s.Principal, principalPortion)
	s.LastPayment = now
	closed := s.Principal.Sign() == 0
	if closed {
		s.Active = false
		s.ArrearsStart = 0
	}
	return &RepayResult{
		PrincipalPortion:   principalPortion,
		InterestPortion:    interestPortion,
		AmountApplied:      applied,
		RemainingPrincipal: cloneBigInt(s.Principal),
		Closed:             closed,
	}, nil
}

// WithdrawAgainstRepayment repays and releases the matching slice of the
// prepaid reserve, scaled by the original principal so partial repayments
// release proportionally regardless of order. A non-full repayment whose
// principal portion rounded to zero is rejected: it would consume the
// payment while making no progress on the debt.
func (s *LoanSlot) WithdrawAgainstRepayment(currentIdx, amount *big.Int, now int64) (*LoanWithdrawResult, error) {
	if s == nil || !s.Active {
		return &LoanWithdrawResult{RepayResult: *zeroRepayResult(s), ReserveReleased: big.NewInt(0)}, nil
	}
	res, err := s.Repay(currentIdx, amount, now)
	if err != nil {
		return nil, err
	}
	if !res.Closed && res.AmountApplied.Sign() > 0 && res.PrincipalPortion.Sign() == 0 {
		return nil, ErrZeroPrincipal
	}
	released := mulDiv(s.Reserve, res.PrincipalPortion, s.OriginalPrincipal)
	if res.Closed {
		released = cloneBigInt(s.Reserve)
	}
	if released.Cmp(s.Reserve) > 0 {
		released = cloneBigInt(s.Reserve)
	}
	s.Reserve = new(big.Int).Sub(s.Reserve, released)
	return &LoanWithdrawResult{RepayResult: *res, ReserveReleased: released}, nil
}
