package lending

import (
	"math/big"

	"lendfi/crypto"
	"lendfi/native/venue"
)

// LoanPosition captures the aggregate accounting state for one liquidity
// pool. Amounts are expressed in the venue's liquidity units as big integers
// to match on-chain precision; rates are basis points.
type LoanPosition struct {
	ID       string               `json:"id"`
	Creator  crypto.Address       `json:"creator"`
	Custody  crypto.Address       `json:"custody"`
	Venue    venue.PositionHandle `json:"venue"`
	TokenA   string               `json:"tokenA"`
	TokenB   string               `json:"tokenB"`
	TokenFee string               `json:"tokenFee"`

	// Liquidity is the total value contributed by lenders.
	Liquidity *big.Int `json:"liquidity"`
	// TotalShare is the outstanding share supply across all deposit slots;
	// Liquidity/TotalShare defines the share exchange rate.
	TotalShare *big.Int `json:"totalShare"`
	// UtilisationBps is TotalBorrowed relative to Liquidity, clamped to
	// 10,000.
	UtilisationBps uint64 `json:"utilisationBps"`
	// CurrentDebtIndex is the monotonically non-decreasing interest
	// accumulator, starting at the precision constant.
	CurrentDebtIndex *big.Int `json:"currentDebtIndex"`
	// AvailableBorrow and TotalBorrowed track remaining and consumed
	// capacity.
	AvailableBorrow *big.Int `json:"availableBorrow"`
	TotalBorrowed   *big.Int `json:"totalBorrowed"`
	// FeeGrowthGlobalA/B accumulate claimed fees per share so slot claims
	// settle without iterating all participants.
	FeeGrowthGlobalA *big.Int `json:"feeGrowthGlobalA"`
	FeeGrowthGlobalB *big.Int `json:"feeGrowthGlobalB"`

	Model InterestModel `json:"model"`

	Active      bool  `json:"active"`
	CreatedAt   int64 `json:"createdAt"`
	LastUpdate  int64 `json:"lastUpdate"`
	LastAccrual int64 `json:"lastAccrual"`
}

// EnsureDefaults populates nil big.Int fields so decoded records are safe to
// operate on.
func (p *LoanPosition) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.Liquidity == nil {
		p.Liquidity = big.NewInt(0)
	}
	if p.TotalShare == nil {
		p.TotalShare = big.NewInt(0)
	}
	if p.CurrentDebtIndex == nil || p.CurrentDebtIndex.Sign() == 0 {
		p.CurrentDebtIndex = new(big.Int).Set(precision)
	}
	if p.AvailableBorrow == nil {
		p.AvailableBorrow = big.NewInt(0)
	}
	if p.TotalBorrowed == nil {
		p.TotalBorrowed = big.NewInt(0)
	}
	if p.FeeGrowthGlobalA == nil {
		p.FeeGrowthGlobalA = big.NewInt(0)
	}
	if p.FeeGrowthGlobalB == nil {
		p.FeeGrowthGlobalB = big.NewInt(0)
	}
}

// Clone returns a deep copy of the pool record.
func (p *LoanPosition) Clone() *LoanPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Liquidity = cloneBigInt(p.Liquidity)
	clone.TotalShare = cloneBigInt(p.TotalShare)
	clone.CurrentDebtIndex = cloneBigInt(p.CurrentDebtIndex)
	clone.AvailableBorrow = cloneBigInt(p.AvailableBorrow)
	clone.TotalBorrowed = cloneBigInt(p.TotalBorrowed)
	clone.FeeGrowthGlobalA = cloneBigInt(p.FeeGrowthGlobalA)
	clone.FeeGrowthGlobalB = cloneBigInt(p.FeeGrowthGlobalB)
	return &clone
}

// syncCapacity recomputes the derived capacity fields from liquidity and
// borrow totals.
func (p *LoanPosition) syncCapacity() {
	p.AvailableBorrow = subFloorZero(p.Liquidity, p.TotalBorrowed)
	p.UtilisationBps = utilisationBps(p.TotalBorrowed, p.Liquidity)
}

// DepositSlot is a lender's receipt against one pool. Slots are never
// deleted; a fully withdrawn slot is marked inactive and a later deposit
// opens a fresh one.
type DepositSlot struct {
	ID     string         `json:"id"`
	PoolID string         `json:"poolId"`
	Lender crypto.Address `json:"lender"`

	// AccumulatedDeposits is running principal net of withdrawals.
	AccumulatedDeposits *big.Int `json:"accumulatedDeposits"`
	// Share is this lender's claim on pool liquidity.
	Share *big.Int `json:"share"`
	// FeeGrowthDebtA/B snapshot the pool accumulators at last settlement.
	FeeGrowthDebtA *big.Int `json:"feeGrowthDebtA"`
	FeeGrowthDebtB *big.Int `json:"feeGrowthDebtB"`

	Active       bool  `json:"active"`
	CreatedAt    int64 `json:"createdAt"`
	LastDeposit  int64 `json:"lastDeposit"`
	LastWithdraw int64 `json:"lastWithdraw"`
}

// EnsureDefaults populates nil big.Int fields after decoding.
func (s *DepositSlot) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.AccumulatedDeposits == nil {
		s.AccumulatedDeposits = big.NewInt(0)
	}
	if s.Share == nil {
		s.Share = big.NewInt(0)
	}
	if s.FeeGrowthDebtA == nil {
		s.FeeGrowthDebtA = big.NewInt(0)
	}
	if s.FeeGrowthDebtB == nil {
		s.FeeGrowthDebtB = big.NewInt(0)
	}
}

// Clone returns a deep copy of the deposit slot.
func (s *DepositSlot) Clone() *DepositSlot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.AccumulatedDeposits = cloneBigInt(s.AccumulatedDeposits)
	clone.Share = cloneBigInt(s.Share)
	clone.FeeGrowthDebtA = cloneBigInt(s.FeeGrowthDebtA)
	clone.FeeGrowthDebtB = cloneBigInt(s.FeeGrowthDebtB)
	return &clone
}

// LoanSlot is a borrower's receipt for one borrow event.
type LoanSlot struct {
	ID       string         `json:"id"`
	PoolID   string         `json:"poolId"`
	Borrower crypto.Address `json:"borrower"`

	// Principal is the remaining owed amount in origination-time units;
	// OriginalPrincipal stays fixed and anchors debt-index scaling.
	Principal         *big.Int `json:"principal"`
	OriginalPrincipal *big.Int `json:"originalPrincipal"`
	// Share is the proportional slice of pool liquidity this borrow
	// consumed, used for yield sharing.
	Share *big.Int `json:"share"`
	// Reserve is the interest prepaid at origination; released
	// proportionally as principal is repaid.
	Reserve *big.Int `json:"reserve"`
	// DebtIndexAtBorrow snapshots the pool index at origination.
	DebtIndexAtBorrow *big.Int `json:"debtIndexAtBorrow"`

	FeeGrowthDebtA *big.Int `json:"feeGrowthDebtA"`
	FeeGrowthDebtB *big.Int `json:"feeGrowthDebtB"`

	Active       bool  `json:"active"`
	CreatedAt    int64 `json:"createdAt"`
	LastPayment  int64 `json:"lastPayment"`
	ArrearsStart int64 `json:"arrearsStart,omitempty"`
}

// EnsureDefaults populates nil big.Int fields after decoding.
func (s *LoanSlot) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.Principal == nil {
		s.Principal = big.NewInt(0)
	}
	if s.OriginalPrincipal == nil {
		s.OriginalPrincipal = big.NewInt(0)
	}
	if s.Share == nil {
		s.Share = big.NewInt(0)
	}
	if s.Reserve == nil {
		s.Reserve = big.NewInt(0)
	}
	if s.DebtIndexAtBorrow == nil || s.DebtIndexAtBorrow.Sign() == 0 {
		s.DebtIndexAtBorrow = new(big.Int).Set(precision)
	}
	if s.FeeGrowthDebtA == nil {
		s.FeeGrowthDebtA = big.NewInt(0)
	}
	if s.FeeGrowthDebtB == nil {
		s.FeeGrowthDebtB = big.NewInt(0)
	}
}

// Clone returns a deep copy of the loan slot.
func (s *LoanSlot) Clone() *LoanSlot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Principal = cloneBigInt(s.Principal)
	clone.OriginalPrincipal = cloneBigInt(s.OriginalPrincipal)
	clone.Share = cloneBigInt(s.Share)
	clone.Reserve = cloneBigInt(s.Reserve)
	clone.DebtIndexAtBorrow = cloneBigInt(s.DebtIndexAtBorrow)
	clone.FeeGrowthDebtA = cloneBigInt(s.FeeGrowthDebtA)
	clone.FeeGrowthDebtB = cloneBigInt(s.FeeGrowthDebtB)
	return &clone
}
