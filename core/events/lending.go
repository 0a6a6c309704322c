package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"lendfi/core/types"
)

const (
	// TypeLendingPoolCreated marks the creation of a new loan position pool.
	TypeLendingPoolCreated = "lending.pool.created"
	// TypeLendingLiquidityDeposited records a lender deposit into a pool.
	TypeLendingLiquidityDeposited = "lending.liquidity.deposited"
	// TypeLendingLiquidityWithdrawn records a lender withdrawal from a pool.
	TypeLendingLiquidityWithdrawn = "lending.liquidity.withdrawn"
	// TypeLendingLiquidityBorrowed records a borrow against pool liquidity.
	TypeLendingLiquidityBorrowed = "lending.liquidity.borrowed"
	// TypeLendingDebtIndexUpdated records an interest accrual step.
	TypeLendingDebtIndexUpdated = "lending.debtindex.updated"
	// TypeLendingYieldClaimed records a fee/reward claim by a slot holder.
	TypeLendingYieldClaimed = "lending.yield.claimed"
	// TypeLendingLoanRepaid records a full or partial loan repayment.
	TypeLendingLoanRepaid = "lending.loan.repaid"
	// TypeLendingPoolDeactivated marks a pool closed to new flow.
	TypeLendingPoolDeactivated = "lending.pool.deactivated"
)

// LendingPoolCreated is emitted when a loan position opens on the venue.
type LendingPoolCreated struct {
	PoolID        string
	Creator       [20]byte
	TokenA        string
	TokenB        string
	TokenFee      string
	FeeTierBps    uint64
	KinkBps       uint64
	RiskFactorIdx uint8
}

// EventType satisfies the events.Event interface.
func (LendingPoolCreated) EventType() string { return TypeLendingPoolCreated }

// Event converts the structured payload into a broadcastable event.
func (e LendingPoolCreated) Event() *types.Event {
	attrs := map[string]string{
		"poolId":        e.PoolID,
		"feeTierBps":    strconv.FormatUint(e.FeeTierBps, 10),
		"kinkBps":       strconv.FormatUint(e.KinkBps, 10),
		"riskFactorIdx": strconv.FormatUint(uint64(e.RiskFactorIdx), 10),
	}
	if !zeroBytes(e.Creator[:]) {
		attrs["creator"] = hex.EncodeToString(e.Creator[:])
	}
	putToken(attrs, "tokenA", e.TokenA)
	putToken(attrs, "tokenB", e.TokenB)
	putToken(attrs, "tokenFee", e.TokenFee)
	return &types.Event{Type: TypeLendingPoolCreated, Attributes: attrs}
}

// LendingLiquidityDeposited carries the pool totals after a deposit together
// with the lender's resulting position percentage.
type LendingLiquidityDeposited struct {
	PoolID          string
	Lender          [20]byte
	SlotID          string
	Amount          *big.Int
	MintedShares    *big.Int
	TotalShares     *big.Int
	TotalLiquidity  *big.Int
	PositionPctBps  uint64
	NewDepositSlot  bool
	UtilisationBps  uint64
	AvailableBorrow *big.Int
}

// EventType satisfies the events.Event interface.
func (LendingLiquidityDeposited) EventType() string { return TypeLendingLiquidityDeposited }

// Event converts the structured payload into a broadcastable event.
func (e LendingLiquidityDeposited) Event() *types.Event {
	attrs := map[string]string{
		"poolId":         e.PoolID,
		"slotId":         e.SlotID,
		"positionPctBps": strconv.FormatUint(e.PositionPctBps, 10),
		"newSlot":        strconv.FormatBool(e.NewDepositSlot),
		"utilisationBps": strconv.FormatUint(e.UtilisationBps, 10),
	}
	if !zeroBytes(e.Lender[:]) {
		attrs["lender"] = hex.EncodeToString(e.Lender[:])
	}
	putBig(attrs, "amount", e.Amount)
	putBig(attrs, "mintedShares", e.MintedShares)
	putBig(attrs, "totalShares", e.TotalShares)
	putBig(attrs, "totalLiquidity", e.TotalLiquidity)
	putBig(attrs, "availableBorrow", e.AvailableBorrow)
	return &types.Event{Type: TypeLendingLiquidityDeposited, Attributes: attrs}
}

// LendingLiquidityWithdrawn carries the pool totals after a withdrawal.
type LendingLiquidityWithdrawn struct {
	PoolID         string
	Lender         [20]byte
	SlotID         string
	Amount         *big.Int
	BurnedShares   *big.Int
	TotalShares    *big.Int
	TotalLiquidity *big.Int
	PositionPctBps uint64
	FullyWithdrawn bool
}

// EventType satisfies the events.Event interface.
func (LendingLiquidityWithdrawn) EventType() string { return TypeLendingLiquidityWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e LendingLiquidityWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"poolId":         e.PoolID,
		"slotId":         e.SlotID,
		"positionPctBps": strconv.FormatUint(e.PositionPctBps, 10),
		"fullyWithdrawn": strconv.FormatBool(e.FullyWithdrawn),
	}
	if !zeroBytes(e.Lender[:]) {
		attrs["lender"] = hex.EncodeToString(e.Lender[:])
	}
	putBig(attrs, "amount", e.Amount)
	putBig(attrs, "burnedShares", e.BurnedShares)
	putBig(attrs, "totalShares", e.TotalShares)
	putBig(attrs, "totalLiquidity", e.TotalLiquidity)
	return &types.Event{Type: TypeLendingLiquidityWithdrawn, Attributes: attrs}
}

// LendingLiquidityBorrowed records a new loan slot and the resulting capacity.
type LendingLiquidityBorrowed struct {
	PoolID          string
	Borrower        [20]byte
	SlotID          string
	Amount          *big.Int
	Reserve         *big.Int
	DurationIdx     uint8
	UtilisationBps  uint64
	TotalBorrowed   *big.Int
	AvailableBorrow *big.Int
	DebtIndex       *big.Int
}

// EventType satisfies the events.Event interface.
func (LendingLiquidityBorrowed) EventType() string { return TypeLendingLiquidityBorrowed }

// Event converts the structured payload into a broadcastable event.
func (e LendingLiquidityBorrowed) Event() *types.Event {
	attrs := map[string]string{
		"poolId":         e.PoolID,
		"slotId":         e.SlotID,
		"durationIdx":    strconv.FormatUint(uint64(e.DurationIdx), 10),
		"utilisationBps": strconv.FormatUint(e.UtilisationBps, 10),
	}
	if !zeroBytes(e.Borrower[:]) {
		attrs["borrower"] = hex.EncodeToString(e.Borrower[:])
	}
	putBig(attrs, "amount", e.Amount)
	putBig(attrs, "reserve", e.Reserve)
	putBig(attrs, "totalBorrowed", e.TotalBorrowed)
	putBig(attrs, "availableBorrow", e.AvailableBorrow)
	putBig(attrs, "debtIndex", e.DebtIndex)
	return &types.Event{Type: TypeLendingLiquidityBorrowed, Attributes: attrs}
}

// LendingDebtIndexUpdated captures a single accrual step on the pool index.
type LendingDebtIndexUpdated struct {
	PoolID         string
	PreviousIndex  *big.Int
	NewIndex       *big.Int
	AprBps         uint64
	UtilisationBps uint64
	ElapsedSeconds int64
}

// EventType satisfies the events.Event interface.
func (LendingDebtIndexUpdated) EventType() string { return TypeLendingDebtIndexUpdated }

// Event converts the structured payload into a broadcastable event.
func (e LendingDebtIndexUpdated) Event() *types.Event {
	attrs := map[string]string{
		"poolId":         e.PoolID,
		"aprBps":         strconv.FormatUint(e.AprBps, 10),
		"utilisationBps": strconv.FormatUint(e.UtilisationBps, 10),
		"elapsedSeconds": strconv.FormatInt(e.ElapsedSeconds, 10),
	}
	putBig(attrs, "previousIndex", e.PreviousIndex)
	putBig(attrs, "newIndex", e.NewIndex)
	return &types.Event{Type: TypeLendingDebtIndexUpdated, Attributes: attrs}
}

// LendingYieldClaimed records the proportional fee/reward payout to a slot.
type LendingYieldClaimed struct {
	PoolID    string
	Claimant  [20]byte
	SlotID    string
	Share     *big.Int
	AmountA   *big.Int
	AmountB   *big.Int
	RewardSum *big.Int
}

// EventType satisfies the events.Event interface.
func (LendingYieldClaimed) EventType() string { return TypeLendingYieldClaimed }

// Event converts the structured payload into a broadcastable event.
func (e LendingYieldClaimed) Event() *types.Event {
	attrs := map[string]string{
		"poolId": e.PoolID,
		"slotId": e.SlotID,
	}
	if !zeroBytes(e.Claimant[:]) {
		attrs["claimant"] = hex.EncodeToString(e.Claimant[:])
	}
	putBig(attrs, "share", e.Share)
	putBig(attrs, "amountA", e.AmountA)
	putBig(attrs, "amountB", e.AmountB)
	putBig(attrs, "rewardSum", e.RewardSum)
	return &types.Event{Type: TypeLendingYieldClaimed, Attributes: attrs}
}

// LendingLoanRepaid records a repayment split and remaining principal.
type LendingLoanRepaid struct {
	PoolID           string
	Borrower         [20]byte
	SlotID           string
	Amount           *big.Int
	PrincipalPortion *big.Int
	InterestPortion  *big.Int
	ReserveReleased  *big.Int
	RemainingDebt    *big.Int
	LoanClosed       bool
	UtilisationBps   uint64
}

// EventType satisfies the events.Event interface.
func (LendingLoanRepaid) EventType() string { return TypeLendingLoanRepaid }

// Event converts the structured payload into a broadcastable event.
func (e LendingLoanRepaid) Event() *types.Event {
	attrs := map[string]string{
		"poolId":         e.PoolID,
		"slotId":         e.SlotID,
		"loanClosed":     strconv.FormatBool(e.LoanClosed),
		"utilisationBps": strconv.FormatUint(e.UtilisationBps, 10),
	}
	if !zeroBytes(e.Borrower[:]) {
		attrs["borrower"] = hex.EncodeToString(e.Borrower[:])
	}
	putBig(attrs, "amount", e.Amount)
	putBig(attrs, "principalPortion", e.PrincipalPortion)
	putBig(attrs, "interestPortion", e.InterestPortion)
	putBig(attrs, "reserveReleased", e.ReserveReleased)
	putBig(attrs, "remainingDebt", e.RemainingDebt)
	return &types.Event{Type: TypeLendingLoanRepaid, Attributes: attrs}
}

// LendingPoolDeactivated marks a pool closed to further deposits and borrows.
type LendingPoolDeactivated struct {
	PoolID string
	Caller [20]byte
}

// EventType satisfies the events.Event interface.
func (LendingPoolDeactivated) EventType() string { return TypeLendingPoolDeactivated }

// Event converts the structured payload into a broadcastable event.
func (e LendingPoolDeactivated) Event() *types.Event {
	attrs := map[string]string{"poolId": e.PoolID}
	if !zeroBytes(e.Caller[:]) {
		attrs["caller"] = hex.EncodeToString(e.Caller[:])
	}
	return &types.Event{Type: TypeLendingPoolDeactivated, Attributes: attrs}
}

func putBig(attrs map[string]string, key string, v *big.Int) {
	if v != nil {
		attrs[key] = v.String()
	}
}

func putToken(attrs map[string]string, key, token string) {
	if trimmed := strings.TrimSpace(token); trimmed != "" {
		attrs[key] = strings.ToUpper(trimmed)
	}
}

func zeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
