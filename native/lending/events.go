package lending

import (
	"lendfi/core/events"
	"lendfi/crypto"
	"lendfi/native/venue"
)

func addr20(a crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], a.Bytes())
	return out
}

func newPoolCreatedEvent(pool *LoanPosition) events.LendingPoolCreated {
	if pool == nil {
		return events.LendingPoolCreated{}
	}
	return events.LendingPoolCreated{
		PoolID:        pool.ID,
		Creator:       addr20(pool.Creator),
		TokenA:        pool.TokenA,
		TokenB:        pool.TokenB,
		TokenFee:      pool.TokenFee,
		FeeTierBps:    pool.Venue.FeeTierBps,
		KinkBps:       pool.Model.KinkUtilisationBps,
		RiskFactorIdx: pool.Model.RiskFactorIndex,
	}
}

func newDepositEvent(pool *LoanPosition, slot *DepositSlot, amounts venue.Amounts, res *DepositResult) events.LendingLiquidityDeposited {
	return events.LendingLiquidityDeposited{
		PoolID:          pool.ID,
		Lender:          addr20(slot.Lender),
		SlotID:          slot.ID,
		Amount:          amounts.Liquidity,
		MintedShares:    res.MintedShares,
		TotalShares:     pool.TotalShare,
		TotalLiquidity:  pool.Liquidity,
		PositionPctBps:  res.PositionPctBps,
		NewDepositSlot:  res.NewDeposit,
		UtilisationBps:  pool.UtilisationBps,
		AvailableBorrow: pool.AvailableBorrow,
	}
}

func newWithdrawEvent(pool *LoanPosition, slot *DepositSlot, res *WithdrawResult) events.LendingLiquidityWithdrawn {
	return events.LendingLiquidityWithdrawn{
		PoolID:         pool.ID,
		Lender:         addr20(slot.Lender),
		SlotID:         slot.ID,
		Amount:         res.WithdrawalValue,
		BurnedShares:   res.BurnedShares,
		TotalShares:    pool.TotalShare,
		TotalLiquidity: pool.Liquidity,
		PositionPctBps: res.PositionPctBps,
		FullyWithdrawn: res.FullyWithdrawn,
	}
}

func newBorrowEvent(pool *LoanPosition, slot *LoanSlot, durationIdx uint8) events.LendingLiquidityBorrowed {
	return events.LendingLiquidityBorrowed{
		PoolID:          pool.ID,
		Borrower:        addr20(slot.Borrower),
		SlotID:          slot.ID,
		Amount:          slot.OriginalPrincipal,
		Reserve:         slot.Reserve,
		DurationIdx:     durationIdx,
		UtilisationBps:  pool.UtilisationBps,
		TotalBorrowed:   pool.TotalBorrowed,
		AvailableBorrow: pool.AvailableBorrow,
		DebtIndex:       pool.CurrentDebtIndex,
	}
}

func newYieldClaimedEvent(pool *LoanPosition, claimant crypto.Address, slotID string, claim *yieldClaim) events.LendingYieldClaimed {
	out := events.LendingYieldClaimed{
		PoolID:   pool.ID,
		Claimant: addr20(claimant),
		SlotID:   slotID,
	}
	if claim != nil {
		out.Share = claim.share
		out.AmountA = claim.amountA
		out.AmountB = claim.amountB
		out.RewardSum = claim.rewardSum
	}
	return out
}

func newLoanRepaidEvent(pool *LoanPosition, slot *LoanSlot, res *LoanWithdrawResult) events.LendingLoanRepaid {
	return events.LendingLoanRepaid{
		PoolID:           pool.ID,
		Borrower:         addr20(slot.Borrower),
		SlotID:           slot.ID,
		Amount:           res.AmountApplied,
		PrincipalPortion: res.PrincipalPortion,
		InterestPortion:  res.InterestPortion,
		ReserveReleased:  res.ReserveReleased,
		RemainingDebt:    res.RemainingPrincipal,
		LoanClosed:       res.Closed,
		UtilisationBps:   pool.UtilisationBps,
	}
}

func newPoolDeactivatedEvent(pool *LoanPosition, caller crypto.Address) events.LendingPoolDeactivated {
	if pool == nil {
		return events.LendingPoolDeactivated{Caller: addr20(caller)}
	}
	return events.LendingPoolDeactivated{PoolID: pool.ID, Caller: addr20(caller)}
}
