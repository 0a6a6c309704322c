package lending

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lendfi/core/events"
	"lendfi/crypto"
	nativecommon "lendfi/native/common"
	"lendfi/native/venue"
)

type engineState interface {
	GetPool(id string) (*LoanPosition, error)
	PutPool(pool *LoanPosition) error
	GetDepositSlot(id string) (*DepositSlot, error)
	PutDepositSlot(slot *DepositSlot) error
	ActiveDepositSlot(poolID string, lender crypto.Address) (*DepositSlot, error)
	GetLoanSlot(id string) (*LoanSlot, error)
	PutLoanSlot(slot *LoanSlot) error
}

// Ledger is the fungible-asset collaborator the engine settles against. The
// engine never implements token logic itself; venue payouts enter pool
// custody through Mint because the venue's balance sheet is external to this
// ledger.
type Ledger interface {
	Mint(to crypto.Address, token string, amount *big.Int) error
	Burn(from crypto.Address, token string, amount *big.Int) error
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
	Balance(addr crypto.Address, token string) (*big.Int, error)
}

// PoolSpec carries the construction arguments for a new loan position.
type PoolSpec struct {
	TokenA     string
	TokenB     string
	TokenFee   string
	FeeTierBps uint64
	TickLower  int32
	TickUpper  int32
	Model      InterestModel
}

// DepositReceipt reports the outcome of a liquidity deposit.
type DepositReceipt struct {
	Pool    *LoanPosition
	Slot    *DepositSlot
	Amounts venue.Amounts
	Result  *DepositResult
}

// BorrowReceipt reports the outcome of a borrow.
type BorrowReceipt struct {
	Pool *LoanPosition
	Slot *LoanSlot
}

// YieldReceipt reports the amounts paid out by a yield claim.
type YieldReceipt struct {
	Pool    *LoanPosition
	SlotID  string
	AmountA *big.Int
	AmountB *big.Int
	Rewards []venue.Reward
}

// RepayReceipt reports a repayment (optionally preceded by a yield claim).
type RepayReceipt struct {
	Pool   *LoanPosition
	Slot   *LoanSlot
	Result *LoanWithdrawResult
	Yield  *YieldReceipt
}

// WithdrawReceipt reports a lender withdrawal.
type WithdrawReceipt struct {
	Pool    *LoanPosition
	Slot    *DepositSlot
	Result  *WithdrawResult
	AmountA *big.Int
	AmountB *big.Int
}

// Engine orchestrates the primary state transitions for the lending module.
// Every operation runs load-mutate-persist against cloned records, so a
// failed precondition leaves no partial state behind.
type Engine struct {
	state   engineState
	ledger  Ledger
	venue   venue.Venue
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine creates a lending engine with a no-op emitter. Callers wire the
// state, ledger and venue collaborators before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the fungible-asset ledger collaborator.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetVenue wires the external liquidity venue collaborator.
func (e *Engine) SetVenue(v venue.Venue) { e.venue = v }

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireWired() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.ledger == nil:
		return errNilLedger
	case e.venue == nil:
		return errNilVenue
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) ensurePool(id string) (*LoanPosition, error) {
	pool, err := e.state.GetPool(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNotFound
	}
	pool = pool.Clone()
	pool.EnsureDefaults()
	return pool, nil
}

// CreatePool validates the rate curve parameters, opens the venue position
// and registers a fresh pool with its debt index at 1.0.
func (e *Engine) CreatePool(creator crypto.Address, spec PoolSpec) (*LoanPosition, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	tokenA := strings.ToUpper(strings.TrimSpace(spec.TokenA))
	tokenB := strings.ToUpper(strings.TrimSpace(spec.TokenB))
	tokenFee := strings.ToUpper(strings.TrimSpace(spec.TokenFee))
	if tokenA == "" || tokenB == "" || tokenA == tokenB {
		return nil, ErrInvalidParameters
	}
	if tokenFee != tokenA && tokenFee != tokenB {
		return nil, ErrInvalidParameters
	}
	if err := spec.Model.Validate(); err != nil {
		return nil, err
	}

	handle, err := e.venue.OpenPosition(tokenA, tokenB, spec.FeeTierBps, spec.TickLower, spec.TickUpper)
	if err != nil {
		return nil, err
	}

	now := e.now()
	id := poolID(creator, tokenA, tokenB, handle.ID)
	pool := &LoanPosition{
		ID:               id,
		Creator:          creator,
		Custody:          crypto.DeriveAddress(crypto.PoolPrefix, []byte(id)),
		Venue:            handle,
		TokenA:           tokenA,
		TokenB:           tokenB,
		TokenFee:         tokenFee,
		Liquidity:        big.NewInt(0),
		TotalShare:       big.NewInt(0),
		CurrentDebtIndex: new(big.Int).Set(precision),
		AvailableBorrow:  big.NewInt(0),
		TotalBorrowed:    big.NewInt(0),
		FeeGrowthGlobalA: big.NewInt(0),
		FeeGrowthGlobalB: big.NewInt(0),
		Model:            spec.Model,
		Active:           true,
		CreatedAt:        now,
		LastUpdate:       now,
		LastAccrual:      now,
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newPoolCreatedEvent(pool))
	return pool.Clone(), nil
}

// DepositLiquidity quotes the optimal amounts on the venue, moves the tokens
// into pool custody, deploys them and mints shares into the lender's active
// slot (opening one on first deposit). The fee-growth checkpoint syncs to the
// current globals so the new deposit cannot retroactively claim past fees.
func (e *Engine) DepositLiquidity(lender crypto.Address, poolIDArg string, desiredA, desiredB, minA, minB *big.Int, deadline int64) (*DepositReceipt, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrNotActive
	}
	if _, err := e.accrue(pool); err != nil {
		return nil, err
	}

	amounts, err := e.venue.OptimalLiquidityAmounts(pool.Venue, desiredA, desiredB, minA, minB)
	if err != nil {
		return nil, err
	}
	if amounts.Liquidity == nil || amounts.Liquidity.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := e.ledger.Transfer(lender, pool.Custody, pool.TokenA, amounts.AmountA); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(lender, pool.Custody, pool.TokenB, amounts.AmountB); err != nil {
		return nil, err
	}
	return e.settleDeposit(pool, lender, amounts, minA, minB, deadline)
}

// DepositLiquiditySingle deposits a single pool asset: half of the tendered
// amount is swapped into the other leg at the venue's current price, then both
// legs are deployed like a two-sided deposit. Any residual the quote leaves
// unconsumed returns to the lender. Requires a seeded pool; the venue cannot
// price a swap against empty reserves.
func (e *Engine) DepositLiquiditySingle(lender crypto.Address, poolIDArg, tokenIn string, amountIn, minSwapOut *big.Int, deadline int64) (*DepositReceipt, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrNotActive
	}
	if _, err := e.accrue(pool); err != nil {
		return nil, err
	}
	// Two units minimum: one for each leg.
	if amountIn == nil || amountIn.Cmp(big.NewInt(2)) < 0 {
		return nil, ErrInvalidAmount
	}
	tokenIn = strings.ToUpper(strings.TrimSpace(tokenIn))
	var tokenOut string
	switch tokenIn {
	case pool.TokenA:
		tokenOut = pool.TokenB
	case pool.TokenB:
		tokenOut = pool.TokenA
	default:
		return nil, ErrInvalidParameters
	}

	// The swap executes before any ledger movement, so a price, slippage or
	// deadline failure leaves the lender's funds untouched.
	bal, err := e.ledger.Balance(lender, tokenIn)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(amountIn) < 0 {
		return nil, ErrInsufficientBalance
	}
	half := new(big.Int).Rsh(amountIn, 1)
	swapped, err := e.venue.Swap(pool.Venue, tokenIn, half, minSwapOut, deadline)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(lender, pool.Custody, tokenIn, amountIn); err != nil {
		return nil, err
	}
	// The swapped half leaves the ledger for the venue; the proceeds come
	// back from it.
	if err := e.ledger.Burn(pool.Custody, tokenIn, half); err != nil {
		return nil, err
	}
	if err := e.ledger.Mint(pool.Custody, tokenOut, swapped); err != nil {
		return nil, err
	}

	remainder := new(big.Int).Sub(amountIn, half)
	desiredA, desiredB := remainder, swapped
	if tokenIn == pool.TokenB {
		desiredA, desiredB = swapped, remainder
	}
	amounts, err := e.venue.OptimalLiquidityAmounts(pool.Venue, desiredA, desiredB, nil, nil)
	if err != nil {
		return nil, err
	}
	if amounts.Liquidity == nil || amounts.Liquidity.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if residual := new(big.Int).Sub(desiredA, amounts.AmountA); residual.Sign() > 0 {
		if err := e.ledger.Transfer(pool.Custody, lender, pool.TokenA, residual); err != nil {
			return nil, err
		}
	}
	if residual := new(big.Int).Sub(desiredB, amounts.AmountB); residual.Sign() > 0 {
		if err := e.ledger.Transfer(pool.Custody, lender, pool.TokenB, residual); err != nil {
			return nil, err
		}
	}
	return e.settleDeposit(pool, lender, amounts, nil, nil, deadline)
}

// settleDeposit deploys quoted amounts already held in custody and mints
// shares into the lender's active slot.
func (e *Engine) settleDeposit(pool *LoanPosition, lender crypto.Address, amounts venue.Amounts, minA, minB *big.Int, deadline int64) (*DepositReceipt, error) {
	now := e.now()
	slot, err := e.state.ActiveDepositSlot(pool.ID, lender)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		slot = newDepositSlot(pool.ID, lender, now)
	} else {
		slot = slot.Clone()
		slot.EnsureDefaults()
	}

	result, err := slot.Deposit(amounts.Liquidity, pool.Liquidity, pool.TotalShare, now)
	if err != nil {
		return nil, err
	}
	if err := e.venue.AddLiquidity(pool.Venue, amounts.AmountA, amounts.AmountB, minA, minB, deadline); err != nil {
		return nil, err
	}

	slot.FeeGrowthDebtA = cloneBigInt(pool.FeeGrowthGlobalA)
	slot.FeeGrowthDebtB = cloneBigInt(pool.FeeGrowthGlobalB)

	pool.Liquidity = new(big.Int).Add(pool.Liquidity, amounts.Liquidity)
	pool.TotalShare = new(big.Int).Add(pool.TotalShare, result.MintedShares)
	pool.syncCapacity()
	pool.LastUpdate = now

	if err := e.state.PutDepositSlot(slot); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newDepositEvent(pool, slot, amounts, result))
	return &DepositReceipt{Pool: pool.Clone(), Slot: slot.Clone(), Amounts: amounts, Result: result}, nil
}

// BorrowLiquidity reserves pool capacity for the borrower. The interest
// prepayment is priced off the utilisation current at origination and moves
// into pool custody before any state changes persist.
func (e *Engine) BorrowLiquidity(borrower crypto.Address, poolIDArg, tokenFee string, amount *big.Int, durationIdx uint8) (*BorrowReceipt, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if int(durationIdx) >= DurationCount() {
		return nil, ErrInvalidParameters
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrNotActive
	}
	if !strings.EqualFold(strings.TrimSpace(tokenFee), pool.TokenFee) {
		return nil, ErrInvalidParameters
	}
	if amount.Cmp(pool.AvailableBorrow) > 0 {
		return nil, ErrBorrowExceedsAvailable
	}
	// Bring the index current so the slot snapshot charges no interest for
	// time before origination.
	if _, err := e.accrue(pool); err != nil {
		return nil, err
	}

	apr := pool.Model.AprBps(pool.UtilisationBps)
	reserve, err := CalculateReserve(amount, apr, durationIdx, pool.Model.RiskFactorIndex)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(borrower, pool.Custody, pool.TokenFee, reserve); err != nil {
		return nil, err
	}

	now := e.now()
	slot := &LoanSlot{
		ID:                loanSlotID(pool.ID, borrower, now, amount),
		PoolID:            pool.ID,
		Borrower:          borrower,
		Principal:         cloneBigInt(amount),
		OriginalPrincipal: cloneBigInt(amount),
		Share:             mulDiv(amount, pool.TotalShare, pool.Liquidity),
		Reserve:           reserve,
		DebtIndexAtBorrow: cloneBigInt(pool.CurrentDebtIndex),
		FeeGrowthDebtA:    cloneBigInt(pool.FeeGrowthGlobalA),
		FeeGrowthDebtB:    cloneBigInt(pool.FeeGrowthGlobalB),
		Active:            true,
		CreatedAt:         now,
		LastPayment:       now,
	}

	pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, amount)
	pool.syncCapacity()
	pool.LastUpdate = now

	if err := e.state.PutLoanSlot(slot); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newBorrowEvent(pool, slot, durationIdx))
	return &BorrowReceipt{Pool: pool.Clone(), Slot: slot.Clone()}, nil
}

// Accrue advances the pool debt index to the current time and persists the
// result. Safe to call at any cadence; with nothing borrowed it only moves
// the accrual watermark.
func (e *Engine) Accrue(poolIDArg string) (*LoanPosition, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	changed, err := e.accrue(pool)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := e.state.PutPool(pool); err != nil {
			return nil, err
		}
	}
	return pool.Clone(), nil
}

// accrue applies the simple-interest index step in place. A zero elapsed
// interval or an idle pool is a no-op; an interval beyond the one-year cap
// aborts the surrounding operation.
func (e *Engine) accrue(pool *LoanPosition) (bool, error) {
	now := e.now()
	elapsed := now - pool.LastAccrual
	if elapsed <= 0 {
		return false, nil
	}
	if pool.TotalBorrowed.Sign() == 0 {
		pool.LastAccrual = now
		return true, nil
	}
	apr := pool.Model.AprBps(pool.UtilisationBps)
	previous := cloneBigInt(pool.CurrentDebtIndex)
	updated, err := UpdatedDebtIndex(pool.CurrentDebtIndex, apr, elapsed)
	if err != nil {
		return false, err
	}
	pool.CurrentDebtIndex = updated
	pool.LastAccrual = now
	pool.LastUpdate = now
	e.emit(events.LendingDebtIndexUpdated{
		PoolID:         pool.ID,
		PreviousIndex:  previous,
		NewIndex:       cloneBigInt(updated),
		AprBps:         apr,
		UtilisationBps: pool.UtilisationBps,
		ElapsedSeconds: elapsed,
	})
	return true, nil
}

type yieldClaim struct {
	share     *big.Int
	amountA   *big.Int
	amountB   *big.Int
	rewards   []venue.Reward
	rewardSum *big.Int
}

// claimYield pulls the pool's pending fees and rewards from the venue in one
// lump, credits them to custody and advances the global fee-growth
// accumulators by the lump's per-share value. The claimant is paid their full
// checkpoint entitlement: the new lump's slice plus anything earlier claims
// left in custody for them. Rewards carry no accumulator and split the lump
// proportionally.
func (e *Engine) claimYield(pool *LoanPosition, share, debtA, debtB *big.Int, claimant crypto.Address) (*yieldClaim, error) {
	if share == nil || share.Sign() <= 0 || share.Cmp(pool.TotalShare) > 0 {
		return nil, ErrInsufficientShare
	}
	feeA, feeB, err := e.venue.ClaimFees(pool.Venue)
	if err != nil {
		return nil, err
	}
	rewards, err := e.venue.ClaimRewards(pool.Venue)
	if err != nil {
		return nil, err
	}

	if feeA != nil && feeA.Sign() > 0 {
		if err := e.ledger.Mint(pool.Custody, pool.TokenA, feeA); err != nil {
			return nil, err
		}
	}
	if feeB != nil && feeB.Sign() > 0 {
		if err := e.ledger.Mint(pool.Custody, pool.TokenB, feeB); err != nil {
			return nil, err
		}
	}
	for _, r := range rewards {
		if err := e.ledger.Mint(pool.Custody, r.Token, r.Amount); err != nil {
			return nil, err
		}
	}

	pool.FeeGrowthGlobalA = new(big.Int).Add(pool.FeeGrowthGlobalA, feeGrowthDelta(feeA, pool.TotalShare))
	pool.FeeGrowthGlobalB = new(big.Int).Add(pool.FeeGrowthGlobalB, feeGrowthDelta(feeB, pool.TotalShare))

	claim := &yieldClaim{
		share:     cloneBigInt(share),
		amountA:   pendingYield(share, pool.FeeGrowthGlobalA, debtA),
		amountB:   pendingYield(share, pool.FeeGrowthGlobalB, debtB),
		rewardSum: big.NewInt(0),
	}
	if claim.amountA.Sign() > 0 {
		if err := e.ledger.Transfer(pool.Custody, claimant, pool.TokenA, claim.amountA); err != nil {
			return nil, err
		}
	}
	if claim.amountB.Sign() > 0 {
		if err := e.ledger.Transfer(pool.Custody, claimant, pool.TokenB, claim.amountB); err != nil {
			return nil, err
		}
	}
	yieldAmount := mulDiv(share, pool.Liquidity, pool.TotalShare)
	for _, r := range rewards {
		slice := mulDiv(r.Amount, yieldAmount, pool.Liquidity)
		if slice.Sign() == 0 {
			continue
		}
		if err := e.ledger.Transfer(pool.Custody, claimant, r.Token, slice); err != nil {
			return nil, err
		}
		claim.rewards = append(claim.rewards, venue.Reward{Token: r.Token, Amount: slice})
		claim.rewardSum.Add(claim.rewardSum, slice)
	}
	return claim, nil
}

// ClaimDepositYield accrues interest, then settles the lender's share of the
// venue's pending fees and rewards.
func (e *Engine) ClaimDepositYield(lender crypto.Address, poolIDArg string) (*YieldReceipt, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	slot, err := e.state.ActiveDepositSlot(pool.ID, lender)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	slot = slot.Clone()
	slot.EnsureDefaults()

	if _, err := e.accrue(pool); err != nil {
		return nil, err
	}
	claim, err := e.claimYield(pool, slot.Share, slot.FeeGrowthDebtA, slot.FeeGrowthDebtB, lender)
	if err != nil {
		return nil, err
	}
	slot.FeeGrowthDebtA = cloneBigInt(pool.FeeGrowthGlobalA)
	slot.FeeGrowthDebtB = cloneBigInt(pool.FeeGrowthGlobalB)

	if err := e.state.PutDepositSlot(slot); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newYieldClaimedEvent(pool, lender, slot.ID, claim))
	return &YieldReceipt{Pool: pool.Clone(), SlotID: slot.ID, AmountA: claim.amountA, AmountB: claim.amountB, Rewards: claim.rewards}, nil
}

// RepayLoan accrues interest, applies the payment against the slot and
// releases the matching slice of the prepaid reserve. The full tendered
// amount moves into custody; overpayment beyond the outstanding debt is
// absorbed by the pool rather than refunded.
func (e *Engine) RepayLoan(borrower crypto.Address, slotID string, amount *big.Int) (*RepayReceipt, error) {
	return e.repayLoan(borrower, slotID, amount, false)
}

// ClaimLoanYieldAndRepay settles the borrower's yield share before applying
// the repayment, in one atomic operation.
func (e *Engine) ClaimLoanYieldAndRepay(borrower crypto.Address, slotID string, amount *big.Int) (*RepayReceipt, error) {
	return e.repayLoan(borrower, slotID, amount, true)
}

func (e *Engine) repayLoan(borrower crypto.Address, slotID string, amount *big.Int, withYield bool) (*RepayReceipt, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	slot, err := e.state.GetLoanSlot(strings.TrimSpace(slotID))
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	if !slot.Borrower.Equal(borrower) {
		return nil, ErrUnauthorized
	}
	slot = slot.Clone()
	slot.EnsureDefaults()

	pool, err := e.ensurePool(slot.PoolID)
	if err != nil {
		return nil, err
	}
	if _, err := e.accrue(pool); err != nil {
		return nil, err
	}

	receipt := &RepayReceipt{}
	if withYield {
		claim, err := e.claimYield(pool, slot.Share, slot.FeeGrowthDebtA, slot.FeeGrowthDebtB, borrower)
		if err != nil {
			return nil, err
		}
		slot.FeeGrowthDebtA = cloneBigInt(pool.FeeGrowthGlobalA)
		slot.FeeGrowthDebtB = cloneBigInt(pool.FeeGrowthGlobalB)
		e.emit(newYieldClaimedEvent(pool, borrower, slot.ID, claim))
		receipt.Yield = &YieldReceipt{SlotID: slot.ID, AmountA: claim.amountA, AmountB: claim.amountB, Rewards: claim.rewards}
	}

	now := e.now()
	result, err := slot.WithdrawAgainstRepayment(pool.CurrentDebtIndex, amount, now)
	if err != nil {
		return nil, err
	}
	if result.AmountApplied.Sign() > 0 {
		if err := e.ledger.Transfer(borrower, pool.Custody, pool.TokenFee, amount); err != nil {
			return nil, err
		}
	}
	if result.ReserveReleased.Sign() > 0 {
		if err := e.ledger.Transfer(pool.Custody, borrower, pool.TokenFee, result.ReserveReleased); err != nil {
			return nil, err
		}
	}

	pool.TotalBorrowed = subFloorZero(pool.TotalBorrowed, result.PrincipalPortion)
	pool.syncCapacity()
	pool.LastUpdate = now

	if err := e.state.PutLoanSlot(slot); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newLoanRepaidEvent(pool, slot, result))
	receipt.Pool = pool.Clone()
	receipt.Slot = slot.Clone()
	receipt.Result = result
	return receipt, nil
}

// WithdrawLiquidity burns shares from the lender's slot, pulls the backing
// amounts out of the venue and returns them from custody. Withdrawals are
// limited to the pool's free liquidity; lent-out capacity stays deployed
// until borrowers repay.
func (e *Engine) WithdrawLiquidity(lender crypto.Address, poolIDArg string, amount, minA, minB *big.Int, deadline int64) (*WithdrawReceipt, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(pool.AvailableBorrow) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	slot, err := e.state.ActiveDepositSlot(pool.ID, lender)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	slot = slot.Clone()
	slot.EnsureDefaults()

	now := e.now()
	result, err := slot.Withdraw(amount, pool.Liquidity, pool.TotalShare, now)
	if err != nil {
		return nil, err
	}
	amountA, amountB, err := e.venue.RemoveLiquidity(pool.Venue, result.WithdrawalValue, minA, minB, lender, deadline)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(pool.Custody, lender, pool.TokenA, amountA); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(pool.Custody, lender, pool.TokenB, amountB); err != nil {
		return nil, err
	}

	pool.Liquidity = subFloorZero(pool.Liquidity, result.WithdrawalValue)
	pool.TotalShare = subFloorZero(pool.TotalShare, result.BurnedShares)
	pool.syncCapacity()
	pool.LastUpdate = now

	if err := e.state.PutDepositSlot(slot); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newWithdrawEvent(pool, slot, result))
	return &WithdrawReceipt{Pool: pool.Clone(), Slot: slot.Clone(), Result: result, AmountA: amountA, AmountB: amountB}, nil
}

// DeactivatePool closes a pool to further deposits and borrows. Only the
// creator may deactivate; existing slots keep settling.
func (e *Engine) DeactivatePool(caller crypto.Address, poolIDArg string) (*LoanPosition, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	if !pool.Creator.Equal(caller) {
		return nil, ErrUnauthorized
	}
	if !pool.Active {
		return nil, ErrNotActive
	}
	pool.Active = false
	pool.LastUpdate = e.now()
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newPoolDeactivatedEvent(pool, caller))
	return pool.Clone(), nil
}

// Pool returns a copy of the stored pool record.
func (e *Engine) Pool(id string) (*LoanPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.ensurePool(id)
}

// YieldPreview reports a lender's unclaimed fee entitlement.
type YieldPreview struct {
	SlotID  string
	AmountA *big.Int
	AmountB *big.Int
}

// PendingDepositYield reports what a claim would pay the lender from the
// pool's fee-growth accumulators as they stand. Fees still sitting on the
// venue are not included until a claim realises them into custody.
func (e *Engine) PendingDepositYield(poolIDArg string, lender crypto.Address) (*YieldPreview, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.ensurePool(poolIDArg)
	if err != nil {
		return nil, err
	}
	slot, err := e.state.ActiveDepositSlot(pool.ID, lender)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	slot = slot.Clone()
	slot.EnsureDefaults()
	return &YieldPreview{
		SlotID:  slot.ID,
		AmountA: pendingYield(slot.Share, pool.FeeGrowthGlobalA, slot.FeeGrowthDebtA),
		AmountB: pendingYield(slot.Share, pool.FeeGrowthGlobalB, slot.FeeGrowthDebtB),
	}, nil
}

// DepositSlotFor returns a copy of the lender's active slot in the pool.
func (e *Engine) DepositSlotFor(poolIDArg string, lender crypto.Address) (*DepositSlot, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	slot, err := e.state.ActiveDepositSlot(strings.TrimSpace(poolIDArg), lender)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	slot = slot.Clone()
	slot.EnsureDefaults()
	return slot, nil
}

// LoanSlotByID returns a copy of the stored loan slot.
func (e *Engine) LoanSlotByID(id string) (*LoanSlot, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	slot, err := e.state.GetLoanSlot(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrNotFound
	}
	slot = slot.Clone()
	slot.EnsureDefaults()
	return slot, nil
}

func newDepositSlot(poolID string, lender crypto.Address, now int64) *DepositSlot {
	return &DepositSlot{
		ID:                  depositSlotID(poolID, lender, now),
		PoolID:              poolID,
		Lender:              lender,
		AccumulatedDeposits: big.NewInt(0),
		Share:               big.NewInt(0),
		FeeGrowthDebtA:      big.NewInt(0),
		FeeGrowthDebtB:      big.NewInt(0),
		Active:              true,
		CreatedAt:           now,
	}
}

func poolID(creator crypto.Address, tokenA, tokenB, handleID string) string {
	digest := ethcrypto.Keccak256(creator.Bytes(), []byte(tokenA), []byte(tokenB), []byte(handleID))
	return "pool-" + hex.EncodeToString(digest[:8])
}

func depositSlotID(poolID string, lender crypto.Address, now int64) string {
	digest := ethcrypto.Keccak256([]byte(poolID), lender.Bytes(), timestampBytes(now))
	return "dslot-" + hex.EncodeToString(digest[:8])
}

func loanSlotID(poolID string, borrower crypto.Address, now int64, amount *big.Int) string {
	digest := ethcrypto.Keccak256([]byte(poolID), borrower.Bytes(), timestampBytes(now), amount.Bytes())
	return "lslot-" + hex.EncodeToString(digest[:8])
}

func timestampBytes(ts int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	return buf[:]
}
