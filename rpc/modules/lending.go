package modules

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"lendfi/crypto"
	nativecommon "lendfi/native/common"
	"lendfi/native/lending"
	"lendfi/native/venue"
	"lendfi/observability/metrics"
	"lendfi/storage"
)

// LendingModule adapts the lending engine for the HTTP surface: it parses
// addresses, maps engine errors onto transport statuses and keeps the
// Prometheus gauges current.
type LendingModule struct {
	engine       *lending.Engine
	metrics      *metrics.LendingMetrics
	defaultModel lending.InterestModel
}

func NewLendingModule(engine *lending.Engine) *LendingModule {
	return &LendingModule{engine: engine, metrics: metrics.Lending()}
}

// SetDefaultModel configures the rate curve applied when a pool creation
// request omits its own.
func (m *LendingModule) SetDefaultModel(model lending.InterestModel) {
	if m == nil {
		return
	}
	m.defaultModel = model
}

func (m *LendingModule) moduleUnavailable() *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "lending module not available"}
}

// CreatePool opens a new pool on behalf of the creator address.
func (m *LendingModule) CreatePool(creator string, spec lending.PoolSpec) (*lending.LoanPosition, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(creator, "creator")
	if merr != nil {
		return nil, merr
	}
	if spec.Model == (lending.InterestModel{}) {
		spec.Model = m.defaultModel
	}
	pool, err := m.engine.CreatePool(addr, spec)
	m.metrics.ObserveOperation("create_pool", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(pool)
	return pool, nil
}

// GetPool returns the stored pool record.
func (m *LendingModule) GetPool(id string) (*lending.LoanPosition, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	pool, err := m.engine.Pool(id)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return pool, nil
}

// Deposit adds liquidity for the lender.
func (m *LendingModule) Deposit(lender, poolID string, desiredA, desiredB, minA, minB *big.Int, deadline int64) (*lending.DepositReceipt, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(lender, "lender")
	if merr != nil {
		return nil, merr
	}
	receipt, err := m.engine.DepositLiquidity(addr, poolID, desiredA, desiredB, minA, minB, deadline)
	m.metrics.ObserveOperation("deposit", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(receipt.Pool)
	return receipt, nil
}

// DepositSingle adds liquidity from one pool asset, swapping half of it into
// the other leg on the venue.
func (m *LendingModule) DepositSingle(lender, poolID, tokenIn string, amountIn, minSwapOut *big.Int, deadline int64) (*lending.DepositReceipt, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(lender, "lender")
	if merr != nil {
		return nil, merr
	}
	receipt, err := m.engine.DepositLiquiditySingle(addr, poolID, tokenIn, amountIn, minSwapOut, deadline)
	m.metrics.ObserveOperation("deposit_single", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(receipt.Pool)
	return receipt, nil
}

// PendingYield reports the lender's unclaimed entitlement without mutating
// anything.
func (m *LendingModule) PendingYield(lender, poolID string) (*lending.YieldPreview, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(lender, "lender")
	if merr != nil {
		return nil, merr
	}
	view, err := m.engine.PendingDepositYield(poolID, addr)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return view, nil
}

// Borrow reserves pool capacity for the borrower.
func (m *LendingModule) Borrow(borrower, poolID, tokenFee string, amount *big.Int, durationIdx uint8) (*lending.BorrowReceipt, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(borrower, "borrower")
	if merr != nil {
		return nil, merr
	}
	receipt, err := m.engine.BorrowLiquidity(addr, poolID, tokenFee, amount, durationIdx)
	m.metrics.ObserveOperation("borrow", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(receipt.Pool)
	return receipt, nil
}

// Repay settles a borrower payment, claiming pending yield first.
func (m *LendingModule) Repay(borrower, slotID string, amount *big.Int) (*lending.RepayReceipt, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(borrower, "borrower")
	if merr != nil {
		return nil, merr
	}
	receipt, err := m.engine.ClaimLoanYieldAndRepay(addr, slotID, amount)
	m.metrics.ObserveOperation("repay", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(receipt.Pool)
	return receipt, nil
}

// ClaimYield settles the lender's share of pending fees and rewards.
func (m *LendingModule) ClaimYield(lender, poolID string) (*lending.YieldReceipt, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(lender, "lender")
	if merr != nil {
		return nil, merr
	}
	receipt, err := m.engine.ClaimDepositYield(addr, poolID)
	m.metrics.ObserveOperation("claim_yield", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(receipt.Pool)
	return receipt, nil
}

// Withdraw removes free liquidity for the lender.
func (m *LendingModule) Withdraw(lender, poolID string, amount, minA, minB *big.Int, deadline int64) (*lending.WithdrawReceipt, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(lender, "lender")
	if merr != nil {
		return nil, merr
	}
	receipt, err := m.engine.WithdrawLiquidity(addr, poolID, amount, minA, minB, deadline)
	m.metrics.ObserveOperation("withdraw", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(receipt.Pool)
	return receipt, nil
}

// Accrue advances the pool's debt index.
func (m *LendingModule) Accrue(poolID string) (*lending.LoanPosition, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	pool, err := m.engine.Accrue(poolID)
	m.metrics.ObserveOperation("accrue", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(pool)
	return pool, nil
}

// Deactivate closes the pool to new flow; creator only.
func (m *LendingModule) Deactivate(caller, poolID string) (*lending.LoanPosition, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	addr, merr := parseAddress(caller, "caller")
	if merr != nil {
		return nil, merr
	}
	pool, err := m.engine.DeactivatePool(addr, poolID)
	m.metrics.ObserveOperation("deactivate", err)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.updateGauges(pool)
	return pool, nil
}

func (m *LendingModule) updateGauges(pool *lending.LoanPosition) {
	if pool == nil {
		return
	}
	idx, _ := new(big.Float).SetInt(pool.CurrentDebtIndex).Float64()
	liquidity, _ := new(big.Float).SetInt(pool.Liquidity).Float64()
	borrowed, _ := new(big.Float).SetInt(pool.TotalBorrowed).Float64()
	m.metrics.SetPoolGauges(pool.ID, pool.UtilisationBps, idx, liquidity, borrowed)
}

func (m *LendingModule) wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	code := codeServerError
	switch {
	case errors.Is(err, lending.ErrNotFound):
		status = http.StatusNotFound
		code = codeInvalidParams
	case errors.Is(err, lending.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeInvalidParams
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrInsufficientFunds),
		errors.Is(err, venue.ErrSlippage),
		errors.Is(err, venue.ErrDeadlineExpired),
		errors.Is(err, venue.ErrInvalidPair),
		errors.Is(err, venue.ErrInsufficientLiquidity),
		strings.HasPrefix(err.Error(), "lending engine:"):
		status = http.StatusBadRequest
		code = codeInvalidParams
	}
	return &ModuleError{HTTPStatus: status, Code: code, Message: err.Error()}
}

func parseAddress(raw, field string) (crypto.Address, *ModuleError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, &ModuleError{
			HTTPStatus: http.StatusBadRequest,
			Code:       codeInvalidParams,
			Message:    field + ": invalid address",
		}
	}
	return addr, nil
}
