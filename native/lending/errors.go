package lending

import "errors"

var (
	// ErrInvalidParameters indicates malformed pool construction arguments
	// (zero slopes, out-of-range kink or risk factor, mismatched fee token).
	ErrInvalidParameters = errors.New("lending engine: invalid parameters")
	// ErrInvalidAmount indicates a zero or negative amount argument.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrBorrowExceedsAvailable indicates the requested borrow exceeds the
	// pool's free capacity.
	ErrBorrowExceedsAvailable = errors.New("lending engine: borrow exceeds available liquidity")
	// ErrInsufficientBalance indicates a withdrawal exceeds the caller's
	// share or token balance.
	ErrInsufficientBalance = errors.New("lending engine: insufficient balance")
	// ErrInsufficientShare indicates a claim against a zero share or a share
	// larger than the pool total.
	ErrInsufficientShare = errors.New("lending engine: insufficient share")
	// ErrInsufficientLiquidity indicates the pool does not hold enough free
	// liquidity to satisfy a withdrawal.
	ErrInsufficientLiquidity = errors.New("lending engine: insufficient free liquidity")
	// ErrNotActive indicates an operation against a deactivated pool or slot.
	ErrNotActive = errors.New("lending engine: not active")
	// ErrInvalidDebtIndex indicates an index below the precision floor or
	// below a slot's origination snapshot.
	ErrInvalidDebtIndex = errors.New("lending engine: invalid debt index")
	// ErrInvalidTimeElapsed indicates a zero or implausibly large accrual
	// interval.
	ErrInvalidTimeElapsed = errors.New("lending engine: invalid accrual interval")
	// ErrUnauthorized indicates the caller does not own the slot or pool
	// being mutated.
	ErrUnauthorized = errors.New("lending engine: caller not authorised")
	// ErrNotFound indicates the referenced pool or slot does not exist.
	ErrNotFound = errors.New("lending engine: not found")
	// ErrZeroPrincipal indicates a partial repayment whose principal portion
	// rounded to zero.
	ErrZeroPrincipal = errors.New("lending engine: repayment rounded to zero principal")
	// ErrInconsistentPool indicates share and liquidity totals where exactly
	// one is zero, which no valid history can produce.
	ErrInconsistentPool = errors.New("lending engine: share and liquidity totals inconsistent")
)

var (
	errNilState  = errors.New("lending engine: state not configured")
	errNilVenue  = errors.New("lending engine: venue not configured")
	errNilLedger = errors.New("lending engine: ledger not configured")
)
