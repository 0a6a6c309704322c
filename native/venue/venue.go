package venue

import (
	"errors"
	"math/big"

	"lendfi/crypto"
)

var (
	// ErrUnknownPosition indicates the supplied handle does not reference an
	// open venue position.
	ErrUnknownPosition = errors.New("venue: unknown position")
	// ErrInvalidPair indicates the token pair is malformed or identical.
	ErrInvalidPair = errors.New("venue: invalid token pair")
	// ErrSlippage indicates the computed amounts fall below the caller's
	// minimum bounds.
	ErrSlippage = errors.New("venue: amounts below minimum bounds")
	// ErrDeadlineExpired indicates the operation deadline elapsed before
	// execution.
	ErrDeadlineExpired = errors.New("venue: deadline expired")
	// ErrInsufficientLiquidity indicates the position does not hold the
	// requested liquidity.
	ErrInsufficientLiquidity = errors.New("venue: insufficient position liquidity")
)

// PositionHandle identifies an open liquidity position on the external venue.
type PositionHandle struct {
	ID         string `json:"id"`
	TokenA     string `json:"tokenA"`
	TokenB     string `json:"tokenB"`
	FeeTierBps uint64 `json:"feeTierBps"`
	TickLower  int32  `json:"tickLower"`
	TickUpper  int32  `json:"tickUpper"`
}

// Reward is a farmed incentive paid out by the venue alongside trading fees.
type Reward struct {
	Token  string
	Amount *big.Int
}

// Amounts reports the liquidity minted by a deposit together with the token
// amounts actually consumed.
type Amounts struct {
	Liquidity *big.Int
	AmountA   *big.Int
	AmountB   *big.Int
}

// Venue is the minimal contract the lending engine requires from the external
// liquidity venue. Amounts and handles are opaque beyond what pool accounting
// needs; the venue owns all swap and range mechanics.
type Venue interface {
	OpenPosition(tokenA, tokenB string, feeTierBps uint64, tickLower, tickUpper int32) (PositionHandle, error)
	OptimalLiquidityAmounts(pos PositionHandle, desiredA, desiredB, minA, minB *big.Int) (Amounts, error)
	AddLiquidity(pos PositionHandle, amountA, amountB, minA, minB *big.Int, deadline int64) error
	RemoveLiquidity(pos PositionHandle, liquidity, minA, minB *big.Int, recipient crypto.Address, deadline int64) (amountA, amountB *big.Int, err error)
	Swap(pos PositionHandle, tokenIn string, amountIn, minOut *big.Int, deadline int64) (*big.Int, error)
	ClaimFees(pos PositionHandle) (feeA, feeB *big.Int, err error)
	ClaimRewards(pos PositionHandle) ([]Reward, error)
}
