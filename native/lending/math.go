package lending

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	// precision is the 1.0 reference for debt indices and per-share fee
	// growth accumulators.
	precision = big.NewInt(1_000_000_000_000) // 1e12
)

const (
	secondsPerYear = 31_536_000
	moduleName     = "lending"
)

// mulDiv computes floor(a*b/c) on a wide intermediate. Division by zero
// yields zero rather than panicking; every caller treats that as an empty
// result.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// sharesForDeposit applies the bootstrap-or-proportional minting rule. An
// empty pool exchanges 1:1; otherwise shares are floored in the pool's
// favour. Exactly one total being zero is an invariant violation.
func sharesForDeposit(amount, totalShare, liquidity *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	shareZero := totalShare == nil || totalShare.Sign() == 0
	liqZero := liquidity == nil || liquidity.Sign() == 0
	switch {
	case shareZero && liqZero:
		return new(big.Int).Set(amount), nil
	case !shareZero && !liqZero:
		return mulDiv(amount, totalShare, liquidity), nil
	default:
		return nil, ErrInconsistentPool
	}
}

// sharesToBurn converts a liquidity amount into the share units backing it.
// In the empty-bootstrap state shares and liquidity are interchangeable.
func sharesToBurn(amount, totalShare, liquidity *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if totalShare == nil || totalShare.Sign() == 0 || liquidity == nil || liquidity.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	return mulDiv(amount, totalShare, liquidity)
}

// positionPercentBps reports the share of the pool a holding represents.
func positionPercentBps(share, total *big.Int) uint64 {
	if share == nil || share.Sign() <= 0 || total == nil || total.Sign() <= 0 {
		return 0
	}
	return mulDiv(share, basisPoints, total).Uint64()
}

// utilisationBps computes borrowed/liquidity in basis points, clamped to
// 10,000.
func utilisationBps(borrowed, liquidity *big.Int) uint64 {
	if borrowed == nil || borrowed.Sign() <= 0 {
		return 0
	}
	if liquidity == nil || liquidity.Sign() == 0 {
		return 0
	}
	u := mulDiv(borrowed, basisPoints, liquidity)
	if u.Cmp(basisPoints) > 0 {
		return basisPoints.Uint64()
	}
	return u.Uint64()
}

// feeGrowthDelta converts a lump fee amount into per-share growth units.
func feeGrowthDelta(fee, totalShare *big.Int) *big.Int {
	if fee == nil || fee.Sign() <= 0 || totalShare == nil || totalShare.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(fee, precision, totalShare)
}

// pendingYield settles a slot's entitlement against the global accumulator
// using its checkpoint: share * (global - debt) / precision.
func pendingYield(share, global, debt *big.Int) *big.Int {
	if share == nil || share.Sign() <= 0 || global == nil {
		return big.NewInt(0)
	}
	delta := new(big.Int).Set(global)
	if debt != nil {
		delta.Sub(delta, debt)
	}
	if delta.Sign() <= 0 {
		return big.NewInt(0)
	}
	return mulDiv(share, delta, precision)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func subFloorZero(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
