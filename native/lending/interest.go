package lending

import "math/big"

// InterestModel encapsulates the kinked rate curve parameters shaping how the
// borrow APR reacts to pool utilisation. All rates are basis points.
type InterestModel struct {
	// BaseRateBps is the minimum borrow APR applied at zero utilisation.
	BaseRateBps uint64
	// SlopeBeforeKinkBps is the APR increase across the ramp up to the kink.
	SlopeBeforeKinkBps uint64
	// SlopeAfterKinkBps governs the additional APR applied beyond the kink.
	SlopeAfterKinkBps uint64
	// KinkUtilisationBps is the utilisation where the slope steepens.
	KinkUtilisationBps uint64
	// RiskFactorIndex selects the convexity exponent applied to the excess
	// utilisation beyond the kink: {0.5, 1.0, 1.5, 2.0}.
	RiskFactorIndex uint8
}

// riskPowerCount is the size of the discrete risk-power table.
const riskPowerCount = 4

// Duration table for borrow terms: 3, 6, 12 and 24 month equivalents. The
// factor expresses the term as basis points of a year; the adjustment applies
// a premium for locking liquidity longer.
var (
	durationFactorsBps = [...]uint64{2_500, 5_000, 10_000, 20_000}
	termAdjustmentsBps = [...]uint64{10_000, 10_250, 10_500, 11_000}
)

// riskMultipliersBps scales the reserve prepayment by the pool's risk factor:
// {0.5, 1.0, 1.5, 2.0}. Indexed by RiskFactorIndex, same table shape as the
// convexity powers.
var riskMultipliersBps = [...]uint64{5_000, 10_000, 15_000, 20_000}

// DurationCount returns the number of supported borrow terms.
func DurationCount() int { return len(durationFactorsBps) }

// Validate checks the model against the construction preconditions.
func (m InterestModel) Validate() error {
	if m.SlopeBeforeKinkBps == 0 || m.SlopeAfterKinkBps == 0 {
		return ErrInvalidParameters
	}
	if m.KinkUtilisationBps == 0 || m.KinkUtilisationBps > basisPoints.Uint64() {
		return ErrInvalidParameters
	}
	if int(m.RiskFactorIndex) >= riskPowerCount {
		return ErrInvalidParameters
	}
	return nil
}

// AprBps derives the borrow APR for the given utilisation. Below the kink the
// rate ramps linearly; above it the excess utilisation is raised to the
// configured risk power, producing a convex penalty that discourages
// over-utilisation.
func (m InterestModel) AprBps(utilisation uint64) uint64 {
	bps := basisPoints.Uint64()
	if utilisation > bps {
		utilisation = bps
	}
	kink := m.KinkUtilisationBps
	if kink == 0 {
		kink = bps
	}
	if utilisation <= kink {
		return m.BaseRateBps + m.SlopeBeforeKinkBps*utilisation/kink
	}
	excess := (utilisation - kink) * bps / (bps - kink)
	powered := riskAdjustedExcess(excess, m.RiskFactorIndex)
	return m.BaseRateBps + m.SlopeBeforeKinkBps + m.SlopeAfterKinkBps*powered/bps
}

// riskAdjustedExcess raises a bps-scaled ratio to the discrete risk power.
// Fractional exponents are approximated with integer sqrt and multiply only,
// keeping the computation deterministic without floating point:
// 0.5 -> sqrt(n), 1.0 -> n, 1.5 -> sqrt(n)*n, 2.0 -> n*n.
func riskAdjustedExcess(excessBps uint64, riskIdx uint8) uint64 {
	bps := basisPoints.Uint64()
	if excessBps == 0 {
		return 0
	}
	n := new(big.Int).SetUint64(excessBps)
	switch riskIdx {
	case 0:
		// sqrt(n/bps) in bps units = sqrt(n*bps).
		return new(big.Int).Sqrt(new(big.Int).Mul(n, basisPoints)).Uint64()
	case 1:
		return excessBps
	case 2:
		root := new(big.Int).Sqrt(new(big.Int).Mul(n, basisPoints))
		return mulDiv(root, n, basisPoints).Uint64()
	default:
		return excessBps * excessBps / bps
	}
}

// CalculateReserve sizes the interest prepayment a borrower owes upfront:
// amount scaled by the APR, the term's fraction of a year, the pool's risk
// multiplier and the term adjustment. The risk multiplier applies at every
// utilisation, so two pools differing only in risk factor price different
// reserves even below the kink. A non-zero amount never yields a zero
// reserve; rounding to zero is floored to one unit so no loan is
// interest-free.
func CalculateReserve(amount *big.Int, aprBps uint64, durationIdx, riskIdx uint8) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if int(durationIdx) >= DurationCount() || int(riskIdx) >= riskPowerCount {
		return nil, ErrInvalidParameters
	}
	reserve := mulDiv(amount, new(big.Int).SetUint64(aprBps), basisPoints)
	reserve = mulDiv(reserve, new(big.Int).SetUint64(durationFactorsBps[durationIdx]), basisPoints)
	reserve = mulDiv(reserve, new(big.Int).SetUint64(riskMultipliersBps[riskIdx]), basisPoints)
	reserve = mulDiv(reserve, new(big.Int).SetUint64(termAdjustmentsBps[durationIdx]), basisPoints)
	if reserve.Sign() == 0 {
		reserve.SetInt64(1)
	}
	return reserve, nil
}

// UpdatedDebtIndex advances a debt index by simple interest over the elapsed
// interval: idx + idx * apr * dt / (bps * secondsPerYear). The interval is
// capped at one year to guard against a malformed timestamp compounding an
// arbitrary gap in a single step.
func UpdatedDebtIndex(current *big.Int, aprBps uint64, elapsedSeconds int64) (*big.Int, error) {
	if current == nil || current.Cmp(precision) < 0 {
		return nil, ErrInvalidDebtIndex
	}
	if elapsedSeconds <= 0 || elapsedSeconds > secondsPerYear {
		return nil, ErrInvalidTimeElapsed
	}
	numerator := new(big.Int).Mul(current, new(big.Int).SetUint64(aprBps))
	numerator.Mul(numerator, big.NewInt(elapsedSeconds))
	denominator := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	delta := numerator.Quo(numerator, denominator)
	return new(big.Int).Add(current, delta), nil
}
