package venue

import (
	"errors"
	"math/big"
	"testing"

	"lendfi/crypto"
)

func openTestPosition(t *testing.T, m *Memory) PositionHandle {
	t.Helper()
	pos, err := m.OpenPosition("NHB", "USDC", 30, -100, 100)
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	return pos
}

func TestMemoryOpenPositionValidatesPair(t *testing.T) {
	m := NewMemory()
	if _, err := m.OpenPosition("NHB", "nhb", 30, 0, 0); !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("same-token pair: got %v", err)
	}
	if _, err := m.OpenPosition("", "USDC", 30, 0, 0); !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("empty token: got %v", err)
	}
}

func TestMemoryFirstDepositSetsRatio(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	amounts, err := m.OptimalLiquidityAmounts(pos, big.NewInt(4_000), big.NewInt(1_000), nil, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if amounts.Liquidity.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("liquidity = %s, want sqrt(4e6)=2000", amounts.Liquidity)
	}
	if amounts.AmountA.Cmp(big.NewInt(4_000)) != 0 || amounts.AmountB.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("first quote must take desired amounts, got %s/%s", amounts.AmountA, amounts.AmountB)
	}
}

func TestMemoryQuoteFollowsReserveRatio(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	if err := m.AddLiquidity(pos, big.NewInt(4_000), big.NewInt(1_000), nil, nil, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Desired 1000/1000 against a 4:1 pool consumes 1000/250.
	amounts, err := m.OptimalLiquidityAmounts(pos, big.NewInt(1_000), big.NewInt(1_000), nil, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if amounts.AmountA.Cmp(big.NewInt(1_000)) != 0 || amounts.AmountB.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("quote = %s/%s, want 1000/250", amounts.AmountA, amounts.AmountB)
	}
	if amounts.Liquidity.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("liquidity = %s, want 500", amounts.Liquidity)
	}
}

func TestMemoryRemoveLiquidityProRata(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	if err := m.AddLiquidity(pos, big.NewInt(4_000), big.NewInt(1_000), nil, nil, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	amountA, amountB, err := m.RemoveLiquidity(pos, big.NewInt(500), nil, nil, crypto.Address{}, 0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if amountA.Cmp(big.NewInt(1_000)) != 0 || amountB.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("removed = %s/%s, want 1000/250", amountA, amountB)
	}
	if _, _, err := m.RemoveLiquidity(pos, big.NewInt(2_000), nil, nil, crypto.Address{}, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("over-remove: got %v", err)
	}
}

func TestMemorySlippageGuards(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	if err := m.AddLiquidity(pos, big.NewInt(4_000), big.NewInt(1_000), nil, nil, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// The ratio forces amountB down to 250, below the minimum.
	if _, err := m.OptimalLiquidityAmounts(pos, big.NewInt(1_000), big.NewInt(1_000), nil, big.NewInt(500)); !errors.Is(err, ErrSlippage) {
		t.Fatalf("quote below min: got %v", err)
	}
	if _, _, err := m.RemoveLiquidity(pos, big.NewInt(500), big.NewInt(2_000), nil, crypto.Address{}, 0); !errors.Is(err, ErrSlippage) {
		t.Fatalf("remove below min: got %v", err)
	}
}

func TestMemorySwapAtReserveRatio(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	if err := m.AddLiquidity(pos, big.NewInt(4_000), big.NewInt(1_000), nil, nil, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// 400 NHB into a 4:1 pool yields 100 USDC and shifts the reserves.
	out, err := m.Swap(pos, "NHB", big.NewInt(400), nil, 0)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("out = %s, want 100", out)
	}
	amounts, err := m.OptimalLiquidityAmounts(pos, big.NewInt(4_400), big.NewInt(900), nil, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if amounts.AmountA.Cmp(big.NewInt(4_400)) != 0 || amounts.AmountB.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("post-swap ratio quote = %s/%s, want 4400/900", amounts.AmountA, amounts.AmountB)
	}
}

func TestMemorySwapGuards(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	// No price before the pool is seeded.
	if _, err := m.Swap(pos, "NHB", big.NewInt(100), nil, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("unseeded swap: got %v", err)
	}
	if err := m.AddLiquidity(pos, big.NewInt(4_000), big.NewInt(1_000), nil, nil, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := m.Swap(pos, "BTC", big.NewInt(100), nil, 0); !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("foreign token: got %v", err)
	}
	if _, err := m.Swap(pos, "NHB", big.NewInt(400), big.NewInt(101), 0); !errors.Is(err, ErrSlippage) {
		t.Fatalf("below min out: got %v", err)
	}
	// Draining the counter reserve entirely is refused.
	if _, err := m.Swap(pos, "NHB", big.NewInt(4_000), nil, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("reserve drain: got %v", err)
	}
	m.SetNowFunc(func() int64 { return 1_000 })
	if _, err := m.Swap(pos, "NHB", big.NewInt(400), nil, 999); !errors.Is(err, ErrDeadlineExpired) {
		t.Fatalf("expired deadline: got %v", err)
	}
}

func TestMemoryDeadline(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	m.SetNowFunc(func() int64 { return 1_000 })
	if err := m.AddLiquidity(pos, big.NewInt(100), big.NewInt(100), nil, nil, 999); !errors.Is(err, ErrDeadlineExpired) {
		t.Fatalf("expired deadline: got %v", err)
	}
	if err := m.AddLiquidity(pos, big.NewInt(100), big.NewInt(100), nil, nil, 1_000); err != nil {
		t.Fatalf("deadline at now must pass: %v", err)
	}
}

func TestMemoryFeeAndRewardBuckets(t *testing.T) {
	m := NewMemory()
	pos := openTestPosition(t, m)
	if err := m.AccrueFees(pos, big.NewInt(30), big.NewInt(40)); err != nil {
		t.Fatalf("accrue fees: %v", err)
	}
	if err := m.AccrueReward(pos, "arb", big.NewInt(70)); err != nil {
		t.Fatalf("accrue reward: %v", err)
	}
	feeA, feeB, err := m.ClaimFees(pos)
	if err != nil {
		t.Fatalf("claim fees: %v", err)
	}
	if feeA.Cmp(big.NewInt(30)) != 0 || feeB.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("fees = %s/%s, want 30/40", feeA, feeB)
	}
	rewards, err := m.ClaimRewards(pos)
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	if len(rewards) != 1 || rewards[0].Token != "ARB" || rewards[0].Amount.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("rewards = %+v", rewards)
	}
	// Buckets drain on claim.
	feeA, feeB, err = m.ClaimFees(pos)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if feeA.Sign() != 0 || feeB.Sign() != 0 {
		t.Fatal("fee buckets must drain")
	}
}

func TestMemoryUnknownPosition(t *testing.T) {
	m := NewMemory()
	ghost := PositionHandle{ID: "memvenue-404"}
	if _, err := m.OptimalLiquidityAmounts(ghost, big.NewInt(1), big.NewInt(1), nil, nil); !errors.Is(err, ErrUnknownPosition) {
		t.Fatalf("quote: got %v", err)
	}
	if _, _, err := m.ClaimFees(ghost); !errors.Is(err, ErrUnknownPosition) {
		t.Fatalf("claim: got %v", err)
	}
}
