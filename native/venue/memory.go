package venue

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"lendfi/crypto"
)

// Memory is a deterministic in-process venue used by tests and the daemon's
// local mode. It models a single constant-product pool per position and keeps
// pending fee/reward buckets that tests can fund explicitly.
type Memory struct {
	mu        sync.Mutex
	positions map[string]*memoryPosition
	nextID    uint64
	nowFn     func() int64
}

type memoryPosition struct {
	handle   PositionHandle
	reserveA *big.Int
	reserveB *big.Int
	supply   *big.Int
	feeA     *big.Int
	feeB     *big.Int
	rewards  []Reward
}

// NewMemory constructs an empty in-memory venue.
func NewMemory() *Memory {
	return &Memory{
		positions: make(map[string]*memoryPosition),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the clock used for deadline checks, primarily for
// deterministic tests.
func (m *Memory) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	m.mu.Lock()
	m.nowFn = now
	m.mu.Unlock()
}

// OpenPosition registers a fresh position for the pair.
func (m *Memory) OpenPosition(tokenA, tokenB string, feeTierBps uint64, tickLower, tickUpper int32) (PositionHandle, error) {
	tokenA = strings.ToUpper(strings.TrimSpace(tokenA))
	tokenB = strings.ToUpper(strings.TrimSpace(tokenB))
	if tokenA == "" || tokenB == "" || tokenA == tokenB {
		return PositionHandle{}, ErrInvalidPair
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	handle := PositionHandle{
		ID:         fmt.Sprintf("memvenue-%d", m.nextID),
		TokenA:     tokenA,
		TokenB:     tokenB,
		FeeTierBps: feeTierBps,
		TickLower:  tickLower,
		TickUpper:  tickUpper,
	}
	m.positions[handle.ID] = &memoryPosition{
		handle:   handle,
		reserveA: big.NewInt(0),
		reserveB: big.NewInt(0),
		supply:   big.NewInt(0),
		feeA:     big.NewInt(0),
		feeB:     big.NewInt(0),
	}
	return handle, nil
}

// OptimalLiquidityAmounts quotes the amounts a deposit would consume at the
// current reserve ratio. The first deposit sets the ratio and mints
// sqrt(amountA*amountB) liquidity units.
func (m *Memory) OptimalLiquidityAmounts(pos PositionHandle, desiredA, desiredB, minA, minB *big.Int) (Amounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[pos.ID]
	if !ok {
		return Amounts{}, ErrUnknownPosition
	}
	amountA, amountB, liquidity := p.quote(desiredA, desiredB)
	if belowMin(amountA, minA) || belowMin(amountB, minB) {
		return Amounts{}, ErrSlippage
	}
	return Amounts{Liquidity: liquidity, AmountA: amountA, AmountB: amountB}, nil
}

// AddLiquidity deposits the amounts into the position at the current ratio.
func (m *Memory) AddLiquidity(pos PositionHandle, amountA, amountB, minA, minB *big.Int, deadline int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeadline(deadline); err != nil {
		return err
	}
	p, ok := m.positions[pos.ID]
	if !ok {
		return ErrUnknownPosition
	}
	usedA, usedB, minted := p.quote(amountA, amountB)
	if belowMin(usedA, minA) || belowMin(usedB, minB) {
		return ErrSlippage
	}
	p.reserveA.Add(p.reserveA, usedA)
	p.reserveB.Add(p.reserveB, usedB)
	p.supply.Add(p.supply, minted)
	return nil
}

// RemoveLiquidity burns liquidity units and returns the token amounts owed to
// the recipient. Token settlement is the caller's responsibility; the memory
// venue tracks deployment only.
func (m *Memory) RemoveLiquidity(pos PositionHandle, liquidity, minA, minB *big.Int, _ crypto.Address, deadline int64) (*big.Int, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeadline(deadline); err != nil {
		return nil, nil, err
	}
	p, ok := m.positions[pos.ID]
	if !ok {
		return nil, nil, ErrUnknownPosition
	}
	if liquidity == nil || liquidity.Sign() <= 0 || p.supply.Sign() == 0 || liquidity.Cmp(p.supply) > 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	amountA := mulDivFloor(p.reserveA, liquidity, p.supply)
	amountB := mulDivFloor(p.reserveB, liquidity, p.supply)
	if belowMin(amountA, minA) || belowMin(amountB, minB) {
		return nil, nil, ErrSlippage
	}
	p.reserveA.Sub(p.reserveA, amountA)
	p.reserveB.Sub(p.reserveB, amountB)
	p.supply.Sub(p.supply, liquidity)
	return amountA, amountB, nil
}

// Swap exchanges amountIn of one pool asset for the other at the current
// reserve ratio and shifts the reserves accordingly. An unseeded position has
// no price, so swapping against it fails.
func (m *Memory) Swap(pos PositionHandle, tokenIn string, amountIn, minOut *big.Int, deadline int64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeadline(deadline); err != nil {
		return nil, err
	}
	p, ok := m.positions[pos.ID]
	if !ok {
		return nil, ErrUnknownPosition
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	tokenIn = strings.ToUpper(strings.TrimSpace(tokenIn))
	reserveIn, reserveOut := p.reserveA, p.reserveB
	switch tokenIn {
	case p.handle.TokenA:
	case p.handle.TokenB:
		reserveIn, reserveOut = p.reserveB, p.reserveA
	default:
		return nil, ErrInvalidPair
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	out := mulDivFloor(amountIn, reserveOut, reserveIn)
	if out.Sign() == 0 || out.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if belowMin(out, minOut) {
		return nil, ErrSlippage
	}
	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, out)
	return out, nil
}

// ClaimFees drains the pending trading fee buckets for the position.
func (m *Memory) ClaimFees(pos PositionHandle) (*big.Int, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[pos.ID]
	if !ok {
		return nil, nil, ErrUnknownPosition
	}
	feeA := new(big.Int).Set(p.feeA)
	feeB := new(big.Int).Set(p.feeB)
	p.feeA.SetInt64(0)
	p.feeB.SetInt64(0)
	return feeA, feeB, nil
}

// ClaimRewards drains the pending farmed reward buckets for the position.
func (m *Memory) ClaimRewards(pos PositionHandle) ([]Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[pos.ID]
	if !ok {
		return nil, ErrUnknownPosition
	}
	rewards := p.rewards
	p.rewards = nil
	out := make([]Reward, 0, len(rewards))
	for _, r := range rewards {
		if r.Amount == nil || r.Amount.Sign() <= 0 {
			continue
		}
		out = append(out, Reward{Token: r.Token, Amount: new(big.Int).Set(r.Amount)})
	}
	return out, nil
}

// AccrueFees funds the pending fee buckets. Test and simulation hook.
func (m *Memory) AccrueFees(pos PositionHandle, feeA, feeB *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[pos.ID]
	if !ok {
		return ErrUnknownPosition
	}
	if feeA != nil && feeA.Sign() > 0 {
		p.feeA.Add(p.feeA, feeA)
	}
	if feeB != nil && feeB.Sign() > 0 {
		p.feeB.Add(p.feeB, feeB)
	}
	return nil
}

// AccrueReward funds a pending farmed reward. Test and simulation hook.
func (m *Memory) AccrueReward(pos PositionHandle, token string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[pos.ID]
	if !ok {
		return ErrUnknownPosition
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	p.rewards = append(p.rewards, Reward{Token: strings.ToUpper(strings.TrimSpace(token)), Amount: new(big.Int).Set(amount)})
	return nil
}

func (m *Memory) checkDeadline(deadline int64) error {
	if deadline > 0 && m.nowFn() > deadline {
		return ErrDeadlineExpired
	}
	return nil
}

// quote computes the amounts consumed at the current reserve ratio and the
// liquidity minted for them.
func (p *memoryPosition) quote(desiredA, desiredB *big.Int) (amountA, amountB, liquidity *big.Int) {
	amountA = cloneOrZero(desiredA)
	amountB = cloneOrZero(desiredB)
	if p.supply.Sign() == 0 || p.reserveA.Sign() == 0 || p.reserveB.Sign() == 0 {
		liquidity = new(big.Int).Sqrt(new(big.Int).Mul(amountA, amountB))
		return amountA, amountB, liquidity
	}
	optimalB := mulDivFloor(amountA, p.reserveB, p.reserveA)
	if optimalB.Cmp(amountB) <= 0 {
		amountB = optimalB
	} else {
		amountA = mulDivFloor(amountB, p.reserveA, p.reserveB)
	}
	liqA := mulDivFloor(amountA, p.supply, p.reserveA)
	liqB := mulDivFloor(amountB, p.supply, p.reserveB)
	liquidity = liqA
	if liqB.Cmp(liquidity) < 0 {
		liquidity = liqB
	}
	return amountA, amountB, liquidity
}

func mulDivFloor(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

func belowMin(amount, min *big.Int) bool {
	if min == nil || min.Sign() <= 0 {
		return false
	}
	if amount == nil {
		return true
	}
	return amount.Cmp(min) < 0
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
