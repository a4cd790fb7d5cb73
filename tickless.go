package kernel

import (
	"fmt"
	"math/big"
)

// TicklessConfig holds the precomputed constants for the tickless
// timekeeping algorithm, derived once from a clock frequency
// expressed as an exact rational number plus a worst-case interrupt-latency
// headroom, using arbitrary-precision rational arithmetic so no rounding
// error can accumulate into the derived constants.
type TicklessConfig struct {
	hwTicksPerMicro    uint32
	hwSubticksPerMicro uint64
	division           uint64
	stateful           bool
	hwMaxTickCount     uint32
	maxTickCount       uint32
	maxTimeout         uint32
}

const maxU32Plus1 = uint64(1) << 32

func bigU(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// ceilDiv computes ceil(num/den) for non-negative big.Int operands.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(num, den, r)
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// satSub computes max(a-b, 0) for big.Int operands.
func satSub(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		return big.NewInt(0)
	}
	return d
}

// NewTicklessConfig derives tickless timing constants for a clock running at
// freqNum/freqDenom Hz, given hwHeadroomTicks worst-case interrupt latency
// (in hardware ticks). It mirrors constance_portkit::tickless::TicklessCfg::new.
func NewTicklessConfig(freqNum, freqDenom uint64, hwHeadroomTicks uint32) (TicklessConfig, error) {
	if freqDenom == 0 {
		return TicklessConfig{}, fmt.Errorf("tickless: denominator of clock frequency must not be zero")
	}
	if freqNum == 0 {
		return TicklessConfig{}, fmt.Errorf("tickless: numerator of clock frequency must not be zero")
	}

	numer := bigU(freqNum)
	denom := new(big.Int).Mul(bigU(freqDenom), big.NewInt(1_000_000))
	g := new(big.Int).GCD(nil, nil, numer, denom)
	numer.Quo(numer, g)
	denom.Quo(denom, g)

	floor := new(big.Int).Quo(numer, denom)
	subticks := new(big.Int).Mod(numer, denom)

	maxU32 := big.NewInt(0xffff_ffff)
	if floor.Cmp(maxU32) > 0 {
		return TicklessConfig{}, fmt.Errorf("tickless: timer frequency is too fast")
	}
	maxU64 := new(big.Int).SetUint64(^uint64(0))
	if denom.Cmp(maxU64) > 0 {
		return TicklessConfig{}, fmt.Errorf("tickless: intermediate calculation overflowed; clock frequency too complex or too low")
	}

	var hwGlobalPeriod, globalPeriod *big.Int
	if subticks.Sign() == 0 {
		if denom.Cmp(big.NewInt(1)) != 0 {
			return TicklessConfig{}, fmt.Errorf("tickless: internal invariant violated (denom != 1 with zero subticks)")
		}
		if floor.Sign() == 0 {
			return TicklessConfig{}, fmt.Errorf("tickless: timer frequency is too fast")
		}
		hwGlobalPeriod, globalPeriod = new(big.Int).Set(floor), big.NewInt(1)
	} else {
		sg := new(big.Int).GCD(nil, nil, subticks, denom)
		globalPeriod = new(big.Int).Quo(denom, sg)
		hwGlobalPeriod = new(big.Int).Quo(numer, sg)
	}

	pow32 := new(big.Int).Lsh(big.NewInt(1), 32)
	pow31 := new(big.Int).Lsh(big.NewInt(1), 31)

	stateless := hwGlobalPeriod.Cmp(pow32) <= 0 && globalPeriod.Cmp(pow32) <= 0 &&
		(hwGlobalPeriod.Cmp(pow31) <= 0 || globalPeriod.Cmp(big.NewInt(1)) > 0) &&
		(globalPeriod.Cmp(pow31) <= 0 || hwGlobalPeriod.Cmp(big.NewInt(1)) > 0)

	cfg := TicklessConfig{
		hwTicksPerMicro:    uint32(floor.Uint64()),
		hwSubticksPerMicro: subticks.Uint64(),
		division:           denom.Uint64(),
	}

	headroom := bigU(uint64(hwHeadroomTicks))

	if stateless {
		repeatHw := new(big.Int).Quo(new(big.Int).SetUint64(maxU32Plus1), hwGlobalPeriod)
		repeatOs := new(big.Int).Quo(new(big.Int).SetUint64(maxU32Plus1), globalPeriod)
		repeat := repeatHw
		if repeatOs.Cmp(repeatHw) < 0 {
			repeat = repeatOs
		}
		hwMaxTickCount := new(big.Int).Sub(new(big.Int).Mul(hwGlobalPeriod, repeat), big.NewInt(1))
		maxTickCount := new(big.Int).Sub(new(big.Int).Mul(globalPeriod, repeat), big.NewInt(1))

		// max_timeout s.t. late_tick_count <= ref_tick_count + max_tick_count
		lhs := new(big.Int).Mul(maxTickCount, numer)
		lhs.Add(lhs, numer)
		lhs.Sub(lhs, big.NewInt(1))
		rhs := new(big.Int).Sub(denom, big.NewInt(1))
		rhs.Add(rhs, new(big.Int).Mul(headroom, denom))
		maxTimeout := new(big.Int).Quo(satSub(lhs, rhs), numer)

		if maxTimeout.Sign() == 0 {
			return TicklessConfig{}, fmt.Errorf("tickless: calculated max_timeout is too low; lower the headroom")
		}
		if hwMaxTickCount.Cmp(maxU32) > 0 || maxTickCount.Cmp(maxU32) > 0 || maxTimeout.Cmp(maxU32) > 0 {
			return TicklessConfig{}, fmt.Errorf("tickless: internal invariant violated (stateless bound exceeded)")
		}

		cfg.stateful = false
		cfg.hwMaxTickCount = uint32(hwMaxTickCount.Uint64())
		cfg.maxTickCount = uint32(maxTickCount.Uint64())
		cfg.maxTimeout = uint32(maxTimeout.Uint64())
		return cfg, nil
	}

	hwMaxTickCount := big.NewInt(0xffff_ffff)
	maxTickCount := big.NewInt(0xffff_ffff)

	boundHw := satSub(new(big.Int).Mul(satSub(hwMaxTickCount, headroom), denom), new(big.Int).Sub(denom, big.NewInt(1)))
	boundHw.Quo(boundHw, numer)

	lhs := new(big.Int).Mul(maxTickCount, numer)
	lhs.Add(lhs, numer)
	lhs.Sub(lhs, big.NewInt(1))
	rhs := new(big.Int).Sub(denom, big.NewInt(1))
	rhs.Add(rhs, new(big.Int).Mul(headroom, denom))
	boundOs := new(big.Int).Quo(satSub(lhs, rhs), numer)

	maxTimeout := boundHw
	if boundOs.Cmp(boundHw) < 0 {
		maxTimeout = boundOs
	}

	if maxTimeout.Sign() == 0 {
		return TicklessConfig{}, fmt.Errorf("tickless: calculated max_timeout is too low; lower the headroom")
	}
	if maxTimeout.Cmp(maxU32) > 0 {
		return TicklessConfig{}, fmt.Errorf("tickless: internal invariant violated (stateful bound exceeded)")
	}

	cfg.stateful = true
	cfg.hwMaxTickCount = 0xffff_ffff
	cfg.maxTickCount = 0xffff_ffff
	cfg.maxTimeout = uint32(maxTimeout.Uint64())
	return cfg, nil
}

// HwMaxTickCount is the maximum representable hardware tick count (period
// minus one cycle), or math.MaxUint32 under the stateful algorithm.
func (c TicklessConfig) HwMaxTickCount() uint32 { return c.hwMaxTickCount }

// MaxTickCount is the maximum representable OS tick count.
func (c TicklessConfig) MaxTickCount() uint32 { return c.maxTickCount }

// MaxTimeout is the maximum interval, in microseconds, reliably measurable
// given the configured interrupt-latency headroom.
func (c TicklessConfig) MaxTimeout() uint32 { return c.maxTimeout }

// Stateful reports whether the stateful (reference-point) algorithm is in
// use, as opposed to the direct stateless conversion.
func (c TicklessConfig) Stateful() bool { return c.stateful }

// ticklessCore implements both the stateless and stateful mapping between
// hardware ticks and OS (microsecond) ticks. All arithmetic that could
// exceed 64 bits (subtick products)
// goes through math/big; it is invoked when the engine marks a new
// reference point (each timer interrupt and each timeout registration) and
// when it arms the next interrupt.
type ticklessCore struct {
	cfg TicklessConfig

	refTick      uint32
	refHwTick    uint32
	refHwSubtick uint64 // in [0, cfg.division) when cfg.stateful
}

func newTicklessCore(cfg TicklessConfig) *ticklessCore {
	return &ticklessCore{cfg: cfg}
}

func (c *ticklessCore) tickCount(hwTick uint32) uint32 {
	cfg := &c.cfg
	if !cfg.stateful {
		num := new(big.Int).Mul(bigU(uint64(hwTick)), bigU(cfg.division))
		den := new(big.Int).Add(new(big.Int).Mul(bigU(uint64(cfg.hwTicksPerMicro)), bigU(cfg.division)), bigU(cfg.hwSubticksPerMicro))
		return uint32(new(big.Int).Quo(num, den).Uint64())
	}
	diff := hwTick - c.refHwTick // wraps as uint32
	num := new(big.Int).Sub(new(big.Int).Mul(bigU(uint64(diff)), bigU(cfg.division)), bigU(c.refHwSubtick))
	den := new(big.Int).Add(new(big.Int).Mul(bigU(uint64(cfg.hwTicksPerMicro)), bigU(cfg.division)), bigU(cfg.hwSubticksPerMicro))
	delta := uint32(new(big.Int).Quo(num, den).Uint64())
	return c.refTick + delta // wraps
}

func (c *ticklessCore) tickCountToHwTickCount(tick uint32) uint32 {
	cfg := &c.cfg
	if !cfg.stateful {
		hw := tick * cfg.hwTicksPerMicro // wraps
		frac := new(big.Int).Mul(bigU(uint64(tick)), bigU(cfg.hwSubticksPerMicro))
		hw += uint32(ceilDiv(frac, bigU(cfg.division)).Uint64())
		if cfg.hwMaxTickCount != 0xffff_ffff && hw == cfg.hwMaxTickCount+1 {
			hw = 0
		}
		return hw
	}
	micros := tick - c.refTick // wraps
	inner := new(big.Int).Add(new(big.Int).Mul(bigU(uint64(cfg.hwTicksPerMicro)), bigU(cfg.division)), bigU(cfg.hwSubticksPerMicro))
	num := new(big.Int).Add(bigU(c.refHwSubtick), new(big.Int).Mul(bigU(uint64(micros)), inner))
	add := uint32(ceilDiv(num, bigU(cfg.division)).Uint64())
	return c.refHwTick + add // wraps
}

// markReference establishes a new reference point matching hwTick and
// returns its OS-tick-count coordinate.
func (c *ticklessCore) markReference(hwTick uint32) uint32 {
	cfg := &c.cfg
	newRefTick := c.tickCount(hwTick)
	if !cfg.stateful {
		return newRefTick
	}
	advance := newRefTick - c.refTick // wraps
	c.refTick = newRefTick
	c.refHwTick += advance * cfg.hwTicksPerMicro // wraps

	sum := new(big.Int).Add(bigU(c.refHwSubtick), new(big.Int).Mul(bigU(cfg.hwSubticksPerMicro), bigU(uint64(advance))))
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(sum, bigU(cfg.division), r)
	c.refHwSubtick = r.Uint64()
	c.refHwTick += uint32(q.Uint64()) // wraps
	return newRefTick
}
