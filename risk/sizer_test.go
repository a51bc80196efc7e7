package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-executor-go/signal"
)

func defaultTunables() Tunables {
	return Tunables{
		MinProbability:  0.60,
		StrengthFloor:   0.5,
		StrengthSpan:    0.2,
		TargetDailyVol:  0.01,
		FeeBps:          1,
		SlipBpsBase:     3,
		CryptoCap:       0.05,
		MaxPositionSize: 0.15,
		SignalThreshold: 0.6,
	}
}

// TestSingleNameConcentrationClamp 单标的集中度截断：
// 强度1.0 → 归一化1.0 → 波动率定标0.5 → 成本折减≈0.4998 → 截断到0.15。
func TestSingleNameConcentrationClamp(t *testing.T) {
	s, err := NewSizer(defaultTunables())
	require.NoError(t, err)

	out, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong, ATRPct: 0.02},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.15, out[0].Weight, 1e-12)
}

// 同样的输入在不截断时应落在成本折减后的 0.4998。
func TestVolTargetAndCostHaircut(t *testing.T) {
	tun := defaultTunables()
	tun.MaxPositionSize = 1.0
	s, err := NewSizer(tun)
	require.NoError(t, err)

	out, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong, ATRPct: 0.02},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.4998, out[0].Weight, 1e-9)
}

// TestCryptoSleeveCap 加密货币 sleeve 超限时等比例压缩，非加密标的不动。
func TestCryptoSleeveCap(t *testing.T) {
	ws := []Sized{
		{Signal: signal.Signal{Ticker: "AAPL"}, Weight: 0.10},
		{Signal: signal.Signal{Ticker: "BTC-USD"}, Weight: 0.08},
	}
	applyCryptoCap(ws, 0.05)
	assert.InDelta(t, 0.10, ws[0].Weight, 1e-12)
	assert.InDelta(t, 0.05, ws[1].Weight, 1e-12)
}

func TestCryptoSleeveCapMultipleNames(t *testing.T) {
	ws := []Sized{
		{Signal: signal.Signal{Ticker: "BTC-USD"}, Weight: 0.06},
		{Signal: signal.Signal{Ticker: "ETH-USD"}, Weight: 0.04},
		{Signal: signal.Signal{Ticker: "MSFT"}, Weight: 0.12},
	}
	applyCryptoCap(ws, 0.05)
	assert.InDelta(t, 0.03, ws[0].Weight, 1e-12)
	assert.InDelta(t, 0.02, ws[1].Weight, 1e-12)
	assert.InDelta(t, 0.12, ws[2].Weight, 1e-12)
}

// TestNoQualifyingRows 没有任何多头需求时返回全零，不报错。
func TestNoQualifyingRows(t *testing.T) {
	s, err := NewSizer(defaultTunables())
	require.NoError(t, err)

	out, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.9, Direction: signal.DirectionFlat, ATRPct: 0.02},
		{Ticker: "MSFT", Probability: 0.45, Direction: signal.DirectionLong, ATRPct: 0.03},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, w := range out {
		assert.Zero(t, w.Weight)
	}
}

func TestSizeEmptyBatch(t *testing.T) {
	s, err := NewSizer(defaultTunables())
	require.NoError(t, err)
	out, err := s.Size(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestWeightBounds 所有输出权重都应落在 [0, MaxPositionSize]。
func TestWeightBounds(t *testing.T) {
	s, err := NewSizer(defaultTunables())
	require.NoError(t, err)

	out, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.99, Direction: signal.DirectionLong, ATRPct: 0.001},
		{Ticker: "MSFT", Probability: 0.62, Direction: signal.DirectionLong, ATRPct: 0.08},
		{Ticker: "BTC-USD", Probability: 0.85, Direction: signal.DirectionLong, ATRPct: 0.05},
		{Ticker: "ETH-USD", Probability: 0.70, Direction: signal.DirectionLong},
		{Ticker: "AZN.L", Probability: 0.30, Direction: signal.DirectionFlat, ATRPct: 0.02},
	})
	require.NoError(t, err)

	var cryptoSum float64
	for _, w := range out {
		assert.GreaterOrEqual(t, w.Weight, 0.0)
		assert.LessOrEqual(t, w.Weight, 0.15)
		if w.IsCrypto() {
			cryptoSum += w.Weight
		}
	}
	assert.LessOrEqual(t, cryptoSum, 0.05+1e-9)
}

// TestCostMonotonicity 提高成本假设不会让任何权重变大。
func TestCostMonotonicity(t *testing.T) {
	in := []signal.Signal{
		{Ticker: "AAPL", Probability: 0.72, Direction: signal.DirectionLong, ATRPct: 0.015},
		{Ticker: "BTC-USD", Probability: 0.68, Direction: signal.DirectionLong, ATRPct: 0.04},
		{Ticker: "MSFT", Probability: 0.58, Direction: signal.DirectionLong, ATRPct: 0.02},
	}

	cheap := defaultTunables()
	expensive := defaultTunables()
	expensive.FeeBps = 40
	expensive.SlipBpsBase = 60

	sc, err := NewSizer(cheap)
	require.NoError(t, err)
	se, err := NewSizer(expensive)
	require.NoError(t, err)

	lo, err := sc.Size(in)
	require.NoError(t, err)
	hi, err := se.Size(in)
	require.NoError(t, err)

	for i := range lo {
		assert.LessOrEqual(t, hi[i].Weight, lo[i].Weight+1e-12,
			"weight for %s increased with higher costs", lo[i].Ticker)
	}
}

// TestConvictionDamping 概率低于阈值的行权重减半（离散规则，不是平滑函数）。
func TestConvictionDamping(t *testing.T) {
	tun := defaultTunables()
	tun.MaxPositionSize = 1.0
	s, err := NewSizer(tun)
	require.NoError(t, err)

	// 两条波动率相同的信号，只有概率不同；0.55 行先被强度映射削弱，
	// 再被阈值减半。
	out, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong, ATRPct: 0.02},
		{Ticker: "MSFT", Probability: 0.55, Direction: signal.DirectionLong, ATRPct: 0.02},
	})
	require.NoError(t, err)

	// strength: 1.0 与 0.25 → 归一化 0.8 / 0.2；减半只作用在 MSFT 上。
	ratio := out[0].Weight / out[1].Weight
	assert.InDelta(t, 8.0, ratio, 1e-9)
}

func TestSizeValidationFailsWholeBatch(t *testing.T) {
	s, err := NewSizer(defaultTunables())
	require.NoError(t, err)

	_, err = s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.7, Direction: signal.DirectionLong},
		{Ticker: "bogus!", Probability: 0.7, Direction: signal.DirectionLong},
	})
	require.Error(t, err)
	var ve *signal.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestNewSizerRejectsBadTunables(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Tunables)
	}{
		{"cryptoCap zero", func(t *Tunables) { t.CryptoCap = 0 }},
		{"cryptoCap above one", func(t *Tunables) { t.CryptoCap = 1.5 }},
		{"targetVol zero", func(t *Tunables) { t.TargetDailyVol = 0 }},
		{"targetVol above one", func(t *Tunables) { t.TargetDailyVol = 2 }},
		{"strengthSpan zero", func(t *Tunables) { t.StrengthSpan = 0 }},
		{"negative fee", func(t *Tunables) { t.FeeBps = -1 }},
		{"maxPositionSize zero", func(t *Tunables) { t.MaxPositionSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tun := defaultTunables()
			tc.mutate(&tun)
			_, err := NewSizer(tun)
			assert.Error(t, err)
		})
	}
}

// TestMissingVolatilityFallsBack 缺失 ATR 时按 2% 兜底。
func TestMissingVolatilityFallsBack(t *testing.T) {
	tun := defaultTunables()
	tun.MaxPositionSize = 1.0
	s, err := NewSizer(tun)
	require.NoError(t, err)

	withVol, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong, ATRPct: 0.02},
	})
	require.NoError(t, err)
	without, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong},
	})
	require.NoError(t, err)
	assert.InDelta(t, withVol[0].Weight, without[0].Weight, 1e-12)
}

// TestNaNVolatilityFallsBack NaN 的 ATR 同样按兜底值处理，权重不得出现 NaN。
func TestNaNVolatilityFallsBack(t *testing.T) {
	tun := defaultTunables()
	tun.MaxPositionSize = 1.0
	s, err := NewSizer(tun)
	require.NoError(t, err)

	out, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong, ATRPct: math.NaN()},
		{Ticker: "MSFT", Probability: 0.68, Direction: signal.DirectionLong, ATRPct: 0.02},
	})
	require.NoError(t, err)
	for _, w := range out {
		assert.False(t, math.IsNaN(w.Weight), "weight for %s is NaN", w.Ticker)
	}

	baseline, err := s.Size([]signal.Signal{
		{Ticker: "AAPL", Probability: 0.75, Direction: signal.DirectionLong, ATRPct: 0.02},
		{Ticker: "MSFT", Probability: 0.68, Direction: signal.DirectionLong, ATRPct: 0.02},
	})
	require.NoError(t, err)
	assert.InDelta(t, baseline[0].Weight, out[0].Weight, 1e-12)
	assert.InDelta(t, baseline[1].Weight, out[1].Weight, 1e-12)
}
