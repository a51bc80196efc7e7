package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-executor-go/risk"
	"trade-executor-go/signal"
)

func sized(ticker string, weight, price float64) risk.Sized {
	return risk.Sized{
		Signal: signal.Signal{Ticker: ticker, Price: price, Probability: 0.7, Horizon: "5d", Regime: "neutral"},
		Weight: weight,
	}
}

func TestBuildDollarStepAndCap(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{MaxPositionPct: 0.15, DollarStep: 1000})
	require.NoError(t, err)

	// equity 100k：per-name cap 15000 > step 1000，名义金额用 step
	cands := b.Build([]risk.Sized{sized("AAPL", 0.1, 200)}, 100000, "20250601T1200")
	require.Len(t, cands, 1)
	assert.Equal(t, int64(5), cands[0].Quantity)
	assert.Equal(t, float64(1000), cands[0].Notional)
	assert.Equal(t, "AAPL-20250601T1200", cands[0].ClientOrderID)
	assert.Equal(t, SideBuy, cands[0].Side)

	// equity 5k：cap 750 < step，名义金额被 cap 压住
	cands = b.Build([]risk.Sized{sized("AAPL", 0.1, 200)}, 5000, "c")
	require.Len(t, cands, 1)
	assert.Equal(t, int64(3), cands[0].Quantity)
	assert.Equal(t, float64(750), cands[0].Notional)
}

func TestBuildSkipsRules(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{MaxPositionPct: 0.15, DollarStep: 1000})
	require.NoError(t, err)

	cands := b.Build([]risk.Sized{
		sized("ZERO", 0, 100),       // 权重为 0
		sized("PRICY", 0.1, 250000), // 名义金额不足一股
		sized("NOPX", 0.1, 0),       // 没有参考价
		sized("OK", 0.1, 100),       // 正常
	}, 100000, "c")
	require.Len(t, cands, 1)
	assert.Equal(t, "OK", cands[0].Ticker)
	assert.Equal(t, int64(10), cands[0].Quantity)
}

// 同一周期重复构造必须得到相同的幂等键，这是崩溃重跑安全的前提。
func TestBuildDeterministicClientOrderID(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{MaxPositionPct: 0.15, DollarStep: 1000})
	require.NoError(t, err)

	in := []risk.Sized{sized("AAPL", 0.1, 200)}
	first := b.Build(in, 100000, "20250601T1200")
	second := b.Build(in, 100000, "20250601T1200")
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ClientOrderID, second[0].ClientOrderID)

	other := b.Build(in, 100000, "20250601T1300")
	assert.NotEqual(t, first[0].ClientOrderID, other[0].ClientOrderID)
}

func TestNewBuilderValidates(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{MaxPositionPct: 0, DollarStep: 1000})
	assert.Error(t, err)
	_, err = NewBuilder(BuilderConfig{MaxPositionPct: 0.15, DollarStep: 0})
	assert.Error(t, err)
	_, err = NewBuilder(BuilderConfig{MaxPositionPct: 1.5, DollarStep: 1000})
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusPending, StatusSent},
		{StatusPending, StatusRejected},
		{StatusSent, StatusFilled},
		{StatusSent, StatusSent},
	}
	for _, tr := range legal {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s legal", tr[0], tr[1])
		}
	}
	illegal := [][2]Status{
		{StatusRejected, StatusSent},
		{StatusFilled, StatusPending},
		{StatusPending, StatusFilled},
		{StatusSent, StatusRejected},
	}
	for _, tr := range illegal {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s illegal", tr[0], tr[1])
		}
	}
	if !IsFinal(StatusFilled) || !IsFinal(StatusRejected) || IsFinal(StatusSent) {
		t.Fatalf("final state classification wrong")
	}
}
