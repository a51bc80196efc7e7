package risk

import (
	"errors"
	"fmt"
	"math"

	"trade-executor-go/signal"
)

const (
	// defaultVol 波动率估计缺失时的兜底值（2% 日波动）。
	defaultVol = 0.02
	// minVol 防止除零的波动率下限。
	minVol = 1e-4
	// haircutFloor 成本折减的下限，避免极端成本参数把仓位直接清零。
	haircutFloor = 0.9
)

// Tunables 仓位算法的全部参数。构造 Sizer 时校验一次，之后视为只读。
type Tunables struct {
	MinProbability  float64 // 可下单的最低概率
	StrengthFloor   float64 // 概率映射强度的起点
	StrengthSpan    float64 // 概率映射强度的跨度
	TargetDailyVol  float64 // 目标组合日波动
	FeeBps          float64 // 手续费（基点）
	SlipBpsBase     float64 // 基础滑点（基点）
	CryptoCap       float64 // 加密货币 sleeve 的权重上限
	MaxPositionSize float64 // 单标的权重上限
	SignalThreshold float64 // 低于该概率的行削减一半仓位
}

// Validate 检查参数范围。CryptoCap 与 TargetDailyVol 必须落在 (0,1]。
func (t Tunables) Validate() error {
	if t.CryptoCap <= 0 || t.CryptoCap > 1 {
		return fmt.Errorf("cryptoCap %.4f outside (0,1]", t.CryptoCap)
	}
	if t.TargetDailyVol <= 0 || t.TargetDailyVol > 1 {
		return fmt.Errorf("targetDailyVol %.4f outside (0,1]", t.TargetDailyVol)
	}
	if t.MinProbability < 0 || t.MinProbability > 1 {
		return fmt.Errorf("minProbability %.4f outside [0,1]", t.MinProbability)
	}
	if t.SignalThreshold < 0 || t.SignalThreshold > 1 {
		return fmt.Errorf("signalThreshold %.4f outside [0,1]", t.SignalThreshold)
	}
	if t.StrengthSpan <= 0 {
		return errors.New("strengthSpan must be > 0")
	}
	if t.MaxPositionSize <= 0 || t.MaxPositionSize > 1 {
		return fmt.Errorf("maxPositionSize %.4f outside (0,1]", t.MaxPositionSize)
	}
	if t.FeeBps < 0 || t.SlipBpsBase < 0 {
		return errors.New("fee/slippage bps must be >= 0")
	}
	return nil
}

// Sized 单个标的的目标权重，附带原始信号。
type Sized struct {
	signal.Signal
	Weight float64
}

// Sizer 把过滤后的信号映射为组合权重。
// 纯函数：同样的输入永远得到同样的输出，不做任何 I/O。
type Sizer struct {
	tun Tunables
}

// NewSizer 校验参数并构造 Sizer。
func NewSizer(t Tunables) (*Sizer, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sizing tunables: %w", err)
	}
	return &Sizer{tun: t}, nil
}

// Tunables 返回当前参数（热更新时用于对比）。
func (s *Sizer) Tunables() Tunables {
	return s.tun
}

// Size 按固定顺序执行八个步骤，顺序不可调整：
//  1. 概率→强度映射  2. 反波动率倾斜  3. sleeve 归一化  4. 组合波动率定标
//  5. 交易成本折减  6. 加密货币 sleeve 上限  7. 低确信度减半  8. 单标的截断
//
// 输入先做 schema 校验，校验失败整批返回错误、不产生任何权重。
func (s *Sizer) Size(signals []signal.Signal) ([]Sized, error) {
	if err := signal.ValidateBatch(signals); err != nil {
		return nil, err
	}

	n := len(signals)
	out := make([]Sized, n)
	desired := make([]float64, n)
	vol := make([]float64, n)

	// 步骤1+2：强度映射与反波动率倾斜
	for i, sig := range signals {
		strength := clip((sig.Probability-s.tun.StrengthFloor)/s.tun.StrengthSpan, 0, 1)
		if sig.Direction == signal.DirectionLong {
			desired[i] = strength
		}
		v := sig.ATRPct
		// NaN 也算缺失，否则会污染整个 sleeve 的归一化
		if v <= 0 || math.IsNaN(v) {
			v = defaultVol
		}
		vol[i] = v
		out[i] = Sized{Signal: sig, Weight: desired[i] / math.Max(v, minVol)}
	}

	// 步骤3：sleeve 归一化。没有任何多头需求时直接返回全零。
	var rawSum, volSum float64
	var active int
	for i := range out {
		if desired[i] > 0 {
			rawSum += out[i].Weight
			volSum += vol[i]
			active++
		}
	}
	if active == 0 || rawSum <= 0 {
		for i := range out {
			out[i].Weight = 0
		}
		return out, nil
	}
	for i := range out {
		if desired[i] > 0 {
			out[i].Weight /= rawSum
		} else {
			out[i].Weight = 0
		}
	}

	// 步骤4：组合波动率定标
	meanVol := volSum / float64(active)
	if meanVol <= 0 {
		meanVol = defaultVol
	}
	baseScale := s.tun.TargetDailyVol / meanVol

	// 步骤5：成本折减。单调递减且不低于 haircutFloor。
	costBps := s.tun.FeeBps + s.tun.SlipBpsBase
	penalty := clip(1-costBps/10000, haircutFloor, 1)

	for i := range out {
		out[i].Weight *= baseScale * penalty
	}

	// 步骤6：加密货币 sleeve 上限
	applyCryptoCap(out, s.tun.CryptoCap)

	// 步骤7+8：低确信度减半，然后截断到单标的上限
	for i := range out {
		if out[i].Probability < s.tun.SignalThreshold {
			out[i].Weight *= 0.5
		}
		out[i].Weight = clip(out[i].Weight, 0, s.tun.MaxPositionSize)
	}
	return out, nil
}

// applyCryptoCap 把加密货币权重的绝对值之和压到 cap 以内，
// 非加密标的不受影响。
func applyCryptoCap(ws []Sized, cap float64) {
	var total float64
	for _, w := range ws {
		if w.IsCrypto() {
			total += math.Abs(w.Weight)
		}
	}
	if total <= cap || total <= 0 {
		return
	}
	scale := cap / total
	for i := range ws {
		if ws[i].IsCrypto() {
			ws[i].Weight *= scale
		}
	}
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
