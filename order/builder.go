package order

import (
	"errors"
	"fmt"
	"math"

	"trade-executor-go/risk"
)

// BuilderConfig 订单构造参数。
type BuilderConfig struct {
	// MaxPositionPct 单标的名义金额占账户净值的上限
	MaxPositionPct float64
	// DollarStep 每个标的的基础下单金额
	DollarStep float64
}

// Builder 把权重和账户净值换算成整数数量的订单候选。
type Builder struct {
	cfg BuilderConfig
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		return nil, fmt.Errorf("maxPositionPct %.4f outside (0,1]", cfg.MaxPositionPct)
	}
	if cfg.DollarStep <= 0 {
		return nil, errors.New("dollarStep must be > 0")
	}
	return &Builder{cfg: cfg}, nil
}

// Build 为每个权重为正的标的生成一条候选。
// 名义金额 = min(MaxPositionPct*equity, DollarStep)；数量向下取整，
// 不足一股/一单位的标的跳过。client id 由 (ticker, cycleID) 确定性生成。
func (b *Builder) Build(sized []risk.Sized, equityUSD float64, cycleID string) []Candidate {
	out := make([]Candidate, 0, len(sized))
	perNameCap := b.cfg.MaxPositionPct * equityUSD
	for _, w := range sized {
		if w.Weight <= 0 {
			continue
		}
		notional := math.Min(perNameCap, b.cfg.DollarStep)
		if notional <= 0 {
			continue
		}
		if w.Price <= 0 {
			// 没有参考价无法换算数量
			continue
		}
		qty := int64(math.Floor(notional / w.Price))
		if qty < 1 {
			continue
		}
		out = append(out, Candidate{
			Ticker:        w.Ticker,
			Side:          SideBuy,
			Weight:        w.Weight,
			Notional:      notional,
			Quantity:      qty,
			ClientOrderID: ClientOrderID(w.Ticker, cycleID),
			Probability:   w.Probability,
			Horizon:       w.Horizon,
			Regime:        w.Regime,
			RefPrice:      w.Price,
		})
	}
	return out
}
