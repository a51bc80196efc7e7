package signal

import (
	"strings"
	"time"
)

// Direction 信号方向。上游模型只产出做多与空仓两种。
type Direction string

const (
	DirectionLong Direction = "long"
	DirectionFlat Direction = "flat"
)

// Signal 一条已评分的交易信号，由上游模型写入 signals 表。
// 本模块只读，不回写。
type Signal struct {
	Ticker      string
	Probability float64   // 模型给出的上涨概率，[0,1]
	Direction   Direction // long / flat
	ATRPct      float64   // ATR 占价格比例的波动率估计，<=0 表示缺失
	Price       float64   // 信号生成时的参考价格
	Horizon     string    // 预测周期标签，例如 "5d"
	Regime      string    // 市场状态标签，例如 "neutral"
	Timestamp   time.Time
}

// IsCrypto 按 -USD 后缀识别加密货币标的（BTC-USD、ETH-USD）。
func (s Signal) IsCrypto() bool {
	return strings.HasSuffix(s.Ticker, "-USD")
}

// Latest 按 ticker 去重，保留时间戳最新的一条，维持首次出现的顺序。
func Latest(signals []Signal) []Signal {
	best := make(map[string]Signal, len(signals))
	orderSeen := make([]string, 0, len(signals))
	for _, s := range signals {
		prev, ok := best[s.Ticker]
		if !ok {
			best[s.Ticker] = s
			orderSeen = append(orderSeen, s.Ticker)
			continue
		}
		if s.Timestamp.After(prev.Timestamp) {
			best[s.Ticker] = s
		}
	}
	out := make([]Signal, 0, len(best))
	for _, t := range orderSeen {
		out = append(out, best[t])
	}
	return out
}
