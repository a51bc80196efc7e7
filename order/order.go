package order

import (
	"fmt"
	"time"
)

// Side 买卖方向。当前策略只做多，但对账与回报路径两个方向都会出现。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status represents order lifecycle.
type Status string

const (
	// StatusPending 已写入订单日志，尚未提交
	StatusPending Status = "pending"
	// StatusSent 券商已接受
	StatusSent Status = "sent"
	// StatusFilled 已成交（由回报流或轮询器推进）
	StatusFilled Status = "filled"
	// StatusRejected 券商拒绝或提交异常
	StatusRejected Status = "rejected"
)

// CanTransition 判断状态迁移是否合法。相同状态视为幂等允许。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusSent || to == StatusRejected
	case StatusSent:
		return to == StatusFilled
	default:
		// rejected 与 filled 是终态
		return false
	}
}

// IsFinal 判断是否终态。
func IsFinal(s Status) bool {
	return s == StatusFilled || s == StatusRejected
}

// Candidate 完成数量换算、待提交的订单候选。
type Candidate struct {
	Ticker        string
	Side          Side
	Weight        float64
	Notional      float64
	Quantity      int64
	ClientOrderID string
	Probability   float64
	Horizon       string
	Regime        string
	RefPrice      float64
}

// Order 订单日志里的一行。ClientOrderID 全局唯一，
// 同一决策周期的重试复用同一个 id，从不重新生成。
type Order struct {
	ClientOrderID string
	Ticker        string
	Side          Side
	Quantity      int64
	Status        Status
	Probability   float64
	Horizon       string
	Regime        string
	CreatedAt     time.Time
}

// Fill 成交记录。提交成功时先落一行（价格未知），
// 回报流到达后补上成交价。
type Fill struct {
	Ticker        string
	Side          Side
	Quantity      float64
	Price         *float64 // nil = 尚未知道成交价
	BrokerOrderID string
	ClientOrderID string
	Raw           string
}

// ClientOrderID 由 ticker 和决策周期 id 确定性生成。
// 同一周期内重试产生同一个 id，这是幂等提交的前提。
func ClientOrderID(ticker, cycleID string) string {
	return fmt.Sprintf("%s-%s", ticker, cycleID)
}
