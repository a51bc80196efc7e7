// Package store 定义执行器依赖的持久化契约。
// 存储技术对核心不可见：Postgres 实现用于生产，内存实现用于测试与 dry-run。
package store

import (
	"context"
	"time"

	"trade-executor-go/order"
	"trade-executor-go/signal"
)

// SignalStore 信号读取。每个 ticker 只返回最新一行。
type SignalStore interface {
	LatestSignals(ctx context.Context, limit int) ([]signal.Signal, error)
}

// OrderStore 订单日志。ExistingClientOrderIDs 是幂等去重的数据源，
// ClaimCycle 是并发触发下的事务性周期占用。
type OrderStore interface {
	Insert(ctx context.Context, o order.Order) error
	UpdateStatus(ctx context.Context, clientOrderID string, st order.Status) error
	ExistingClientOrderIDs(ctx context.Context) (map[string]struct{}, error)
	// ClaimCycle 以唯一约束占用一个决策周期。
	// 返回 false 表示别的调用已经占下了同一个 cycleID。
	ClaimCycle(ctx context.Context, cycleID string) (bool, error)
}

// FillStore 成交记录。UpdatePrice 由回报流在成交后补价。
type FillStore interface {
	Insert(ctx context.Context, f order.Fill) error
	UpdatePrice(ctx context.Context, clientOrderID string, price float64) error
}

// PositionStore 持仓快照，按 ticker 整行覆盖。
type PositionStore interface {
	Upsert(ctx context.Context, ticker string, qty, avgPrice float64) error
}

// MetricsStore 运行结果与心跳落库，不依赖抓取端也能审计。
type MetricsStore interface {
	Insert(ctx context.Context, name string, ts time.Time, value float64) error
}

// EquityStore 账户净值快照，按自然日去重（last-write-wins）。
type EquityStore interface {
	Upsert(ctx context.Context, day string, equity float64) error
}

// Stores 一站式注入。
type Stores struct {
	Signals   SignalStore
	Orders    OrderStore
	Fills     FillStore
	Positions PositionStore
	Metrics   MetricsStore
	Equity    EquityStore
}
