package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade-executor-go/order"
	"trade-executor-go/signal"
)

// Memory 全部接口的内存实现，测试与 dry-run 用。
// 单进程内并发安全，但不提供跨进程的幂等保证。
type Memory struct {
	mu        sync.RWMutex
	signals   []signal.Signal
	orders    map[string]order.Order
	orderSeq  []string
	fills     map[string]order.Fill
	positions map[string][2]float64
	metrics   []MetricRow
	equity    map[string]float64
	cycles    map[string]struct{}
}

// MetricRow 落库的一条指标。
type MetricRow struct {
	Name  string
	Ts    time.Time
	Value float64
}

func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]order.Order),
		fills:     make(map[string]order.Fill),
		positions: make(map[string][2]float64),
		equity:    make(map[string]float64),
		cycles:    make(map[string]struct{}),
	}
}

// SeedSignals 预置信号批次（替代上游模型写入）。
func (m *Memory) SeedSignals(signals ...signal.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, signals...)
}

func (m *Memory) LatestSignals(_ context.Context, limit int) ([]signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := signal.Latest(m.signals)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Insert(_ context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ClientOrderID]; ok {
		return fmt.Errorf("duplicate client_order_id %s", o.ClientOrderID)
	}
	m.orders[o.ClientOrderID] = o
	m.orderSeq = append(m.orderSeq, o.ClientOrderID)
	return nil
}

func (m *Memory) UpdateStatus(_ context.Context, cid string, st order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[cid]
	if !ok {
		return fmt.Errorf("unknown client_order_id %s", cid)
	}
	if !order.CanTransition(o.Status, st) {
		return fmt.Errorf("illegal transition %s -> %s for %s", o.Status, st, cid)
	}
	o.Status = st
	m.orders[cid] = o
	return nil
}

func (m *Memory) ExistingClientOrderIDs(context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.orders))
	for cid := range m.orders {
		out[cid] = struct{}{}
	}
	return out, nil
}

func (m *Memory) ClaimCycle(_ context.Context, cycleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[cycleID]; ok {
		return false, nil
	}
	m.cycles[cycleID] = struct{}{}
	return true, nil
}

func (m *Memory) InsertFill(ctx context.Context, f order.Fill) error {
	return m.insertFill(f)
}

func (m *Memory) insertFill(f order.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills[f.ClientOrderID] = f
	return nil
}

func (m *Memory) UpdatePrice(_ context.Context, cid string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fills[cid]
	if !ok {
		return fmt.Errorf("unknown fill %s", cid)
	}
	p := price
	f.Price = &p
	m.fills[cid] = f
	return nil
}

func (m *Memory) Upsert(_ context.Context, ticker string, qty, avgPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[ticker] = [2]float64{qty, avgPrice}
	return nil
}

func (m *Memory) InsertMetric(_ context.Context, name string, ts time.Time, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, MetricRow{Name: name, Ts: ts, Value: value})
	return nil
}

func (m *Memory) UpsertEquity(_ context.Context, day string, equity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity[day] = equity
	return nil
}

// Orders 返回订单日志快照（按插入顺序），测试用。
func (m *Memory) Orders() []order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]order.Order, 0, len(m.orderSeq))
	for _, cid := range m.orderSeq {
		out = append(out, m.orders[cid])
	}
	return out
}

// Fills 返回成交记录快照，测试用。
func (m *Memory) Fills() map[string]order.Fill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]order.Fill, len(m.fills))
	for k, v := range m.fills {
		out[k] = v
	}
	return out
}

// Positions 返回持仓快照，测试用。
func (m *Memory) Positions() map[string][2]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][2]float64, len(m.positions))
	for k, v := range m.positions {
		out[k] = v
	}
	return out
}

// Metrics 返回落库指标快照，测试用。
func (m *Memory) Metrics() []MetricRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MetricRow(nil), m.metrics...)
}

// Equity 返回净值快照，测试用。
func (m *Memory) Equity() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.equity))
	for k, v := range m.equity {
		out[k] = v
	}
	return out
}

// memFills 把 Memory 适配成 FillStore（Insert 名字被 OrderStore 占用）。
type memFills struct{ m *Memory }

func (f memFills) Insert(ctx context.Context, fill order.Fill) error {
	return f.m.InsertFill(ctx, fill)
}

func (f memFills) UpdatePrice(ctx context.Context, cid string, price float64) error {
	return f.m.UpdatePrice(ctx, cid, price)
}

// memMetrics 把 Memory 适配成 MetricsStore。
type memMetrics struct{ m *Memory }

func (s memMetrics) Insert(ctx context.Context, name string, ts time.Time, value float64) error {
	return s.m.InsertMetric(ctx, name, ts, value)
}

// memEquity 把 Memory 适配成 EquityStore。
type memEquity struct{ m *Memory }

func (s memEquity) Upsert(ctx context.Context, day string, equity float64) error {
	return s.m.UpsertEquity(ctx, day, equity)
}

// AsStores 返回接口捆绑。
func (m *Memory) AsStores() Stores {
	return Stores{
		Signals:   m,
		Orders:    m,
		Fills:     memFills{m},
		Positions: m,
		Metrics:   memMetrics{m},
		Equity:    memEquity{m},
	}
}
