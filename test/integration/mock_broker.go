package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"trade-executor-go/broker"
)

// MockBroker 模拟券商（用于集成测试）。
// 记录每一次下单，可按 ticker 注入失败，可伪造闭市。
type MockBroker struct {
	mu sync.RWMutex

	// 配置
	equity     float64
	marketOpen bool
	clockErr   error
	failFor    map[string]error

	// 状态
	positions map[string]broker.Position
	submitted []SubmittedOrder

	// 统计
	submitCount int
	clockCount  int
	listCount   int
}

// SubmittedOrder 一次下单请求的快照
type SubmittedOrder struct {
	Symbol        string
	Side          string
	Qty           int64
	ClientOrderID string
}

// NewMockBroker 创建 MockBroker
func NewMockBroker(equity float64) *MockBroker {
	return &MockBroker{
		equity:     equity,
		marketOpen: true,
		failFor:    make(map[string]error),
		positions:  make(map[string]broker.Position),
	}
}

// SetMarketOpen 设置开市状态
func (m *MockBroker) SetMarketOpen(open bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketOpen = open
	m.clockErr = err
}

// FailSubmission 指定 ticker 的下单返回错误
func (m *MockBroker) FailSubmission(ticker string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[ticker] = err
}

// SetPosition 预置券商侧持仓
func (m *MockBroker) SetPosition(ticker string, qty, avgPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[ticker] = broker.Position{Ticker: ticker, Quantity: qty, AvgEntryPrice: avgPrice}
}

// Submitted 返回全部下单请求
func (m *MockBroker) Submitted() []SubmittedOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SubmittedOrder, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// SubmitCount 下单调用次数
func (m *MockBroker) SubmitCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.submitCount
}

// BrokerCalls 所有券商接口的总调用次数
func (m *MockBroker) BrokerCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.submitCount + m.clockCount + m.listCount
}

func (m *MockBroker) IsMarketOpen(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clockCount++
	if m.clockErr != nil {
		return false, m.clockErr
	}
	return m.marketOpen, nil
}

func (m *MockBroker) ListPositions(context.Context) (map[string]broker.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCount++
	out := make(map[string]broker.Position, len(m.positions))
	for k, v := range m.positions {
		out[k] = v
	}
	return out, nil
}

func (m *MockBroker) GetAccount(context.Context) (broker.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return broker.Account{Equity: m.equity, Currency: "USD"}, nil
}

func (m *MockBroker) SubmitMarketOrder(_ context.Context, symbol, side string, qty int64, clientOrderID string) (broker.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitCount++
	if err, ok := m.failFor[symbol]; ok {
		return broker.Ack{}, err
	}
	m.submitted = append(m.submitted, SubmittedOrder{
		Symbol: symbol, Side: side, Qty: qty, ClientOrderID: clientOrderID,
	})
	// 下单即视为全部成交，持仓同步可见
	pos := m.positions[symbol]
	pos.Ticker = symbol
	pos.Quantity += float64(qty)
	if pos.AvgEntryPrice == 0 {
		pos.AvgEntryPrice = 100
	}
	m.positions[symbol] = pos

	id := fmt.Sprintf("mock-%d", m.submitCount)
	raw, _ := json.Marshal(map[string]interface{}{"id": id, "client_order_id": clientOrderID})
	return broker.Ack{
		BrokerOrderID: id,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Qty:           float64(qty),
		Status:        "accepted",
		Raw:           raw,
	}, nil
}
