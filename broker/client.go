package broker

import (
	"context"
	"encoding/json"
)

// Position 券商侧持仓快照。
type Position struct {
	Ticker        string
	Quantity      float64
	AvgEntryPrice float64
}

// Account 账户概要，目前只消费净值。
type Account struct {
	Equity   float64
	Currency string
}

// Ack 下单成功后的回执。Raw 保留原始报文供落库。
type Ack struct {
	BrokerOrderID string
	ClientOrderID string
	Symbol        string
	Side          string
	Qty           float64
	Status        string
	Raw           json.RawMessage
}

// Client 券商接口。所有实现都应自带超时与限流，调用方不再包一层。
type Client interface {
	// IsMarketOpen 尽力而为的开市检查。查询失败时调用方按开市处理
	//（fail open），因为标的池里有全天候交易的加密货币。
	IsMarketOpen(ctx context.Context) (bool, error)

	// ListPositions 返回全部持仓，按 ticker 索引。
	ListPositions(ctx context.Context) (map[string]Position, error)

	// SubmitMarketOrder 提交市价单（day 有效期）。
	// clientOrderID 是幂等键：同一个 id 重复提交会被券商拒绝。
	SubmitMarketOrder(ctx context.Context, symbol, side string, qty int64, clientOrderID string) (Ack, error)

	// GetAccount 返回账户净值。
	GetAccount(ctx context.Context) (Account, error)
}
