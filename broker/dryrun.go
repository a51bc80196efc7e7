package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// DryRunClient 只记日志不真正下单的 Client 实现，对应 runner 的 -dryRun。
// 回执用自增序号伪造，持仓与账户返回固定值。
type DryRunClient struct {
	Equity float64
	seq    atomic.Int64
}

func NewDryRunClient(equity float64) *DryRunClient {
	return &DryRunClient{Equity: equity}
}

func (d *DryRunClient) IsMarketOpen(context.Context) (bool, error) {
	return true, nil
}

func (d *DryRunClient) ListPositions(context.Context) (map[string]Position, error) {
	return map[string]Position{}, nil
}

func (d *DryRunClient) GetAccount(context.Context) (Account, error) {
	return Account{Equity: d.Equity, Currency: "USD"}, nil
}

func (d *DryRunClient) SubmitMarketOrder(_ context.Context, symbol, side string, qty int64, clientOrderID string) (Ack, error) {
	id := fmt.Sprintf("dry-%d", d.seq.Add(1))
	raw, _ := json.Marshal(map[string]interface{}{
		"id": id, "client_order_id": clientOrderID, "symbol": symbol,
		"side": side, "qty": qty, "dry_run": true,
	})
	return Ack{
		BrokerOrderID: id,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Qty:           float64(qty),
		Status:        "accepted",
		Raw:           raw,
	}, nil
}
