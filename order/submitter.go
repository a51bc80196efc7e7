package order

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/broker"
	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/metrics"
)

// LogStore 提交路径需要的订单日志写入能力。
type LogStore interface {
	Insert(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, clientOrderID string, st Status) error
}

// FillSink 成交记录写入。
type FillSink interface {
	Insert(ctx context.Context, f Fill) error
}

// Result 单笔订单的提交结果。
type Result struct {
	OK    bool
	Error string
	Ack   *broker.Ack
	Order Order
}

// Submitter 逐笔提交订单。单笔失败只影响自己：
// 标记 rejected 后继续处理批次里剩下的订单。
type Submitter struct {
	broker broker.Client
	orders LogStore
	fills  FillSink
	log    *logger.Logger
}

func NewSubmitter(b broker.Client, orders LogStore, fills FillSink, log *logger.Logger) *Submitter {
	if log == nil {
		log = logger.Nop()
	}
	return &Submitter{broker: b, orders: orders, fills: fills, log: log}
}

// SubmitBatch 按输入顺序提交候选。
// 开市检查只是提示：查询失败按开市处理（fail open），
// 因为标的池里有全天候交易的加密货币，闭市不代表整批无效。
func (s *Submitter) SubmitBatch(ctx context.Context, cands []Candidate) []Result {
	if len(cands) == 0 {
		return nil
	}
	open, err := s.broker.IsMarketOpen(ctx)
	if err != nil {
		s.log.Warn("market-open check failed, assuming open", zap.Error(err))
		open = true
	}
	if !open {
		s.log.Warn("market reported closed, submitting anyway (crypto venue is 24/7)",
			zap.Error(broker.ErrMarketClosed))
	}

	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		results = append(results, s.submitOne(ctx, c))
	}
	return results
}

func (s *Submitter) submitOne(ctx context.Context, c Candidate) Result {
	o := Order{
		ClientOrderID: c.ClientOrderID,
		Ticker:        c.Ticker,
		Side:          c.Side,
		Quantity:      c.Quantity,
		Status:        StatusPending,
		Probability:   c.Probability,
		Horizon:       c.Horizon,
		Regime:        c.Regime,
		CreatedAt:     time.Now().UTC(),
	}
	// 先落 pending 行，崩溃后重跑能看到这个 id 已经用过
	if err := s.orders.Insert(ctx, o); err != nil {
		s.log.Error("insert order row failed", zap.String("client_order_id", c.ClientOrderID), zap.Error(err))
		return Result{OK: false, Error: err.Error(), Order: o}
	}

	ack, err := s.broker.SubmitMarketOrder(ctx, c.Ticker, string(c.Side), c.Quantity, c.ClientOrderID)
	if err != nil {
		o.Status = StatusRejected
		if uerr := s.orders.UpdateStatus(ctx, c.ClientOrderID, StatusRejected); uerr != nil {
			s.log.Error("mark rejected failed", zap.String("client_order_id", c.ClientOrderID), zap.Error(uerr))
		}
		metrics.OrdersRejected.Inc()
		s.log.LogOrder("rejected", c.ClientOrderID, c.Ticker, zap.Error(err))
		return Result{OK: false, Error: err.Error(), Order: o}
	}

	o.Status = StatusSent
	if uerr := s.orders.UpdateStatus(ctx, c.ClientOrderID, StatusSent); uerr != nil {
		s.log.Error("mark sent failed", zap.String("client_order_id", c.ClientOrderID), zap.Error(uerr))
	}
	// 成交价此刻未知，等回报流或轮询补齐
	fill := Fill{
		Ticker:        ack.Symbol,
		Side:          c.Side,
		Quantity:      ack.Qty,
		Price:         nil,
		BrokerOrderID: ack.BrokerOrderID,
		ClientOrderID: ack.ClientOrderID,
		Raw:           string(ack.Raw),
	}
	if ferr := s.fills.Insert(ctx, fill); ferr != nil {
		s.log.Error("insert fill row failed", zap.String("client_order_id", c.ClientOrderID), zap.Error(ferr))
	}
	metrics.OrdersSent.Inc()
	s.log.LogOrder("sent", c.ClientOrderID, c.Ticker,
		zap.Int64("qty", c.Quantity), zap.String("broker_order_id", ack.BrokerOrderID))
	return Result{OK: true, Ack: &ack, Order: o}
}
