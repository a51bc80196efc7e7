package position

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trade-executor-go/broker"
	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/metrics"
)

// Store 持仓快照写入。
type Store interface {
	Upsert(ctx context.Context, ticker string, qty, avgPrice float64) error
}

// Reconciler 对账器：批次处理完后用券商侧持仓整体覆盖本地快照。
// 全量覆盖（last-write-wins），不和本地权重做合并，
// 所以即使批次里有订单失败或部分成交，结果仍然正确。
type Reconciler struct {
	broker broker.Client
	store  Store
	log    *logger.Logger
}

func NewReconciler(b broker.Client, store Store, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{broker: b, store: store, log: log}
}

// Sync 执行一次全量对账。失败只向上返回错误让调用方记日志，
// 不回滚已下的单。
func (r *Reconciler) Sync(ctx context.Context) error {
	positions, err := r.broker.ListPositions(ctx)
	if err != nil {
		metrics.ReconcileFailures.Inc()
		return fmt.Errorf("sync positions: %w", err)
	}
	var synced int
	for ticker, p := range positions {
		if err := r.store.Upsert(ctx, ticker, p.Quantity, p.AvgEntryPrice); err != nil {
			metrics.ReconcileFailures.Inc()
			return fmt.Errorf("upsert position %s: %w", ticker, err)
		}
		synced++
	}
	metrics.PositionsSynced.Set(float64(synced))
	r.log.Info("positions reconciled", zap.Int("count", synced))
	return nil
}
