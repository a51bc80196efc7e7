// Package executor 串起一次完整的执行周期：
// 读信号 -> 过滤 -> 算权重 -> 占周期 -> 构造订单 -> 去重 -> 提交 -> 对账。
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/broker"
	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/position"
	"trade-executor-go/risk"
	"trade-executor-go/signal"
	"trade-executor-go/store"
)

// Config 执行器配置
type Config struct {
	SignalLimit   int           // 每次拉取的最大信号行数
	EquityUSD     float64       // 账户净值查询失败时的兜底值
	CycleInterval time.Duration // 决策周期长度，cycle id 按它截断
}

// Components 执行器依赖组件
type Components struct {
	Broker  broker.Client
	Stores  store.Stores
	Filter  signal.Filter
	Sizer   *risk.Sizer
	Builder *order.Builder
	Logger  *logger.Logger
}

// Executor 核心执行器。所有依赖注入进来，自己不做任何初始化 I/O。
type Executor struct {
	cfg        Config
	broker     broker.Client
	stores     store.Stores
	filter     signal.Filter
	sizer      *risk.Sizer
	builder    *order.Builder
	submitter  *order.Submitter
	reconciler *position.Reconciler
	log        *logger.Logger
}

// New 创建执行器
func New(cfg Config, comp Components) (*Executor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(comp); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.SignalLimit <= 0 {
		cfg.SignalLimit = 300
	}
	return &Executor{
		cfg:        cfg,
		broker:     comp.Broker,
		stores:     comp.Stores,
		filter:     comp.Filter,
		sizer:      comp.Sizer,
		builder:    comp.Builder,
		submitter:  order.NewSubmitter(comp.Broker, comp.Stores.Orders, comp.Stores.Fills, comp.Logger),
		reconciler: position.NewReconciler(comp.Broker, comp.Stores.Positions, comp.Logger),
		log:        comp.Logger,
	}, nil
}

// CycleID 把时刻截断到周期边界后格式化。
// 同一周期内的任何重试都会得到同一个 id。
func (e *Executor) CycleID(now time.Time) string {
	return now.UTC().Truncate(e.cfg.CycleInterval).Format("20060102T1504")
}

// ApplyTunables 热更新仓位参数。参数非法时保留旧 Sizer。
func (e *Executor) ApplyTunables(t risk.Tunables) error {
	s, err := risk.NewSizer(t)
	if err != nil {
		return err
	}
	e.sizer = s
	e.log.Info("sizing tunables updated",
		zap.Float64("min_probability", t.MinProbability),
		zap.Float64("target_daily_vol", t.TargetDailyVol))
	return nil
}

// RunOnce 执行一个完整周期。除校验失败外不向上传播单笔错误，
// 周期的最终结局通过指标和日志表达。
func (e *Executor) RunOnce(ctx context.Context) error {
	started := time.Now()
	cycleID := e.CycleID(started)
	defer func() {
		metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	e.heartbeat(ctx, "heartbeat_exec_start")

	signals, err := e.stores.Signals.LatestSignals(ctx, e.cfg.SignalLimit)
	if err != nil {
		metrics.RecordRun(metrics.OutcomeError)
		return fmt.Errorf("load signals: %w", err)
	}
	if len(signals) == 0 {
		e.finish(ctx, cycleID, metrics.OutcomeNoSignals, "exec_no_signals", 1, 0)
		return nil
	}

	selected := e.filter.Apply(signals)
	metrics.SignalsSelected.Set(float64(len(selected)))

	sized, err := e.sizer.Size(selected)
	if err != nil {
		metrics.RecordRun(metrics.OutcomeError)
		return fmt.Errorf("size signals: %w", err)
	}
	if !hasPositiveWeight(sized) {
		// 没有候选就不碰券商接口
		e.finish(ctx, cycleID, metrics.OutcomeNoOrders, "exec_no_orders", 1, 0)
		return nil
	}

	claimed, err := e.stores.Orders.ClaimCycle(ctx, cycleID)
	if err != nil {
		metrics.RecordRun(metrics.OutcomeError)
		return fmt.Errorf("claim cycle %s: %w", cycleID, err)
	}
	if !claimed {
		e.log.LogRun(cycleID, metrics.OutcomeCycleHeld)
		metrics.RecordRun(metrics.OutcomeCycleHeld)
		e.heartbeat(ctx, "heartbeat_exec_done")
		return nil
	}

	equity := e.cfg.EquityUSD
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		e.log.Warn("account query failed, using configured equity",
			zap.Float64("equity_usd", equity), zap.Error(err))
	} else if account.Equity > 0 {
		equity = account.Equity
	}

	cands := e.builder.Build(sized, equity, cycleID)
	if len(cands) == 0 {
		e.finish(ctx, cycleID, metrics.OutcomeNoOrders, "exec_no_orders", 1, 0)
		return nil
	}

	dedup := order.NewDeduplicator(e.stores.Orders)
	cands, skipped, err := dedup.Filter(ctx, cands)
	if err != nil {
		metrics.RecordRun(metrics.OutcomeError)
		return fmt.Errorf("dedup candidates: %w", err)
	}
	if skipped > 0 {
		metrics.OrdersDeduped.Add(float64(skipped))
		e.log.Info("skipped duplicate candidates",
			zap.String("cycle_id", cycleID), zap.Int("skipped", skipped))
	}
	if len(cands) == 0 {
		e.finish(ctx, cycleID, metrics.OutcomeNoOrders, "exec_no_orders", 1, 0)
		return nil
	}

	results := e.submitter.SubmitBatch(ctx, cands)
	sent := 0
	for _, r := range results {
		if r.OK {
			sent++
		}
	}

	if err := e.reconciler.Sync(ctx); err != nil {
		// 对账失败不回滚已提交的订单
		e.log.Error("position reconcile failed", zap.Error(err))
	}
	e.snapshotEquity(ctx, started, equity)

	e.finish(ctx, cycleID, metrics.OutcomeOrdersSent, "exec_orders_sent", float64(sent), sent)
	return nil
}

// finish 落结果行、记指标、关上心跳括号。空周期的结果行值为 1，
// 让只看行数之和的看板也能数到这些周期。
func (e *Executor) finish(ctx context.Context, cycleID, outcome, metricName string, value float64, sent int) {
	if err := e.stores.Metrics.Insert(ctx, metricName, time.Now().UTC(), value); err != nil {
		e.log.Warn("metric row insert failed", zap.String("name", metricName), zap.Error(err))
	}
	metrics.RecordRun(outcome)
	e.log.LogRun(cycleID, outcome, zap.Int("orders_sent", sent))
	e.heartbeat(ctx, "heartbeat_exec_done")
}

func (e *Executor) heartbeat(ctx context.Context, name string) {
	if err := e.stores.Metrics.Insert(ctx, name, time.Now().UTC(), 1); err != nil {
		e.log.Warn("heartbeat insert failed", zap.String("name", name), zap.Error(err))
	}
}

func (e *Executor) snapshotEquity(ctx context.Context, now time.Time, equity float64) {
	if equity <= 0 {
		return
	}
	day := now.UTC().Format("2006-01-02")
	if err := e.stores.Equity.Upsert(ctx, day, equity); err != nil {
		e.log.Warn("equity snapshot failed", zap.String("day", day), zap.Error(err))
	}
}

func hasPositiveWeight(sized []risk.Sized) bool {
	for _, s := range sized {
		if s.Weight > 0 {
			return true
		}
	}
	return false
}

func validateConfig(cfg Config) error {
	if cfg.CycleInterval <= 0 {
		return errors.New("cycle_interval must be > 0")
	}
	if cfg.EquityUSD < 0 {
		return errors.New("equity_usd must be >= 0")
	}
	return nil
}

func validateComponents(comp Components) error {
	if comp.Broker == nil {
		return errors.New("broker is required")
	}
	if comp.Stores.Signals == nil || comp.Stores.Orders == nil ||
		comp.Stores.Fills == nil || comp.Stores.Positions == nil ||
		comp.Stores.Metrics == nil || comp.Stores.Equity == nil {
		return errors.New("all stores are required")
	}
	if comp.Sizer == nil {
		return errors.New("sizer is required")
	}
	if comp.Builder == nil {
		return errors.New("builder is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
