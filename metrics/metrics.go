// Package metrics exposes Prometheus collectors for the executor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 运行结果标签取值与 MetricsStore 行名保持一致。
const (
	OutcomeNoSignals  = "no_signals"
	OutcomeNoOrders   = "no_orders"
	OutcomeOrdersSent = "orders_sent"
	OutcomeCycleHeld  = "cycle_held"
	OutcomeError      = "error"
)

var (
	// RunsTotal 按结果分类的执行次数。
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_runs_total",
		Help: "执行周期数量（按结果分类）",
	}, []string{"outcome"})

	// OrdersSent 提交成功的订单数。
	OrdersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "executor_orders_sent_total",
		Help: "券商接受的订单数量",
	})

	// OrdersRejected 提交失败的订单数。
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "executor_orders_rejected_total",
		Help: "券商拒绝或提交异常的订单数量",
	})

	// OrdersDeduped 因幂等键已存在被跳过的订单数。
	OrdersDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "executor_orders_deduped_total",
		Help: "幂等去重跳过的订单数量",
	})

	// SignalsSelected 最近一次执行通过过滤的信号数。
	SignalsSelected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "executor_signals_selected",
		Help: "最近一次执行通过过滤的信号数",
	})

	// PositionsSynced 最近一次对账落库的持仓数。
	PositionsSynced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "executor_positions_synced",
		Help: "最近一次对账写入的持仓数量",
	})

	// ReconcileFailures 对账失败次数。
	ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "executor_reconcile_failures_total",
		Help: "持仓对账失败次数",
	})

	// RunDuration 单次执行耗时。
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "executor_run_duration_seconds",
		Help:    "单次执行耗时",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordRun 记录一次执行结果。
func RecordRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

// StartMetricsServer 启动 Prometheus 指标服务器。
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
