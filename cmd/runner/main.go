package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"trade-executor-go/broker"
	"trade-executor-go/config"
	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/internal/executor"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/risk"
	sig "trade-executor-go/signal"
	"trade-executor-go/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	once := flag.Bool("once", false, "执行一个周期后退出（cron 模式）")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单")
	restRate := flag.Float64("restRate", 5, "REST 限流：每秒令牌数")
	restBurst := flag.Int("restBurst", 10, "REST 限流：最大突发令牌数")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，留空则用配置值")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *dryRun {
		cfg.Broker.DryRun = true
	}

	appLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer appLog.Close()

	addr := *metricsAddr
	if addr == "" {
		addr = cfg.Execution.MetricsAddr
	}
	if addr != "" {
		metrics.StartMetricsServer(addr)
	}

	brokerClient, err := buildBroker(cfg, *restRate, *restBurst)
	if err != nil {
		appLog.Fatal("初始化券商客户端失败", zap.Error(err))
	}
	stores, err := buildStores(cfg)
	if err != nil {
		appLog.Fatal("初始化存储失败", zap.Error(err))
	}

	sizer, err := risk.NewSizer(cfg.Sizing.Tunables())
	if err != nil {
		appLog.Fatal("初始化仓位算法失败", zap.Error(err))
	}
	builder, err := order.NewBuilder(cfg.Orders.BuilderConfig())
	if err != nil {
		appLog.Fatal("初始化订单构造器失败", zap.Error(err))
	}

	exec, err := executor.New(
		executor.Config{
			SignalLimit:   cfg.Execution.SignalLimit,
			EquityUSD:     cfg.Execution.EquityUSD,
			CycleInterval: cfg.Execution.CycleInterval,
		},
		executor.Components{
			Broker:  brokerClient,
			Stores:  stores,
			Filter:  sig.Filter{MinProbability: cfg.Sizing.MinProbability},
			Sizer:   sizer,
			Builder: builder,
			Logger:  appLog,
		},
	)
	if err != nil {
		appLog.Fatal("初始化执行器失败", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		if err := exec.RunOnce(ctx); err != nil {
			appLog.Fatal("执行失败", zap.Error(err))
		}
		return
	}

	runDaemon(ctx, cancel, cfg, *cfgPath, exec, stores, appLog)
}

func buildBroker(cfg config.AppConfig, rate float64, burst int) (broker.Client, error) {
	if cfg.Broker.DryRun {
		return broker.NewDryRunClient(cfg.Execution.EquityUSD), nil
	}
	return broker.NewAlpacaClient(broker.AlpacaConfig{
		BaseURL:   cfg.Broker.BaseURL,
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
		Timeout:   cfg.Broker.Timeout,
		Limiter:   broker.NewTokenBucketLimiter(rate, burst),
	})
}

func buildStores(cfg config.AppConfig) (store.Stores, error) {
	if cfg.Store.Driver == "memory" {
		return store.NewMemory().AsStores(), nil
	}
	pg, err := store.OpenPostgres(cfg.Store.DSN)
	if err != nil {
		return store.Stores{}, err
	}
	return pg.AsStores(), nil
}

// runDaemon 常驻模式：按周期触发执行，同时维护配置热更新、
// 订单回报流和 systemd watchdog。
func runDaemon(ctx context.Context, cancel context.CancelFunc, cfg config.AppConfig,
	cfgPath string, exec *executor.Executor, stores store.Stores, appLog *logger.Logger) {

	reloader, err := config.NewReloader(cfgPath, config.DefaultReloadConfig(), func(next config.AppConfig) error {
		return exec.ApplyTunables(next.Sizing.Tunables())
	})
	if err != nil {
		appLog.Warn("配置热更新不可用", zap.Error(err))
	} else {
		if err := reloader.Start(ctx); err != nil {
			appLog.Warn("启动配置监听失败", zap.Error(err))
		}
		defer reloader.Stop()
	}

	if !cfg.Broker.DryRun && cfg.Broker.StreamURL != "" {
		startFillStream(ctx, cfg, stores, appLog)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go func() {
			ticker := time.NewTicker(interval / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Execution.CycleInterval)
	defer ticker.Stop()

	// 启动即跑一次，之后按周期触发
	if err := exec.RunOnce(ctx); err != nil {
		appLog.Error("执行失败", zap.Error(err))
	}
	for {
		select {
		case <-sigChan:
			appLog.Info("收到退出信号")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			cancel()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := exec.RunOnce(ctx); err != nil {
				appLog.Error("执行失败", zap.Error(err))
			}
		}
	}
}

// startFillStream 订阅订单回报流，把成交价回填到 fills 并推进订单状态。
func startFillStream(ctx context.Context, cfg config.AppConfig, stores store.Stores, appLog *logger.Logger) {
	stream, err := broker.NewStream(broker.StreamConfig{
		URL:       cfg.Broker.StreamURL,
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
	}, func(u broker.TradeUpdate) {
		if u.Event != "fill" && u.Event != "partial_fill" {
			return
		}
		if u.FillPrice > 0 {
			if err := stores.Fills.UpdatePrice(ctx, u.ClientOrderID, u.FillPrice); err != nil {
				appLog.Warn("回填成交价失败",
					zap.String("client_order_id", u.ClientOrderID), zap.Error(err))
			}
		}
		if u.Event == "fill" {
			if err := stores.Orders.UpdateStatus(ctx, u.ClientOrderID, order.StatusFilled); err != nil {
				appLog.Warn("推进订单状态失败",
					zap.String("client_order_id", u.ClientOrderID), zap.Error(err))
			}
		}
	})
	if err != nil {
		appLog.Warn("订单回报流不可用", zap.Error(err))
		return
	}
	stream.OnError = func(err error) {
		appLog.Warn("订单回报流错误", zap.Error(err))
	}
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("订单回报流退出", zap.Error(err))
		}
	}()
}
